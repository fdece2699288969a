package payout

import (
	"context"
	"errors"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/metrics"
	"github.com/farizadam/airport-app-sub000/internal/payment"
	"github.com/farizadam/airport-app-sub000/internal/wallet"

	"github.com/google/uuid"
)

var (
	ErrNotYourPayout = errors.New("payout belongs to another user")

	// ErrWithdrawalFailed is returned once the processor has definitely
	// rejected the transfer and the wallet has been made whole again.
	ErrWithdrawalFailed = errors.New("withdrawal could not be completed")
)

// metadataKey tags each transfer with the payout's idempotency key so an
// ambiguous outcome can later be verified against the processor's records.
const metadataKey = "payout"

type Notifier interface {
	Notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) error
}

type Service interface {
	RequestWithdrawal(ctx context.Context, userID int, req WithdrawalRequest) (*Payout, error)
	GetPayout(ctx context.Context, userID, payoutID int) (*Payout, error)
	ListMyPayouts(ctx context.Context, userID int) ([]Payout, error)

	// Resolution entry points used by the reconciliation sweep.
	ResolvePending(ctx context.Context, p Payout) (string, error)
	ResolveProcessing(ctx context.Context, p Payout) (string, error)
	RetryManualRefund(ctx context.Context, p Payout) error
}

type service struct {
	payouts   Repository
	wallets   wallet.Repository
	processor payment.Processor
	notifier  Notifier
}

func NewService(payouts Repository, wallets wallet.Repository, processor payment.Processor, notifier Notifier) Service {
	return &service{
		payouts:   payouts,
		wallets:   wallets,
		processor: processor,
		notifier:  notifier,
	}
}

// RequestWithdrawal runs the two-phase withdrawal saga.
//
// Phase 1 is a single database transaction: guarded wallet debit, pending
// payout row, pending ledger row. After it commits there is no partial state
// to clean up locally.
//
// Phase 2 calls the processor outside any transaction. Success promotes the
// payout to processing; an explicit rejection refunds and fails it; anything
// ambiguous is verified against the processor's transfer list before deciding,
// and left pending for the reconciliation sweep when even that cannot be
// answered.
func (s *service) RequestWithdrawal(ctx context.Context, userID int, req WithdrawalRequest) (*Payout, error) {
	active, err := s.payouts.HasActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrPendingPayoutExists
	}

	key := uuid.NewString()

	// Phase 1: local, atomic.
	tx, err := s.wallets.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.wallets.DebitInTx(ctx, tx, userID, req.AmountCents, wallet.TxMeta{
		Type:          wallet.TypeWithdrawal,
		Status:        wallet.StatusPending,
		GrossCents:    req.AmountCents,
		NetCents:      req.AmountCents,
		ReferenceType: "payout",
		ReferenceID:   key,
	}, true)
	if err != nil {
		return nil, err
	}

	p, err := s.payouts.CreateInTx(ctx, tx, key, userID, entry.WalletID, req.AmountCents, req.DestinationAccount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	metrics.RecordWalletDebit(wallet.TypeWithdrawal)

	// Phase 2: external, non-transactional.
	transfer, err := s.processor.CreateTransfer(ctx, p.AmountCents, p.DestinationAccount, map[string]string{
		metadataKey: key,
	})
	if err == nil {
		return p, s.promote(ctx, p, transfer.ID)
	}

	if payment.IsDefiniteFailure(err) {
		logger.Errorf("Transfer for payout %d rejected: %v", p.ID, err)
		s.refundAndFail(ctx, p, err.Error())
		return nil, ErrWithdrawalFailed
	}

	// Ambiguous: the transfer may exist remotely. Verify before compensating.
	logger.Errorf("Transfer for payout %d ambiguous, verifying: %v", p.ID, err)
	existing, lookupErr := s.findTransferByKey(ctx, p.DestinationAccount, key)
	if lookupErr != nil {
		// Cannot tell either way. Never guess with money: stay pending and
		// let the sweep settle it.
		logger.Errorf("Verification for payout %d failed, leaving pending: %v", p.ID, lookupErr)
		if flagErr := s.payouts.FlagReconcile(ctx, p.ID); flagErr != nil {
			logger.Errorf("Failed to flag payout %d for reconciliation: %v", p.ID, flagErr)
		}
		metrics.RecordPayout("unverified")
		return p, nil
	}

	if existing != nil {
		return p, s.promote(ctx, p, existing.ID)
	}

	s.refundAndFail(ctx, p, "transfer was never created")
	return nil, ErrWithdrawalFailed
}

func (s *service) GetPayout(ctx context.Context, userID, payoutID int) (*Payout, error) {
	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotYourPayout
	}
	return p, nil
}

func (s *service) ListMyPayouts(ctx context.Context, userID int) ([]Payout, error) {
	return s.payouts.ListByUser(ctx, userID)
}

// ResolvePending settles a payout stuck in pending: the transfer list is
// searched for the idempotency tag, and the payout is promoted when the
// transfer exists or refunded when it provably does not.
func (s *service) ResolvePending(ctx context.Context, p Payout) (string, error) {
	existing, err := s.findTransferByKey(ctx, p.DestinationAccount, p.IdempotencyKey)
	if err != nil {
		if flagErr := s.payouts.FlagReconcile(ctx, p.ID); flagErr != nil {
			logger.Errorf("Failed to flag payout %d for reconciliation: %v", p.ID, flagErr)
		}
		return "unresolved", err
	}

	if existing != nil {
		if err := s.promote(ctx, &p, existing.ID); err != nil {
			return "unresolved", err
		}
		return "promoted", nil
	}

	s.refundAndFail(ctx, &p, "transfer was never created")
	return "refunded", nil
}

// ResolveProcessing settles a payout that stayed in processing past the
// settlement window by retrieving its transfer: reversed or missing means
// refund, anything else means the money went through.
func (s *service) ResolveProcessing(ctx context.Context, p Payout) (string, error) {
	if p.TransferID == nil {
		s.refundAndFail(ctx, &p, "processing payout has no transfer id")
		return "refunded", nil
	}

	transfer, err := s.processor.RetrieveTransfer(ctx, *p.TransferID)
	if err != nil {
		if payment.IsDefiniteFailure(err) {
			// The processor does not know the transfer: the money never left.
			s.refundAndFail(ctx, &p, "transfer not found at processor")
			return "refunded", nil
		}
		return "unresolved", err
	}

	if transfer.Reversed {
		s.refundAndFail(ctx, &p, "transfer was reversed")
		return "refunded", nil
	}

	if err := s.payouts.MarkCompleted(ctx, p.ID); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return "noop", nil
		}
		return "unresolved", err
	}
	metrics.RecordPayout("completed")
	s.notify(ctx, p.UserID, "payout_completed", map[string]interface{}{
		"payout_id":    p.ID,
		"amount_cents": p.AmountCents,
	})
	return "completed", nil
}

// RetryManualRefund re-applies a refund credit that previously failed. The
// flag acts as the claim: clearing it wins the right to credit, and the flag
// is restored if the credit fails again.
func (s *service) RetryManualRefund(ctx context.Context, p Payout) error {
	if err := s.payouts.ClaimManualRefund(ctx, p.ID); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return nil
		}
		return err
	}

	if _, err := s.wallets.Credit(ctx, p.UserID, p.AmountCents, wallet.TxMeta{
		Type:          wallet.TypeWithdrawalFailed,
		Status:        wallet.StatusCompleted,
		GrossCents:    p.AmountCents,
		NetCents:      p.AmountCents,
		ReferenceType: "payout",
		ReferenceID:   p.IdempotencyKey,
	}); err != nil {
		if flagErr := s.payouts.FlagManualRefund(ctx, p.ID); flagErr != nil {
			logger.Errorf("Failed to re-flag payout %d for manual refund: %v", p.ID, flagErr)
		}
		return err
	}

	metrics.RecordWalletCredit(wallet.TypeWithdrawalFailed)
	logger.Infof("Manual refund for payout %d applied", p.ID)
	return nil
}

// promote records a successful transfer: payout to processing, ledger row to
// completed. Guarded updates make a repeat promotion a no-op.
func (s *service) promote(ctx context.Context, p *Payout, transferID string) error {
	if err := s.payouts.MarkProcessing(ctx, p.ID, transferID); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return nil
		}
		return err
	}
	if err := s.payouts.FinalizeLedger(ctx, p.IdempotencyKey, wallet.StatusCompleted, transferID); err != nil {
		logger.Errorf("Failed to finalize ledger row for payout %d: %v", p.ID, err)
	}

	p.Status = StatusProcessing
	p.TransferID = &transferID
	metrics.RecordPayout("processing")
	s.notify(ctx, p.UserID, "payout_processing", map[string]interface{}{
		"payout_id":    p.ID,
		"amount_cents": p.AmountCents,
	})
	return nil
}

// refundAndFail compensates a payout whose transfer definitely did not (or
// will not) settle: the payout flips to failed first, then the ledger row is
// failed and the wallet credited back. A refund credit that cannot be applied
// flags the payout for the sweep instead of being dropped.
func (s *service) refundAndFail(ctx context.Context, p *Payout, reason string) {
	if err := s.payouts.MarkFailed(ctx, p.ID, reason); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return
		}
		logger.Errorf("Failed to mark payout %d failed: %v", p.ID, err)
		return
	}
	p.Status = StatusFailed

	if err := s.payouts.FinalizeLedger(ctx, p.IdempotencyKey, wallet.StatusFailed, ""); err != nil {
		logger.Errorf("Failed to finalize ledger row for payout %d: %v", p.ID, err)
	}

	if _, err := s.wallets.Credit(ctx, p.UserID, p.AmountCents, wallet.TxMeta{
		Type:          wallet.TypeWithdrawalFailed,
		Status:        wallet.StatusCompleted,
		GrossCents:    p.AmountCents,
		NetCents:      p.AmountCents,
		ReferenceType: "payout",
		ReferenceID:   p.IdempotencyKey,
	}); err != nil {
		logger.Errorf("Refund credit for payout %d failed: %v", p.ID, err)
		if flagErr := s.payouts.FlagManualRefund(ctx, p.ID); flagErr != nil {
			logger.Errorf("Failed to flag payout %d for manual refund: %v", p.ID, flagErr)
		}
	} else {
		metrics.RecordWalletCredit(wallet.TypeWithdrawalFailed)
	}

	metrics.RecordPayout("failed")
	s.notify(ctx, p.UserID, "payout_failed", map[string]interface{}{
		"payout_id":    p.ID,
		"amount_cents": p.AmountCents,
		"reason":       reason,
	})
}

func (s *service) findTransferByKey(ctx context.Context, destinationAccount, key string) (*payment.Transfer, error) {
	transfers, err := s.processor.ListTransfers(ctx, destinationAccount, 20)
	if err != nil {
		return nil, err
	}
	for i := range transfers {
		if transfers[i].Metadata[metadataKey] == key {
			return &transfers[i], nil
		}
	}
	return nil, nil
}

func (s *service) notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, notifType, payload); err != nil {
		logger.Errorf("Failed to notify user %d (%s): %v", userID, notifType, err)
	}
}
