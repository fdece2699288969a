package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetOrCreateWallet(ctx context.Context, userID int) (*Wallet, error)
	GetByUserID(ctx context.Context, userID int) (*Wallet, error)
	Credit(ctx context.Context, userID int, amountCents int64, meta TxMeta) (*Transaction, error)
	Debit(ctx context.Context, userID int, amountCents int64, meta TxMeta) (*Transaction, error)
	DebitWithBalanceCheck(ctx context.Context, userID int, amountCents int64, meta TxMeta) (*Transaction, error)
	CreditInTx(ctx context.Context, tx *sqlx.Tx, userID int, amountCents int64, meta TxMeta) (*Transaction, error)
	DebitInTx(ctx context.Context, tx *sqlx.Tx, userID int, amountCents int64, meta TxMeta, checkBalance bool) (*Transaction, error)
	MarkTransactionStatus(ctx context.Context, transactionID int, status, transferID string) error
	FlagForReview(ctx context.Context, userID int) error
	GetTransactions(ctx context.Context, userID int, limit, offset int, typeFilter string) ([]Transaction, error)
	SumCompleted(ctx context.Context, walletID int) (int64, error)
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}
