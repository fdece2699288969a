package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Processor is the surface of the external payment processor the core
// depends on. Transfers move money to a driver's bank account; refunds
// reverse a card charge taken at booking time.
type Processor interface {
	CreateTransfer(ctx context.Context, amountCents int64, destinationAccount string, metadata map[string]string) (*Transfer, error)
	RetrieveTransfer(ctx context.Context, id string) (*Transfer, error)
	ListTransfers(ctx context.Context, destinationAccount string, limit int) ([]Transfer, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*Refund, error)
}

type Transfer struct {
	ID          string            `json:"id"`
	AmountCents int64             `json:"amount"`
	Destination string            `json:"destination"`
	Status      string            `json:"status"`
	Reversed    bool              `json:"reversed"`
	Metadata    map[string]string `json:"metadata"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// APIError is an explicit business rejection from the processor. Any error
// that is not an *APIError (timeouts, connection resets, 5xx bodies that
// don't parse) must be treated as ambiguous: the operation may or may not
// have been applied remotely.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api error %s: %s", e.Code, e.Message)
}

// IsDefiniteFailure reports whether err is an explicit rejection by the
// processor, i.e. it is safe to compensate without verifying remote state.
func IsDefiniteFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createTransferRequest struct {
	AmountCents int64             `json:"amount"`
	Destination string            `json:"destination"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type createRefundRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount,omitempty"`
}

type listTransfersResponse struct {
	Data []Transfer `json:"data"`
}

func (c *Client) CreateTransfer(ctx context.Context, amountCents int64, destinationAccount string, metadata map[string]string) (*Transfer, error) {
	body := createTransferRequest{
		AmountCents: amountCents,
		Destination: destinationAccount,
		Metadata:    metadata,
	}

	var transfer Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", body, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *Client) RetrieveTransfer(ctx context.Context, id string) (*Transfer, error) {
	var transfer Transfer
	if err := c.do(ctx, http.MethodGet, "/v1/transfers/"+url.PathEscape(id), nil, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *Client) ListTransfers(ctx context.Context, destinationAccount string, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 20
	}
	path := "/v1/transfers?destination=" + url.QueryEscape(destinationAccount) + "&limit=" + strconv.Itoa(limit)

	var resp listTransfersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*Refund, error) {
	body := createRefundRequest{
		PaymentIntentID: paymentIntentID,
		AmountCents:     amountCents,
	}

	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connectivity failure: the request may or may not have reached
		// the processor. Callers must not treat this as a rejection.
		return fmt.Errorf("payment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Code = "unknown"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("payment api returned %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
