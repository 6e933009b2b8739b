/**
 * @description
 * This package provides a resilient client for the ledger service, which owns
 * the authoritative account balances. The payment orchestrator performs every
 * balance read and conditional write through this client.
 *
 * Reads are idempotent and are retried with exponential backoff on network
 * errors and 5xx responses. Conditional writes are never retried here: the
 * orchestrator owns the re-read-and-retry decision on version conflicts.
 * Every call runs under its own deadline; a timeout or transport failure is
 * reported as ErrStoreUnavailable, which callers must treat as "outcome
 * unknown", distinct from a definitive not-found or conflict.
 *
 * @dependencies
 * - net/http, encoding/json: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrAccountNotFound is a definitive answer: the ledger looked and the account is absent.
	ErrAccountNotFound = errors.New("account not found in ledger")
	// ErrVersionConflict means another writer mutated the balance since it was read.
	ErrVersionConflict = errors.New("balance version conflict")
	// ErrStoreUnavailable means the outcome of the call is unknown (timeout, transport
	// failure, or 5xx after retries). Callers must not assume the write did not happen.
	ErrStoreUnavailable = errors.New("ledger service unavailable")
)

// Balance is the versioned balance snapshot returned by the ledger service.
type Balance struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"` // minor units
	Version   int64  `json:"version"`
}

// Account is the profile view of a ledger account.
type Account struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Balance int64  `json:"balance"`
	Version int64  `json:"version"`
}

// Client is an HTTP client for the ledger service.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	callTimeout time.Duration
	maxAttempts int
	baseBackoff time.Duration
}

// Option configures optional client behaviour.
type Option func(*Client)

// WithCallTimeout overrides the per-call deadline (default 5s).
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithRetryPolicy overrides the read retry budget and the base backoff delay.
func WithRetryPolicy(maxAttempts int, baseBackoff time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseBackoff > 0 {
			c.baseBackoff = baseBackoff
		}
	}
}

// NewClient creates a new ledger service client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      strings.TrimSpace(apiKey),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		callTimeout: 5 * time.Second,
		maxAttempts: 3,
		baseBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorBody is the JSON error envelope used by the ledger service.
type errorBody struct {
	Error string `json:"error"`
}

// setBalanceRequest is the conditional-write payload.
type setBalanceRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
	NewBalance      int64 `json:"new_balance"`
}

// GetBalance reads the current balance and version for an account. The read is
// retried on network-level errors and 5xx responses; 4xx answers are final.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	var balance Balance
	err := c.getWithRetry(ctx, fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, accountID), &balance)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetAccount reads the profile view of an account, same retry policy as GetBalance.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	err := c.getWithRetry(ctx, fmt.Sprintf("%s/accounts/%s", c.baseURL, accountID), &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Health probes the ledger service's health endpoint. A single attempt with
// the call timeout; callers use it for liveness reporting, not for decisions
// about individual transfers.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health responded %d", ErrStoreUnavailable, resp.StatusCode)
	}
	return nil
}

// SetBalance performs a version-conditioned balance write. It is deliberately
// not retried: a conflict means the caller must re-read and re-decide, and a
// transport failure leaves the outcome unknown. The transfer's idempotency
// reference travels as X-Request-Ref so the ledger can correlate audit logs.
func (c *Client) SetBalance(ctx context.Context, accountID string, expectedVersion, newBalance int64, ref string) error {
	body, err := json.Marshal(setBalanceRequest{ExpectedVersion: expectedVersion, NewBalance: newBalance})
	if err != nil {
		return fmt.Errorf("failed to marshal balance write: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPut, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create balance write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ref != "" {
		req.Header.Set("X-Request-Ref", ref)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=ledger_client op=set_balance account_id=%s msg=\"transport failure\" err=%v", accountID, err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	return c.decodeWriteStatus(resp, accountID)
}

func (c *Client) decodeWriteStatus(resp *http.Response, accountID string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	var errResp errorBody
	_ = json.Unmarshal(bodyBytes, &errResp)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrVersionConflict
	case resp.StatusCode == http.StatusNotFound:
		return ErrAccountNotFound
	case resp.StatusCode >= 500:
		log.Printf("level=warn component=ledger_client op=set_balance account_id=%s status=%d detail=%q", accountID, resp.StatusCode, errResp.Error)
		return fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("ledger rejected balance write (status %d): %s", resp.StatusCode, errResp.Error)
	}
}

// getWithRetry executes an idempotent GET with bounded exponential backoff.
func (c *Client) getWithRetry(ctx context.Context, url string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
			}
		}

		retryable, err := c.getOnce(ctx, url, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		log.Printf("level=warn component=ledger_client op=get url=%s attempt=%d msg=\"retryable failure\" err=%v", url, attempt, err)
	}
	return lastErr
}

// getOnce performs a single GET. The bool result reports whether the failure
// is retryable (network error or 5xx); 4xx outcomes are definitive.
func (c *Client) getOnce(ctx context.Context, url string, out interface{}) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Internal-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return false, fmt.Errorf("failed to decode ledger response: %w", err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrAccountNotFound
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	default:
		var errResp errorBody
		_ = json.Unmarshal(bodyBytes, &errResp)
		return false, fmt.Errorf("ledger rejected request (status %d): %s", resp.StatusCode, errResp.Error)
	}
}

// backoffDelay computes the exponential backoff delay before the given attempt,
// with jitter so concurrent transfers do not retry in lockstep.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseBackoff << uint(attempt-2)
	jitter := time.Duration(rand.Int63n(int64(c.baseBackoff)))
	return delay + jitter
}
