// Package bakong is the outbound client for the Bakong open API: deeplink
// generation, settlement lookups and token renewal, wrapped in the
// timeout/retry policy the rest of the service relies on.
package bakong

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"khqrgw/internal/domain"
	"khqrgw/internal/metrics"
)

const (
	pathDeeplink         = "/v1/generate_deeplink_by_qr"
	pathCheckByMD5       = "/v1/check_transaction_by_md5"
	pathCheckByShortHash = "/v1/check_transaction_by_short_hash"
	pathRenewToken       = "/v1/renew_token"

	// Provider-level error codes riding on responseCode != 0.
	errCodeNotFound = 1
)

// SourceInfo identifies this integration in deeplink requests; the payer
// app shows the name/icon and calls back after payment.
type SourceInfo struct {
	AppName             string `json:"appName"`
	AppIconURL          string `json:"appIconUrl"`
	AppDeepLinkCallback string `json:"appDeepLinkCallback"`
}

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Retries    int
	SourceInfo SourceInfo
}

type Client struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: newTransport(),
		},
		log: log,
	}
}

// envelope is the provider's response wrapper. responseCode 0 means the
// call succeeded; anything else carries an errorCode.
type envelope struct {
	ResponseCode    int             `json:"responseCode"`
	ResponseMessage string          `json:"responseMessage"`
	ErrorCode       *int            `json:"errorCode"`
	Data            json.RawMessage `json:"data"`
}

type transactionData struct {
	Hash               string  `json:"hash"`
	FromAccountID      string  `json:"fromAccountId"`
	ToAccountID        string  `json:"toAccountId"`
	Currency           string  `json:"currency"`
	Amount             float64 `json:"amount"`
	Description        string  `json:"description"`
	CreatedDateMs      int64   `json:"createdDateMs"`
	AcknowledgedDateMs int64   `json:"acknowledgedDateMs"`
}

func (c *Client) GenerateDeeplink(ctx context.Context, qr string) (string, error) {
	env, err := c.post(ctx, pathDeeplink, map[string]any{
		"qr":         qr,
		"sourceInfo": c.cfg.SourceInfo,
	})
	if err != nil {
		return "", err
	}
	if env.ResponseCode != 0 {
		return "", fmt.Errorf("deeplink rejected: %s", env.ResponseMessage)
	}
	var data struct {
		ShortLink string `json:"shortLink"`
	}
	if err := sonic.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("failed to decode deeplink response: %w", err)
	}
	return data.ShortLink, nil
}

func (c *Client) CheckByMD5(ctx context.Context, md5 string) (domain.Settlement, error) {
	env, err := c.post(ctx, pathCheckByMD5, map[string]string{"md5": md5})
	if err != nil {
		return domain.Settlement{}, err
	}
	return c.classify(env)
}

func (c *Client) CheckByShortHash(ctx context.Context, shortHash string, amount float64, currency string) (domain.Settlement, error) {
	env, err := c.post(ctx, pathCheckByShortHash, map[string]any{
		"shortHash": shortHash,
		"amount":    amount,
		"currency":  currency,
	})
	if err != nil {
		return domain.Settlement{}, err
	}
	return c.classify(env)
}

func (c *Client) RenewToken(ctx context.Context, email string) (string, error) {
	env, err := c.post(ctx, pathRenewToken, map[string]string{"email": email})
	if err != nil {
		return "", err
	}
	if env.ResponseCode != 0 {
		return "", fmt.Errorf("token renewal rejected: %s", env.ResponseMessage)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := sonic.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return data.Token, nil
}

// classify maps a provider response to the ledger's status enum:
// success → completed, not-found → still pending, any other provider
// rejection → failed.
func (c *Client) classify(env *envelope) (domain.Settlement, error) {
	if env.ResponseCode == 0 {
		var tx transactionData
		if err := sonic.Unmarshal(env.Data, &tx); err != nil {
			return domain.Settlement{}, fmt.Errorf("failed to decode transaction: %w", err)
		}
		settled := time.UnixMilli(tx.AcknowledgedDateMs).UTC()
		if tx.AcknowledgedDateMs == 0 {
			settled = time.Now().UTC()
		}
		return domain.Settlement{
			Status:          domain.StatusCompleted,
			TransactionHash: tx.Hash,
			FromAccount:     tx.FromAccountID,
			SettledAt:       &settled,
		}, nil
	}
	if env.ErrorCode != nil && *env.ErrorCode == errCodeNotFound {
		return domain.Settlement{Status: domain.StatusPending}, nil
	}
	c.log.Warn("settlement lookup rejected",
		zap.Int("responseCode", env.ResponseCode),
		zap.String("message", env.ResponseMessage))
	return domain.Settlement{Status: domain.StatusFailed}, nil
}

// post runs one API call with bounded retries. Each attempt gets its own
// timeout; transport errors and retryable statuses (408, 429, 5xx) back
// off and try again, everything else returns immediately.
func (c *Client) post(ctx context.Context, path string, body any) (*envelope, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		env, retryable, err := c.attempt(ctx, path, payload)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.log.Warn("settlement API attempt failed",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, path string, payload []byte) (*envelope, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		metrics.Observe(path, "transport_error", start)
		return nil, true, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		metrics.Observe(path, "auth_error", start)
		return nil, false, fmt.Errorf("%w: token rejected (%d)", domain.ErrProviderUnavailable, res.StatusCode)
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		metrics.Observe(path, "retryable", start)
		return nil, true, fmt.Errorf("provider returned %d", res.StatusCode)
	}
	if res.StatusCode >= 500 {
		metrics.Observe(path, "retryable", start)
		return nil, true, fmt.Errorf("provider returned %d", res.StatusCode)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		metrics.Observe(path, "transport_error", start)
		return nil, true, err
	}
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		metrics.Observe(path, "decode_error", start)
		return nil, false, fmt.Errorf("failed to decode provider response: %w", err)
	}
	metrics.Observe(path, "ok", start)
	return &env, false, nil
}
