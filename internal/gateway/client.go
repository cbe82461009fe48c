package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auction-service/config"
	"auction-service/internal/util"

	"go.uber.org/zap"
)

// Client talks to the external payment gateway. Outbound operations are
// fire-and-forget: a 2xx acknowledgment only means the gateway accepted the
// request; the authoritative outcome always arrives later via callback.
type Client struct {
	baseURL    string
	apiKey     string
	returnURL  string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewClient creates a new gateway client
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		returnURL:  cfg.ReturnURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     util.GetLogger(),
	}
}

type paymentRequest struct {
	OrderCode   string `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
}

type gatewayAck struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

// CreatePayment requests a payment intent for an order
func (c *Client) CreatePayment(ctx context.Context, orderCode string, amount int64, description string) error {
	req := paymentRequest{
		OrderCode:   orderCode,
		Amount:      amount,
		Description: description,
		ReturnURL:   c.returnURL,
	}
	return c.post(ctx, "create_payment", "/v2/payment-requests", req)
}

// CancelPayment requests cancellation of a pending payment
func (c *Client) CancelPayment(ctx context.Context, orderCode string) error {
	path := fmt.Sprintf("/v2/payment-requests/%s/cancel", orderCode)
	return c.post(ctx, "cancel_payment", path, struct{}{})
}

// post sends a request with bounded retry and exponential backoff. Network
// errors and 5xx responses are retried; anything else is permanent.
func (c *Client) post(ctx context.Context, operation, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	backoff := c.backoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("Gateway request failed, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		var ack gatewayAck
		decodeErr := json.NewDecoder(resp.Body).Decode(&ack)
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gateway returned %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			util.GatewayRequestsTotal.WithLabelValues(operation, "rejected").Inc()
			return fmt.Errorf("gateway rejected %s: status %d", operation, resp.StatusCode)
		}

		if decodeErr != nil {
			util.GatewayRequestsTotal.WithLabelValues(operation, "error").Inc()
			return fmt.Errorf("failed to decode gateway ack: %w", decodeErr)
		}

		if ack.Code != resultCodeSuccess {
			util.GatewayRequestsTotal.WithLabelValues(operation, "rejected").Inc()
			return fmt.Errorf("gateway rejected %s: code=%s desc=%s", operation, ack.Code, ack.Desc)
		}

		util.GatewayRequestsTotal.WithLabelValues(operation, "ok").Inc()
		return nil
	}

	util.GatewayRequestsTotal.WithLabelValues(operation, "exhausted").Inc()
	return fmt.Errorf("gateway %s failed after %d attempts: %w", operation, c.maxRetries+1, lastErr)
}
