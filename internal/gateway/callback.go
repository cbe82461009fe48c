package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/models"
)

// Provider result codes
const (
	resultCodeSuccess   = "00"
	resultCodeCancelled = "02"
)

// CallbackData is the provider-specific payload body
type CallbackData struct {
	OrderCode   string `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

// CallbackPayload is the raw shape the gateway posts to the callback URL
type CallbackPayload struct {
	Code      string       `json:"code"`
	Desc      string       `json:"desc"`
	Data      CallbackData `json:"data"`
	Signature string       `json:"signature"`
}

// ParseCallback verifies and normalizes a raw gateway callback into a
// PaymentEvent. The signature is an HMAC-SHA256 over the data fields in
// alphabetical key order, hex encoded. Provider-specific fields never leave
// this boundary.
func ParseCallback(body []byte, checksumKey string) (*models.PaymentEvent, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode callback payload: %w", err)
	}

	expected := signCallbackData(payload.Data, checksumKey)
	if !hmac.Equal([]byte(expected), []byte(payload.Signature)) {
		return nil, auctionerrors.ErrInvalidSignature
	}

	return &models.PaymentEvent{
		GatewayCode: payload.Data.OrderCode,
		Amount:      payload.Data.Amount,
		Outcome:     mapOutcome(payload.Code),
		RawHint:     payload.Data.Description,
		Token:       payload.Data.Reference,
		ReceivedAt:  time.Now(),
	}, nil
}

func mapOutcome(code string) string {
	switch code {
	case resultCodeSuccess:
		return models.OutcomePaid
	case resultCodeCancelled:
		return models.OutcomeCancelled
	default:
		return models.OutcomeFailed
	}
}

func signCallbackData(data CallbackData, checksumKey string) string {
	canonical := fmt.Sprintf("amount=%d&description=%s&orderCode=%s&reference=%s",
		data.Amount, data.Description, data.OrderCode, data.Reference)

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
