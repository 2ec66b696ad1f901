package billing

import (
	"encoding/json"
	"errors"
	"strings"
)

// Recognized payment event types.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// PaymentEvent is the provider-neutral shape extracted from a payment
// webhook payload.
type PaymentEvent struct {
	EventType string
	PaymentID string
	OrderID   string
	Amount    int64
	Currency  string
}

// razorpayWebhookPayload mirrors the envelope Razorpay posts:
// {"event":"payment.captured","payload":{"payment":{"entity":{...}}}}.
type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParsePaymentEvent extracts the payment entity from a raw webhook body.
func ParsePaymentEvent(raw []byte) (*PaymentEvent, error) {
	var p razorpayWebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.New("malformed webhook payload")
	}

	entity := p.Payload.Payment.Entity
	if entity.ID == "" || entity.OrderID == "" {
		return nil, errors.New("webhook payload missing payment or order id")
	}

	return &PaymentEvent{
		EventType: strings.TrimSpace(p.Event),
		PaymentID: entity.ID,
		OrderID:   entity.OrderID,
		Amount:    entity.Amount,
		Currency:  entity.Currency,
	}, nil
}

// IsRecognizedEventType reports whether the ingestor processes this event
// type; everything else is recorded and marked ignored.
func IsRecognizedEventType(eventType string) bool {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case EventPaymentCaptured, EventPaymentFailed:
		return true
	default:
		return false
	}
}
