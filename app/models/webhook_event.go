package models

import "time"

// WebhookEventStatus defines the processing state of a stored webhook delivery.
type WebhookEventStatus string

const (
	WebhookEventStatusReceived  WebhookEventStatus = "received"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusIgnored   WebhookEventStatus = "ignored"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent stores provider webhook payloads with deduplication metadata
// for idempotent processing. The (provider, event_id) pair is the idempotency
// key: redelivery of the same event is a no-op by construction.
type WebhookEvent struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	Provider     string             `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	EventID      string             `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_event,unique,priority:2" json:"event_id"`
	EventType    string             `gorm:"type:varchar(100);not null;index" json:"event_type"`
	EntityID     string             `gorm:"type:varchar(191);not null;default:''" json:"entity_id"`
	PayloadJSON  string             `gorm:"type:longtext;not null" json:"payload_json"`
	Status       WebhookEventStatus `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	ErrorMessage string             `gorm:"type:text" json:"error_message"`
	ReceivedAt   time.Time          `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt  *time.Time         `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
}
