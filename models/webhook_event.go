package models

import (
	"time"
)

type WebhookEventStatus string

const (
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the audit trail of received Stripe events. Processed rows
// let duplicate deliveries be acknowledged without re-running handlers;
// failed rows keep the raw payload and error so a silently-swallowed event
// can be found and replayed by an operator.
type WebhookEvent struct {
	ID            string             `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	StripeEventID string             `json:"stripeEventId" gorm:"uniqueIndex;not null"`
	Type          string             `json:"type"`
	Payload       string             `json:"payload" gorm:"type:jsonb"`
	Status        WebhookEventStatus `json:"status" gorm:"type:varchar(20)"`
	Error         string             `json:"error"`
	ProcessedAt   time.Time          `json:"processedAt"`
	CreatedAt     time.Time          `json:"createdAt"`
}
