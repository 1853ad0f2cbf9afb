package models

import (
	"time"
)

// Plan maps an internal catalog entry to a Stripe price. PlanType is the
// human-readable key ("monthly", "annual") that checkout metadata may carry
// instead of the UUID.
type Plan struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name          string    `json:"name" gorm:"not null" binding:"required"`
	PlanType      string    `json:"planType" gorm:"type:varchar(20);not null" binding:"required"`
	StripePriceID string    `json:"stripePriceId" binding:"required"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency" gorm:"type:varchar(3);default:'usd'"`
	Active        bool      `json:"active" gorm:"default:true"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
