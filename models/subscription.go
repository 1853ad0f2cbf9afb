package models

import (
	"strings"
	"time"
)

type SubscriptionStatus string

// Stripe's subscription statuses, mirrored verbatim, plus the local
// cancel_pending value set when a user asks to cancel at period end.
const (
	SubscriptionActive        SubscriptionStatus = "active"
	SubscriptionTrialing      SubscriptionStatus = "trialing"
	SubscriptionPastDue       SubscriptionStatus = "past_due"
	SubscriptionCanceled      SubscriptionStatus = "canceled"
	SubscriptionIncomplete    SubscriptionStatus = "incomplete"
	SubscriptionUnpaid        SubscriptionStatus = "unpaid"
	SubscriptionCancelPending SubscriptionStatus = "cancel_pending"
)

// ManualSubscriptionPrefix namespaces admin-granted subscription IDs so they
// can never collide with Stripe subscription IDs.
const ManualSubscriptionPrefix = "manual_"

// Subscription is the local mirror of a user's subscription state. The row
// is a read-mostly cache of Stripe's truth: every status transition is
// driven by a webhook event, never by local writes alone. ID is the Stripe
// subscription ID, or manual_<userId> for admin grants.
type Subscription struct {
	ID                 string             `json:"id" gorm:"primaryKey"`
	UserID             string             `json:"userId" gorm:"type:uuid;not null;index"`
	StripeCustomerID   string             `json:"stripeCustomerId"`
	PlanID             string             `json:"planId"`
	Status             SubscriptionStatus `json:"status" gorm:"type:varchar(20)"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time         `json:"canceledAt"`
	EndedAt            *time.Time         `json:"endedAt"`
	LatestInvoiceID    string             `json:"latestInvoiceId"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// IsCurrent reports whether the subscription still grants access.
func (s *Subscription) IsCurrent() bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionCancelPending:
		return true
	}
	return false
}

// IsManual reports whether the subscription was granted by an admin rather
// than created through Stripe checkout.
func (s *Subscription) IsManual() bool {
	return strings.HasPrefix(s.ID, ManualSubscriptionPrefix)
}

// CurrentStatuses lists the statuses that count as an existing subscription
// when deciding whether a new checkout or grant should be refused.
func CurrentStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{
		SubscriptionActive,
		SubscriptionTrialing,
		SubscriptionCancelPending,
	}
}
