package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Captain-Subtext/level5-courseware-sub000/db"
	"github.com/Captain-Subtext/level5-courseware-sub000/models"
	"github.com/Captain-Subtext/level5-courseware-sub000/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookHandler reconciles Stripe webhook events onto the local
// subscriptions table. The local row is a read-mostly mirror of Stripe's
// state: handlers always re-fetch the subscription through the API and
// never trust the event payload beyond using it as a trigger.
type WebhookHandler struct {
	api   Client
	locks *subscriptionLocks
}

func NewWebhookHandler(api Client) *WebhookHandler {
	return &WebhookHandler{
		api:   api,
		locks: newSubscriptionLocks(),
	}
}

// HandleWebhook verifies, dispatches and acknowledges a Stripe event.
// Handler failures are logged and recorded as failed webhook_events rows
// but still acknowledged with 200, so a permanently failing event cannot
// put Stripe into a retry storm. Only signature problems produce a 400.
// @Summary Stripe webhook endpoint
// @Description Receives signed Stripe events and reconciles local subscription state
// @Tags subscriptions
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool "received: true"
// @Failure 400 {object} map[string]string "error: Stripe signature verification failed"
// @Failure 500 {object} map[string]string "error: Webhook secret not configured"
// @Router /stripe/webhook [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not read the request body"})
		return
	}

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		utils.LogError(nil, "STRIPE_WEBHOOK_SECRET is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook secret not configured"})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, secret)
	if err != nil {
		utils.LogError(err, "Stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stripe signature verification failed"})
		return
	}

	// Stripe retries until acknowledged, so duplicate deliveries are normal.
	var seen models.WebhookEvent
	if err := db.DB.First(&seen, "stripe_event_id = ? AND status = ?", event.ID, models.WebhookProcessed).Error; err == nil {
		utils.LogInfo("Webhook event " + event.ID + " already processed, acknowledging")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.dispatch(event); err != nil {
		utils.LogError(err, "Webhook handler failed for event "+event.ID+" ("+string(event.Type)+")")
		h.recordEvent(event, payload, models.WebhookFailed, err)
	} else {
		h.recordEvent(event, payload, models.WebhookProcessed, nil)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) dispatch(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutSessionCompleted(event)
	case "customer.subscription.created":
		// Row creation is owned by checkout completion; this event arriving
		// first only means deliveries raced each other.
		utils.LogWarn("customer.subscription.created received before checkout completion, ignoring")
		return nil
	case "customer.subscription.updated":
		return h.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		return h.handleInvoicePaymentSucceeded(event)
	case "invoice.payment_failed":
		return h.handleInvoicePaymentFailed(event)
	default:
		utils.LogInfo("Ignored webhook event type: " + string(event.Type))
		return nil
	}
}

// recordEvent writes the audit row for a delivery. Failed rows carry the
// raw payload and error so dropped events can be found and replayed. The
// upsert keeps redelivery of a previously failed event from tripping the
// unique index on stripe_event_id.
func (h *WebhookHandler) recordEvent(event stripe.Event, payload []byte, status models.WebhookEventStatus, handlerErr error) {
	record := models.WebhookEvent{
		StripeEventID: event.ID,
		Type:          string(event.Type),
		Payload:       string(payload),
		Status:        status,
		ProcessedAt:   time.Now(),
	}
	if handlerErr != nil {
		record.Error = handlerErr.Error()
	}

	err := db.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		utils.LogError(err, "Could not record webhook event "+event.ID)
	}
}

func (h *WebhookHandler) handleCheckoutSessionCompleted(event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("parsing checkout session: %w", err)
	}

	userID := session.Metadata["userId"]
	if userID == "" {
		return errors.New("checkout session has no userId metadata")
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return errors.New("checkout session has no subscription")
	}
	subID := session.Subscription.ID

	defer h.locks.Lock(subID)()

	planID := resolvePlanID(session.Metadata["planId"])

	// Authoritative state comes from a re-fetch, not from the session
	// payload, which embeds the subscription as it was at session creation.
	sub, err := h.api.GetSubscription(subID)
	if err != nil {
		return fmt.Errorf("retrieving subscription %s: %w", subID, err)
	}

	periodStart, periodEnd := billingPeriod(sub)

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if customerID == "" && sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	// One subscription row per user: a new checkout overwrites the
	// previous row in place instead of inserting a second one.
	var existing models.Subscription
	err = db.DB.First(&existing, "user_id = ?", userID).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"id":                   subID,
			"stripe_customer_id":   customerID,
			"plan_id":              planID,
			"status":               string(sub.Status),
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"canceled_at":          nil,
			"ended_at":             nil,
			"latest_invoice_id":    latestInvoiceID(sub),
		}
		return db.DB.Model(&models.Subscription{}).Where("user_id = ?", userID).Updates(updates).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		record := models.Subscription{
			ID:                 subID,
			UserID:             userID,
			StripeCustomerID:   customerID,
			PlanID:             planID,
			Status:             models.SubscriptionStatus(sub.Status),
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
			LatestInvoiceID:    latestInvoiceID(sub),
		}
		return db.DB.Create(&record).Error
	default:
		return err
	}
}

func (h *WebhookHandler) handleSubscriptionUpdated(event stripe.Event) error {
	var trigger stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &trigger); err != nil {
		return fmt.Errorf("parsing subscription: %w", err)
	}
	if trigger.ID == "" {
		return errors.New("subscription event has no ID")
	}

	defer h.locks.Lock(trigger.ID)()

	var existing models.Subscription
	if err := db.DB.First(&existing, "id = ?", trigger.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// checkout.session.completed may still be in flight
			utils.LogWarn("No local row for subscription " + trigger.ID + ", skipping update")
			return nil
		}
		return err
	}

	sub, err := h.api.GetSubscription(trigger.ID)
	if err != nil {
		return fmt.Errorf("retrieving subscription %s: %w", trigger.ID, err)
	}

	periodStart, periodEnd := billingPeriod(sub)
	updates := map[string]interface{}{
		"status":               string(sub.Status),
		"current_period_start": periodStart,
		"current_period_end":   periodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"canceled_at":          epochToTimePtr(sub.CanceledAt),
		"ended_at":             epochToTimePtr(sub.EndedAt),
	}
	return db.DB.Model(&existing).Updates(updates).Error
}

func (h *WebhookHandler) handleSubscriptionDeleted(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("parsing subscription: %w", err)
	}
	if sub.ID == "" {
		return errors.New("subscription event has no ID")
	}

	defer h.locks.Lock(sub.ID)()

	now := time.Now()
	canceledAt := epochToTimePtr(sub.CanceledAt)
	if canceledAt == nil {
		canceledAt = &now
	}
	endedAt := epochToTimePtr(sub.EndedAt)
	if endedAt == nil {
		endedAt = &now
	}

	res := db.DB.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"status":               string(models.SubscriptionCanceled),
		"cancel_at_period_end": false,
		"canceled_at":          canceledAt,
		"ended_at":             endedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		utils.LogWarn("No local row for deleted subscription " + sub.ID)
	}
	return nil
}

func (h *WebhookHandler) handleInvoicePaymentSucceeded(event stripe.Event) error {
	var invoice map[string]interface{}
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("parsing invoice: %w", err)
	}

	subID := subscriptionIDFromInvoice(invoice)
	if subID == "" {
		// One-off invoices carry no subscription; nothing to reconcile
		utils.LogWarn("Invoice event carries no subscription ID, ignoring")
		return nil
	}

	if status, _ := invoice["status"].(string); status != "paid" {
		utils.LogInfo("Invoice for subscription " + subID + " is not paid yet, ignoring")
		return nil
	}

	defer h.locks.Lock(subID)()

	var existing models.Subscription
	if err := db.DB.First(&existing, "id = ?", subID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogWarn("No local row for subscription " + subID + ", skipping invoice")
			return nil
		}
		return err
	}

	sub, err := h.api.GetSubscription(subID)
	if err != nil {
		return fmt.Errorf("retrieving subscription %s: %w", subID, err)
	}

	periodStart, periodEnd := billingPeriod(sub)
	invoiceID, _ := invoice["id"].(string)
	updates := map[string]interface{}{
		"status":               string(sub.Status),
		"current_period_start": periodStart,
		"current_period_end":   periodEnd,
		"latest_invoice_id":    invoiceID,
	}
	return db.DB.Model(&existing).Updates(updates).Error
}

func (h *WebhookHandler) handleInvoicePaymentFailed(event stripe.Event) error {
	var invoice map[string]interface{}
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("parsing invoice: %w", err)
	}

	subID := subscriptionIDFromInvoice(invoice)
	if subID == "" {
		utils.LogWarn("Failed invoice carries no subscription ID, ignoring")
		return nil
	}
	invoiceID, _ := invoice["id"].(string)

	defer h.locks.Lock(subID)()

	res := db.DB.Model(&models.Subscription{}).Where("id = ?", subID).Updates(map[string]interface{}{
		"status":            string(models.SubscriptionPastDue),
		"latest_invoice_id": invoiceID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		utils.LogWarn("No local row for subscription " + subID + " on failed invoice")
	}
	return nil
}

// subscriptionIDFromInvoice digs the subscription ID out of the invoice
// payload. The location moved across Stripe API versions: current payloads
// nest it under parent.subscription_details, older ones expose it as a
// top-level field or on the invoice lines.
func subscriptionIDFromInvoice(invoice map[string]interface{}) string {
	if s, ok := invoice["subscription"].(string); ok && s != "" {
		return s
	}

	if parent, ok := invoice["parent"].(map[string]interface{}); ok {
		if details, ok := parent["subscription_details"].(map[string]interface{}); ok {
			if s, ok := details["subscription"].(string); ok && s != "" {
				return s
			}
		}
	}

	if lines, ok := invoice["lines"].(map[string]interface{}); ok {
		if data, ok := lines["data"].([]interface{}); ok {
			for _, raw := range data {
				line, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				if s, ok := line["subscription"].(string); ok && s != "" {
					return s
				}
			}
		}
	}

	return ""
}

// billingPeriod extracts the billing period from the first subscription
// item, degrading to "now" with a warning when dates are absent or
// malformed. A missing date never fails the handler.
func billingPeriod(sub *stripe.Subscription) (time.Time, time.Time) {
	now := time.Now()
	start, end := now, now

	if sub.Items == nil || len(sub.Items.Data) == 0 {
		utils.LogWarn("Subscription " + sub.ID + " has no items, defaulting billing period to now")
		return start, end
	}

	item := sub.Items.Data[0]
	if item.CurrentPeriodStart > 0 {
		start = time.Unix(item.CurrentPeriodStart, 0)
	} else {
		utils.LogWarn("Subscription " + sub.ID + " has no valid period start, defaulting to now")
	}
	if item.CurrentPeriodEnd > 0 {
		end = time.Unix(item.CurrentPeriodEnd, 0)
	} else {
		utils.LogWarn("Subscription " + sub.ID + " has no valid period end, defaulting to now")
	}
	return start, end
}

func epochToTimePtr(epoch int64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	t := time.Unix(epoch, 0)
	return &t
}

func latestInvoiceID(sub *stripe.Subscription) string {
	if sub.LatestInvoice != nil {
		return sub.LatestInvoice.ID
	}
	return ""
}

// resolvePlanID maps checkout metadata to a plans row. A UUID is used
// directly; anything else is treated as a plan_type ("monthly", "annual")
// and resolved against the active catalog. When resolution fails the raw
// value is stored so the write still happens.
func resolvePlanID(identifier string) string {
	if identifier == "" {
		return ""
	}
	if _, err := uuid.Parse(identifier); err == nil {
		return identifier
	}

	var plan models.Plan
	if err := db.DB.First(&plan, "plan_type = ? AND active = ?", identifier, true).Error; err != nil {
		utils.LogWarn("No active plan matches type '" + identifier + "', storing the raw value")
		return identifier
	}
	return plan.ID
}
