package stripe

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Captain-Subtext/level5-courseware-sub000/db"
	"github.com/Captain-Subtext/level5-courseware-sub000/models"
	"github.com/Captain-Subtext/level5-courseware-sub000/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
)

// Handler carries the user-facing billing endpoints.
type Handler struct {
	api Client
}

func NewHandler(api Client) *Handler {
	return &Handler{api: api}
}

type checkoutRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

type manualGrantRequest struct {
	UserID string `json:"userId" binding:"required"`
	PlanID string `json:"planId" binding:"required"`
}

// CreateCheckoutSession starts a Stripe Checkout for the selected plan.
// @Summary Create a Stripe Checkout session for a subscription
// @Description Start a Stripe payment for the selected plan. Returns the Stripe session ID and URL to use on the frontend.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param checkout body checkoutRequest true "Plan identifier (UUID or plan type)"
// @Security BearerAuth
// @Success 200 {object} map[string]string "sessionId: ID of the Stripe Checkout session, url: Stripe Checkout URL"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Plan not found"
// @Failure 409 {object} map[string]string "error: You already have an active subscription"
// @Failure 500 {object} map[string]string "error: Stripe error or server error"
// @Router /subscriptions/checkout [post]
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in CreateCheckoutSession")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body checkoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	plan, err := getPlanByIdentifier(body.PlanID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Plan not found in CreateCheckoutSession")
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}

	var existing models.Subscription
	err = db.DB.Where("user_id = ? AND status IN ?", userID, models.CurrentStatuses()).First(&existing).Error
	if err == nil {
		utils.LogErrorWithUser(userID, nil, "Already an active subscription in CreateCheckoutSession")
		c.JSON(http.StatusConflict, gin.H{"error": "You already have an active subscription"})
		return
	}

	customerID, err := h.getOrCreateCustomerID(userID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Error resolving the Stripe customer in CreateCheckoutSession")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error resolving the Stripe customer"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(envOr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success")),
		CancelURL:  stripe.String(envOr("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel")),
	}
	// The webhook reads these back to know which user and plan to write
	params.AddMetadata("userId", fmt.Sprintf("%v", userID))
	params.AddMetadata("planId", plan.ID)

	s, err := h.api.CreateCheckoutSession(params)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Error creating the Stripe session in CreateCheckoutSession")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	utils.LogSuccessWithUser(userID, "Stripe checkout session created in CreateCheckoutSession")
	c.JSON(http.StatusOK, gin.H{"sessionId": s.ID, "url": s.URL})
}

// CreateBillingPortalSession opens the Stripe billing portal for the caller.
// @Summary Create a Stripe billing portal session
// @Description Open the Stripe billing portal so the user can manage payment methods and invoices.
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "url: Stripe billing portal URL"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: No subscription found"
// @Failure 500 {object} map[string]string "error: Stripe error"
// @Router /subscriptions/portal [post]
func (h *Handler) CreateBillingPortalSession(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in CreateBillingPortalSession")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var sub models.Subscription
	if err := db.DB.First(&sub, "user_id = ?", userID).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "No subscription found in CreateBillingPortalSession")
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found"})
		return
	}
	if sub.StripeCustomerID == "" {
		utils.LogErrorWithUser(userID, nil, "No Stripe customer in CreateBillingPortalSession")
		c.JSON(http.StatusNotFound, gin.H{"error": "No Stripe customer for this user"})
		return
	}

	ps, err := h.api.CreateBillingPortalSession(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.StripeCustomerID),
		ReturnURL: stripe.String(envOr("BILLING_PORTAL_RETURN_URL", "http://localhost:3000/account")),
	})
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Error creating the billing portal session in CreateBillingPortalSession")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating the billing portal session"})
		return
	}

	utils.LogSuccessWithUser(userID, "Billing portal session created in CreateBillingPortalSession")
	c.JSON(http.StatusOK, gin.H{"url": ps.URL})
}

// CancelSubscription asks Stripe to cancel at period end and flags the
// local row cancel_pending. Manual grants are canceled locally only.
// @Summary Cancel the current subscription
// @Description Flag the Stripe subscription to cancel at period end and mark the local row cancel_pending. Manual subscriptions are canceled immediately.
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "message: Subscription will be canceled at period end"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: No subscription found"
// @Failure 409 {object} map[string]string "error: No active subscription to cancel"
// @Failure 500 {object} map[string]string "error: Error when canceling the Stripe subscription"
// @Router /subscriptions [delete]
func (h *Handler) CancelSubscription(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in CancelSubscription")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var sub models.Subscription
	if err := db.DB.First(&sub, "user_id = ?", userID).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "Subscription not found in CancelSubscription")
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found"})
		return
	}

	if !sub.IsCurrent() {
		c.JSON(http.StatusConflict, gin.H{"error": "No active subscription to cancel"})
		return
	}

	if sub.IsManual() {
		now := time.Now()
		err := db.DB.Model(&sub).Updates(map[string]interface{}{
			"status":      string(models.SubscriptionCanceled),
			"canceled_at": &now,
			"ended_at":    &now,
		}).Error
		if err != nil {
			utils.LogErrorWithUser(userID, err, "Error canceling the manual subscription in CancelSubscription")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error when updating the subscription status"})
			return
		}
		utils.LogSuccessWithUser(userID, "Manual subscription canceled in CancelSubscription")
		c.JSON(http.StatusOK, gin.H{"message": "Subscription canceled successfully"})
		return
	}

	_, err := h.api.UpdateSubscription(sub.ID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe cancellation error in CancelSubscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error when canceling the Stripe subscription"})
		return
	}

	err = db.DB.Model(&sub).Updates(map[string]interface{}{
		"status":               string(models.SubscriptionCancelPending),
		"cancel_at_period_end": true,
	}).Error
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Error updating the local status in CancelSubscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error when updating the subscription status"})
		return
	}

	utils.LogSuccessWithUser(userID, "Subscription flagged for cancellation in CancelSubscription")
	c.JSON(http.StatusOK, gin.H{"message": "Subscription will be canceled at period end"})
}

// GetSubscription returns the caller's subscription row.
// @Summary Details of the current subscription
// @Description Return the caller's subscription row as mirrored from Stripe.
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Subscription
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: No subscription found"
// @Router /subscriptions [get]
func (h *Handler) GetSubscription(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in GetSubscription")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var sub models.Subscription
	if err := db.DB.First(&sub, "user_id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GrantManualSubscription creates an admin-granted subscription without a
// Stripe counterpart, namespaced by the manual_ prefix.
// @Summary Grant a subscription manually
// @Description Create an active subscription for a user without going through Stripe. The row ID is manual_<userId>.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param grant body manualGrantRequest true "User and plan"
// @Security BearerAuth
// @Success 201 {object} models.Subscription
// @Failure 400 {object} map[string]string "error: Invalid input"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: User or plan not found"
// @Failure 409 {object} map[string]string "error: User already has an active subscription"
// @Failure 500 {object} map[string]string "error: Error creating subscription"
// @Router /subscriptions/manual-grant [post]
func (h *Handler) GrantManualSubscription(c *gin.Context) {
	adminID, _ := c.Get("user_id")

	var body manualGrantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	var user models.User
	if err := db.DB.First(&user, "id = ?", body.UserID).Error; err != nil {
		utils.LogErrorWithUser(adminID, err, "User not found in GrantManualSubscription")
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	plan, err := getPlanByIdentifier(body.PlanID)
	if err != nil {
		utils.LogErrorWithUser(adminID, err, "Plan not found in GrantManualSubscription")
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}

	// Defensive: the schema does not enforce one current row per user
	var existing models.Subscription
	err = db.DB.Where("user_id = ? AND status IN ?", body.UserID, models.CurrentStatuses()).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User already has an active subscription"})
		return
	}

	now := time.Now()
	end := now.AddDate(0, 1, 0)
	if plan.PlanType == "annual" {
		end = now.AddDate(1, 0, 0)
	}

	sub := models.Subscription{
		ID:                 models.ManualSubscriptionPrefix + body.UserID,
		UserID:             body.UserID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
	}
	if err := db.DB.Create(&sub).Error; err != nil {
		utils.LogErrorWithUser(adminID, err, "Error creating the manual subscription in GrantManualSubscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating subscription"})
		return
	}

	utils.LogSuccessWithUser(adminID, "Manual subscription granted to "+body.UserID)
	c.JSON(http.StatusCreated, sub)
}

// getOrCreateCustomerID returns the cached Stripe customer ID from the
// user's subscription row, or creates a fresh customer from the user's
// email. The new ID is deliberately not persisted here: the webhook writes
// it with the subscription row once checkout completes, so an abandoned
// checkout only leaks a customer on the Stripe side.
func (h *Handler) getOrCreateCustomerID(userID interface{}) (string, error) {
	var sub models.Subscription
	if err := db.DB.First(&sub, "user_id = ?", userID).Error; err == nil && sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	var user models.User
	if err := db.DB.First(&user, "id = ?", userID).Error; err != nil {
		return "", err
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
	}
	params.AddMetadata("userId", user.ID)

	cust, err := h.api.CreateCustomer(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

// getPlanByIdentifier disambiguates a UUID (direct lookup) from a plan
// type string (lookup by type among active plans).
func getPlanByIdentifier(identifier string) (*models.Plan, error) {
	var plan models.Plan
	if _, err := uuid.Parse(identifier); err == nil {
		if err := db.DB.First(&plan, "id = ?", identifier).Error; err != nil {
			return nil, err
		}
		return &plan, nil
	}

	if err := db.DB.First(&plan, "plan_type = ? AND active = ?", identifier, true).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
