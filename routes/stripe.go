package routes

import (
	"github.com/Captain-Subtext/level5-courseware-sub000/handlers/stripe"
	"github.com/Captain-Subtext/level5-courseware-sub000/middleware"

	"github.com/gin-gonic/gin"
)

func StripeRoutes(r *gin.Engine) {
	api := stripe.NewClient()
	handler := stripe.NewHandler(api)
	webhookHandler := stripe.NewWebhookHandler(api)

	subscriptionRoutes := r.Group("/subscriptions")
	subscriptionRoutes.Use(middleware.JWTAuth())
	{
		subscriptionRoutes.POST("/checkout", handler.CreateCheckoutSession)
		subscriptionRoutes.POST("/portal", handler.CreateBillingPortalSession)
		subscriptionRoutes.DELETE("", handler.CancelSubscription)
		subscriptionRoutes.GET("", handler.GetSubscription)
		subscriptionRoutes.POST("/manual-grant", middleware.AdminAuth(), handler.GrantManualSubscription)
	}

	// No auth middleware: the signature check is the authentication
	r.POST("/stripe/webhook", webhookHandler.HandleWebhook)
}
