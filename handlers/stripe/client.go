package stripe

import (
	"os"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	stripeSubscription "github.com/stripe/stripe-go/v82/subscription"
)

// Client is the slice of the Stripe API used by the billing handlers. The
// webhook handlers re-fetch authoritative state through it rather than
// trusting event payloads, and tests substitute it to control what a
// re-fetch returns.
type Client interface {
	GetSubscription(id string) (*stripe.Subscription, error)
	UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CreateCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateBillingPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

type liveClient struct{}

// NewClient configures the global Stripe key from the environment and
// returns the live API client.
func NewClient() Client {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	return &liveClient{}
}

func (l *liveClient) GetSubscription(id string) (*stripe.Subscription, error) {
	return stripeSubscription.Get(id, nil)
}

func (l *liveClient) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return stripeSubscription.Update(id, params)
}

func (l *liveClient) CreateCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(params)
}

func (l *liveClient) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return checkoutsession.New(params)
}

func (l *liveClient) CreateBillingPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return portalsession.New(params)
}
