package billing

import (
	"context"
	"errors"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"

	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrWebhookSecretMissing is returned when webhook verification is attempted
// without a configured signing secret. Events are rejected in that case, not
// trusted unverified.
var ErrWebhookSecretMissing = errors.New("stripe webhook secret not configured")

// Client wraps the Stripe API behind an explicit object whose lifetime is
// owned by the process. Handlers receive it by injection.
type Client struct {
	api           *stripeclient.API
	webhookSecret string
}

func NewClient(secretKey, webhookSecret string) *Client {
	return &Client{
		api:           stripeclient.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// ConstructWebhookEvent verifies the signature and parses the event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.webhookSecret == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	return webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
}

// GetCheckoutSession fetches a checkout session with its subscription expanded.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	return c.api.CheckoutSessions.Get(sessionID, params)
}

// GetSubscription fetches a subscription by id.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return c.api.Subscriptions.Get(subscriptionID, params)
}

// CreatePortalSession creates a customer-portal session and returns it.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	return c.api.BillingPortalSessions.New(params)
}

// PeriodEnd extracts the latest current period end across subscription items.
func PeriodEnd(sub *stripe.Subscription) (time.Time, bool) {
	if sub == nil || sub.Items == nil {
		return time.Time{}, false
	}
	var max int64
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > max {
			max = item.CurrentPeriodEnd
		}
	}
	if max == 0 {
		return time.Time{}, false
	}
	return time.Unix(max, 0).UTC(), true
}

// MapStatus converts a provider subscription status to the stored enum.
// Statuses Stripe knows but the record does not (past_due, unpaid,
// incomplete) map to inactive.
func MapStatus(s stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusCanceled:
		return models.SubscriptionCanceled
	case stripe.SubscriptionStatusPaused:
		return models.SubscriptionPaused
	default:
		return models.SubscriptionInactive
	}
}

// IsNotFound reports whether the error is a Stripe resource_missing error, as
// opposed to the provider being unreachable.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
