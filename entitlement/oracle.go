package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/billing"
	"github.com/CodyKolby/copywritely-ai-sub001/models"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	stripe "github.com/stripe/stripe-go/v82"
)

// BillingAPI is the slice of the billing provider the entitlement subsystem
// uses. *billing.Client satisfies it.
type BillingAPI interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
}

// OracleResult is the authoritative answer from the billing provider.
type OracleResult struct {
	Status    models.SubscriptionStatus
	Premium   bool
	PeriodEnd *time.Time
}

// Oracle queries the billing provider on demand and writes the answer
// through to the entitlement record. Provider unavailability is surfaced as
// ErrProviderUnavailable; callers must not read it as "not premium".
type Oracle struct {
	billing   BillingAPI
	profiles  ProfileRecords
	returnURL string
}

func NewOracle(billingClient BillingAPI, profiles ProfileRecords, returnURL string) *Oracle {
	return &Oracle{billing: billingClient, profiles: profiles, returnURL: returnURL}
}

// Query asks the provider for the current subscription state of a user.
func (o *Oracle) Query(ctx context.Context, userID string) (*OracleResult, error) {
	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// No subscription on record means the provider has nothing to report.
	// That is a conclusive non-premium answer, not an outage.
	if profile.SubscriptionID == "" {
		return &OracleResult{Status: models.SubscriptionInactive}, nil
	}

	sub, err := o.billing.GetSubscription(ctx, profile.SubscriptionID)
	if err != nil {
		if billing.IsNotFound(err) {
			result := &OracleResult{Status: models.SubscriptionCanceled}
			o.writeThrough(ctx, userID, result, true)
			return result, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	status := billing.MapStatus(sub.Status)
	result := &OracleResult{
		Status:  status,
		Premium: status.Premium(),
	}
	if end, ok := billing.PeriodEnd(sub); ok {
		result.PeriodEnd = &end
	}

	immediateCancel := status == models.SubscriptionCanceled && !sub.CancelAtPeriodEnd
	o.writeThrough(ctx, userID, result, immediateCancel)
	return result, nil
}

// PortalURL creates a customer-portal session for the user.
func (o *Oracle) PortalURL(ctx context.Context, userID string) (string, error) {
	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.StripeCustomerId == "" {
		return "", fmt.Errorf("no billing customer for user: %w", ErrNotFound)
	}
	session, err := o.billing.CreatePortalSession(ctx, profile.StripeCustomerId, o.returnURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return session.URL, nil
}

// writeThrough corrects the record with the provider answer. The provider
// wins over whatever was stored; failures only log, the caller already has
// the authoritative value in hand.
func (o *Oracle) writeThrough(ctx context.Context, userID string, result *OracleResult, authoritativeCancel bool) {
	update := Update{
		IsPremium:           boolPtr(result.Premium),
		Status:              statusPtr(result.Status),
		Expiry:              result.PeriodEnd,
		AuthoritativeCancel: authoritativeCancel,
	}
	if _, err := o.profiles.ApplyUpdate(ctx, userID, update); err != nil && !errors.Is(err, context.Canceled) {
		utils.LogErrorWithUser(userID, err, "Oracle write-through failed, record still lags the provider")
	}
}
