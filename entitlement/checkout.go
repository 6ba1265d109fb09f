package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/billing"
	"github.com/CodyKolby/copywritely-ai-sub001/models"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/sethvargo/go-retry"
)

type FlowState string

const (
	StateAwaitingAuth    FlowState = "awaiting-auth"
	StateVerifying       FlowState = "verifying"
	StateSuccess         FlowState = "success"
	StateDegradedSuccess FlowState = "degraded-success"
	StateError           FlowState = "error"
)

// VerificationResult is the terminal outcome of a post-checkout run.
type VerificationResult struct {
	State   FlowState       `json:"state"`
	Profile *models.Profile `json:"profile,omitempty"`
	Err     error           `json:"-"`
}

// VerificationFlow drives reconciliation right after a payment redirect:
// wait for the authenticated session, verify the checkout session with the
// provider, write the entitlement, then poll the record until it reflects
// the payment. Once payment is proven the flow never reports failure; an
// unconfirmed record degrades to degraded-success instead.
type VerificationFlow struct {
	billing  BillingAPI
	profiles ProfileRecords
	payments PaymentEvidence
	cache    *StatusCache

	fallbackWindow time.Duration
	authBackoff    time.Duration
	authAttempts   uint64
	pollDelay      time.Duration
	pollAttempts   uint64
	now            func() time.Time
}

func NewVerificationFlow(billingClient BillingAPI, profiles ProfileRecords, payments PaymentEvidence, cache *StatusCache, fallbackWindow time.Duration) *VerificationFlow {
	return &VerificationFlow{
		billing:        billingClient,
		profiles:       profiles,
		payments:       payments,
		cache:          cache,
		fallbackWindow: fallbackWindow,
		authBackoff:    200 * time.Millisecond,
		authAttempts:   4, // 5 tries total
		pollDelay:      300 * time.Millisecond,
		pollAttempts:   5,
		now:            time.Now,
	}
}

// Run executes the state machine for one checkout session.
func (f *VerificationFlow) Run(ctx context.Context, sessionID, userID string) VerificationResult {
	profile, err := f.awaitAuth(ctx, userID)
	if err != nil {
		return VerificationResult{State: StateError, Err: fmt.Errorf("%w: %v", ErrAuthNotReady, err)}
	}

	// Idempotent re-entry: a payment log row for this session is the durable
	// "already processed" marker. Short-circuit without touching the provider
	// again; a session already claimed by another account is refused outright.
	if entry, err := f.payments.BySessionID(ctx, sessionID); err == nil {
		if entry.UserID != userID {
			return VerificationResult{State: StateError, Err: fmt.Errorf("checkout session %s belongs to another account: %w", sessionID, ErrNotFound)}
		}
		return VerificationResult{State: StateSuccess, Profile: profile}
	}

	return f.verify(ctx, sessionID, profile)
}

// awaitAuth is the awaiting-auth state: the profile row appears once the
// authenticated session tied to the checkout lands, so retry the lookup
// with bounded exponential backoff before giving up.
func (f *VerificationFlow) awaitAuth(ctx context.Context, userID string) (*models.Profile, error) {
	var profile *models.Profile
	backoff := retry.WithMaxRetries(f.authAttempts, retry.NewExponential(f.authBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := f.profiles.Get(ctx, userID)
		if err != nil {
			return retry.RetryableError(err)
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// verify is the verifying state.
func (f *VerificationFlow) verify(ctx context.Context, sessionID string, profile *models.Profile) VerificationResult {
	userID := profile.ID
	session, err := f.billing.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if billing.IsNotFound(err) {
			// No session and no log row: there is no proof of payment to
			// fall back on. The only terminal user-facing error.
			return VerificationResult{State: StateError, Err: fmt.Errorf("checkout session %s: %w", sessionID, ErrNotFound)}
		}
		// The provider is unreachable but nothing proves payment yet either.
		return VerificationResult{State: StateError, Err: fmt.Errorf("%w: %v", ErrProviderUnavailable, err)}
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return VerificationResult{State: StateError, Err: fmt.Errorf("checkout session %s is not paid: %w", sessionID, ErrNotFound)}
	}

	// A paid session only proves the payment of the account it was created
	// for; anyone else presenting its id gets nothing.
	if !sessionBelongsTo(session, profile) {
		return VerificationResult{State: StateError, Err: fmt.Errorf("checkout session %s is not tied to this account: %w", sessionID, ErrNotFound)}
	}

	now := f.now()
	subscriptionID, expiry := f.sessionEntitlement(ctx, session, now)

	update := Update{
		IsPremium:      boolPtr(true),
		Status:         statusPtr(models.SubscriptionActive),
		SubscriptionID: strPtr(subscriptionID),
		Expiry:         &expiry,
	}
	if session.Customer != nil {
		update.CustomerID = strPtr(session.Customer.ID)
	}
	if _, err := f.profiles.ApplyUpdate(ctx, userID, update); err != nil {
		utils.LogErrorWithUser(userID, err, "Entitlement write after payment verification failed")
	}

	entry := models.PaymentLog{
		UserID:         userID,
		SessionID:      sessionID,
		SubscriptionID: subscriptionID,
		PaidAt:         now,
	}
	if session.Customer != nil {
		entry.CustomerID = session.Customer.ID
	}
	if session.CustomerDetails != nil {
		entry.CustomerEmail = session.CustomerDetails.Email
	}
	if _, err := f.payments.RecordOnce(ctx, entry); err != nil {
		utils.LogErrorWithUser(userID, err, "Payment log write after verification failed")
	}

	return f.confirm(ctx, userID)
}

// confirm polls the entitlement record a bounded number of times. Payment is
// already proven at this point, so exhausting the poll degrades the outcome
// rather than failing it.
func (f *VerificationFlow) confirm(ctx context.Context, userID string) VerificationResult {
	var profile *models.Profile
	backoff := retry.WithMaxRetries(f.pollAttempts, retry.NewConstant(f.pollDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := f.profiles.Get(ctx, userID)
		if err != nil {
			return retry.RetryableError(err)
		}
		if !p.IsPremium {
			return retry.RetryableError(errors.New("record not premium yet"))
		}
		profile = p
		return nil
	})
	if err != nil {
		utils.LogInfo("Payment verified but the entitlement record did not confirm in time")
		return VerificationResult{State: StateDegradedSuccess}
	}

	f.cache.Write(ctx, userID, true)
	return VerificationResult{State: StateSuccess, Profile: profile}
}

// sessionBelongsTo checks the session against the caller: the embedded user
// reference when the session carries one, the customer email otherwise. A
// session with neither cannot be attributed and is rejected.
func sessionBelongsTo(session *stripe.CheckoutSession, profile *models.Profile) bool {
	if session.ClientReferenceID != "" {
		return session.ClientReferenceID == profile.ID
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" && profile.Email != "" {
		return strings.EqualFold(session.CustomerDetails.Email, profile.Email)
	}
	return false
}

// sessionEntitlement derives the subscription id and expiry from the
// verified session: the provider period end when available, the fixed
// fallback window otherwise.
func (f *VerificationFlow) sessionEntitlement(ctx context.Context, session *stripe.CheckoutSession, now time.Time) (string, time.Time) {
	expiry := now.Add(f.fallbackWindow)
	if session.Subscription == nil {
		return "", expiry
	}

	sub := session.Subscription
	if end, ok := billing.PeriodEnd(sub); ok {
		return sub.ID, end
	}

	// The expanded session may carry a bare subscription reference; fetch it
	// for the real period end but keep the fallback if that fails.
	full, err := f.billing.GetSubscription(ctx, sub.ID)
	if err == nil {
		if end, ok := billing.PeriodEnd(full); ok {
			return sub.ID, end
		}
	}
	return sub.ID, expiry
}
