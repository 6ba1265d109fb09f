package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"

	stripe "github.com/stripe/stripe-go/v82"
)

// applyColumns mirrors the store write in memory so flow and resolver tests
// exercise the real merge rules.
func applyColumns(p *models.Profile, updates map[string]interface{}) {
	for column, value := range updates {
		switch column {
		case "is_premium":
			p.IsPremium = value.(bool)
		case "subscription_status":
			p.SubscriptionStatus = value.(models.SubscriptionStatus)
		case "subscription_id":
			p.SubscriptionID = value.(string)
		case "stripe_customer_id":
			p.StripeCustomerId = value.(string)
		case "email":
			p.Email = value.(string)
		case "subscription_expiry":
			expiry := value.(time.Time)
			p.SubscriptionExpiry = &expiry
		case "updated_at":
			p.UpdatedAt = value.(time.Time)
		}
	}
}

type fakeProfiles struct {
	mu            sync.Mutex
	profiles      map[string]*models.Profile
	getDelay      time.Duration
	failGets      int
	ignoreUpdates bool
	getCalls      int
	updates       []Update
}

func newFakeProfiles(profiles ...*models.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[string]*models.Profile)}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (*models.Profile, error) {
	if f.getDelay > 0 {
		select {
		case <-time.After(f.getDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failGets > 0 {
		f.failGets--
		return nil, ErrNotFound
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfiles) ApplyUpdate(ctx context.Context, userID string, u Update) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	f.updates = append(f.updates, u)
	if !f.ignoreUpdates {
		applyColumns(p, merge(p, u, time.Now()))
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfiles) stored(userID string) *models.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[userID]; ok {
		copied := *p
		return &copied
	}
	return nil
}

func (f *fakeProfiles) appliedUpdates() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Update(nil), f.updates...)
}

func (f *fakeProfiles) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type fakePayments struct {
	mu      sync.Mutex
	entries []models.PaymentLog
	delay   time.Duration
}

func (f *fakePayments) wait(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakePayments) LatestForUser(ctx context.Context, userID string) (*models.PaymentLog, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.PaymentLog
	for i := range f.entries {
		entry := f.entries[i]
		if entry.UserID != userID {
			continue
		}
		if latest == nil || entry.PaidAt.After(latest.PaidAt) {
			latest = &entry
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakePayments) BySessionID(ctx context.Context, sessionID string) (*models.PaymentLog, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].SessionID == sessionID {
			copied := f.entries[i]
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakePayments) RecordOnce(ctx context.Context, entry models.PaymentLog) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].SessionID == entry.SessionID {
			return false, nil
		}
	}
	f.entries = append(f.entries, entry)
	return true, nil
}

func (f *fakePayments) countBySession(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for i := range f.entries {
		if f.entries[i].SessionID == sessionID {
			count++
		}
	}
	return count
}

type fakeOracle struct {
	mu     sync.Mutex
	result *OracleResult
	err    error
	delay  time.Duration
	called int
}

func (f *fakeOracle) Query(ctx context.Context, userID string) (*OracleResult, error) {
	f.mu.Lock()
	f.called++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeOracle) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

type fakeBilling struct {
	mu           sync.Mutex
	session      *stripe.CheckoutSession
	sessionErr   error
	sub          *stripe.Subscription
	subErr       error
	portalURL    string
	portalErr    error
	sessionCalls int
}

func (f *fakeBilling) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	f.sessionCalls++
	f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeBilling) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return f.sub, f.subErr
}

func (f *fakeBilling) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	if f.portalErr != nil {
		return nil, f.portalErr
	}
	return &stripe.BillingPortalSession{URL: f.portalURL}, nil
}

func (f *fakeBilling) checkoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCalls
}
