package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracleActiveSubscriptionWritesThrough(t *testing.T) {
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	b := &fakeBilling{sub: &stripe.Subscription{
		ID:     "sub_1",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodEnd: periodEnd.Unix()},
			},
		},
	}}
	profiles := newFakeProfiles(&models.Profile{ID: "u1", SubscriptionID: "sub_1"})
	oracle := NewOracle(b, profiles, "https://app.example.com/account")

	result, err := oracle.Query(context.Background(), "u1")

	require.NoError(t, err)
	assert.True(t, result.Premium)
	assert.Equal(t, models.SubscriptionActive, result.Status)
	require.NotNil(t, result.PeriodEnd)
	assert.Equal(t, periodEnd.UTC(), result.PeriodEnd.UTC())

	stored := profiles.stored("u1")
	assert.True(t, stored.IsPremium, "the provider answer is written through to the record")
	assert.Equal(t, models.SubscriptionActive, stored.SubscriptionStatus)
}

func TestOracleNoSubscriptionOnRecord(t *testing.T) {
	b := &fakeBilling{subErr: errors.New("must not be called")}
	profiles := newFakeProfiles(&models.Profile{ID: "u1"})
	oracle := NewOracle(b, profiles, "")

	result, err := oracle.Query(context.Background(), "u1")

	require.NoError(t, err)
	assert.False(t, result.Premium)
	assert.Equal(t, models.SubscriptionInactive, result.Status)
}

func TestOracleMissingSubscriptionMeansCanceled(t *testing.T) {
	b := &fakeBilling{subErr: &stripe.Error{Code: stripe.ErrorCodeResourceMissing}}
	expiry := time.Now().Add(30 * 24 * time.Hour)
	profiles := newFakeProfiles(&models.Profile{
		ID:                 "u1",
		IsPremium:          true,
		SubscriptionID:     "sub_gone",
		SubscriptionStatus: models.SubscriptionActive,
		SubscriptionExpiry: &expiry,
	})
	oracle := NewOracle(b, profiles, "")

	result, err := oracle.Query(context.Background(), "u1")

	require.NoError(t, err)
	assert.False(t, result.Premium)
	assert.Equal(t, models.SubscriptionCanceled, result.Status)

	stored := profiles.stored("u1")
	assert.False(t, stored.IsPremium)
	assert.Equal(t, models.SubscriptionCanceled, stored.SubscriptionStatus)
	require.NotNil(t, stored.SubscriptionExpiry)
	assert.True(t, stored.SubscriptionExpiry.Before(expiry), "a deleted subscription moves the expiry back immediately")
}

func TestOracleProviderOutageIsNotANegative(t *testing.T) {
	b := &fakeBilling{subErr: errors.New("connection refused")}
	profiles := newFakeProfiles(&models.Profile{ID: "u1", SubscriptionID: "sub_1", IsPremium: true})
	oracle := NewOracle(b, profiles, "")

	_, err := oracle.Query(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.True(t, profiles.stored("u1").IsPremium, "an outage must not touch the record")
}

func TestOracleDeferredCancellationKeepsExpiry(t *testing.T) {
	// cancel_at_period_end: the subscription reports canceled but access runs
	// until the period end already on record.
	expiry := time.Now().Add(20 * 24 * time.Hour)
	b := &fakeBilling{sub: &stripe.Subscription{
		ID:                "sub_1",
		Status:            stripe.SubscriptionStatusCanceled,
		CancelAtPeriodEnd: true,
	}}
	profiles := newFakeProfiles(&models.Profile{
		ID:                 "u1",
		SubscriptionID:     "sub_1",
		SubscriptionExpiry: &expiry,
	})
	oracle := NewOracle(b, profiles, "")

	result, err := oracle.Query(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCanceled, result.Status)

	stored := profiles.stored("u1")
	require.NotNil(t, stored.SubscriptionExpiry)
	assert.Equal(t, expiry.Unix(), stored.SubscriptionExpiry.Unix(), "a deferred cancellation must not shorten the stored expiry")
}

func TestOraclePortalURL(t *testing.T) {
	b := &fakeBilling{portalURL: "https://billing.stripe.com/session/xyz"}
	profiles := newFakeProfiles(&models.Profile{ID: "u1", StripeCustomerId: "cus_1"})
	oracle := NewOracle(b, profiles, "https://app.example.com/account")

	url, err := oracle.PortalURL(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/session/xyz", url)
}

func TestOraclePortalURLWithoutCustomer(t *testing.T) {
	profiles := newFakeProfiles(&models.Profile{ID: "u1"})
	oracle := NewOracle(&fakeBilling{}, profiles, "")

	_, err := oracle.PortalURL(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrNotFound)
}
