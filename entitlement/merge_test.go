package entitlement

import (
	"testing"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"

	"github.com/stretchr/testify/assert"
)

func TestMergeLastWriteWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	profile := &models.Profile{
		ID:                 "u1",
		IsPremium:          false,
		SubscriptionStatus: models.SubscriptionInactive,
	}

	update := Update{
		IsPremium:      boolPtr(true),
		Status:         statusPtr(models.SubscriptionActive),
		SubscriptionID: strPtr("sub_1"),
		CustomerID:     strPtr("cus_1"),
		Email:          strPtr("user@example.com"),
	}

	updates := merge(profile, update, now)

	assert.Equal(t, true, updates["is_premium"])
	assert.Equal(t, models.SubscriptionActive, updates["subscription_status"])
	assert.Equal(t, "sub_1", updates["subscription_id"])
	assert.Equal(t, "cus_1", updates["stripe_customer_id"])
	assert.Equal(t, "user@example.com", updates["email"])
	assert.Equal(t, now, updates["updated_at"])
}

func TestMergeEmptyUpdateIsNoop(t *testing.T) {
	profile := &models.Profile{ID: "u1", IsPremium: true, SubscriptionStatus: models.SubscriptionActive}

	updates := merge(profile, Update{}, time.Now())

	assert.Empty(t, updates)
}

func TestMergeUnchangedFieldsAreNotWritten(t *testing.T) {
	profile := &models.Profile{
		ID:                 "u1",
		IsPremium:          true,
		SubscriptionStatus: models.SubscriptionActive,
		SubscriptionID:     "sub_1",
	}

	updates := merge(profile, Update{
		IsPremium:      boolPtr(true),
		Status:         statusPtr(models.SubscriptionActive),
		SubscriptionID: strPtr("sub_1"),
	}, time.Now())

	assert.Empty(t, updates)
}

func TestMergeExpiryOnlyMovesForward(t *testing.T) {
	now := time.Now()
	stored := now.Add(30 * 24 * time.Hour)
	profile := &models.Profile{ID: "u1", SubscriptionExpiry: &stored}

	earlier := now.Add(7 * 24 * time.Hour)
	updates := merge(profile, Update{Expiry: &earlier}, now)
	assert.NotContains(t, updates, "subscription_expiry")

	later := now.Add(60 * 24 * time.Hour)
	updates = merge(profile, Update{Expiry: &later}, now)
	assert.Equal(t, later, updates["subscription_expiry"])
}

func TestMergeEqualExpiryKeepsStoredValue(t *testing.T) {
	now := time.Now()
	stored := now.Add(24 * time.Hour)
	profile := &models.Profile{ID: "u1", SubscriptionExpiry: &stored}

	same := stored
	updates := merge(profile, Update{Expiry: &same}, now)

	assert.Empty(t, updates)
}

func TestMergeExpirySetWhenNoneStored(t *testing.T) {
	now := time.Now()
	profile := &models.Profile{ID: "u1"}

	expiry := now.Add(24 * time.Hour)
	updates := merge(profile, Update{Expiry: &expiry}, now)

	assert.Equal(t, expiry, updates["subscription_expiry"])
}

func TestMergeAuthoritativeCancelMovesExpiryBackward(t *testing.T) {
	now := time.Now()
	stored := now.Add(30 * 24 * time.Hour)
	profile := &models.Profile{
		ID:                 "u1",
		IsPremium:          true,
		SubscriptionStatus: models.SubscriptionActive,
		SubscriptionExpiry: &stored,
	}

	updates := merge(profile, Update{
		IsPremium:           boolPtr(false),
		Status:              statusPtr(models.SubscriptionCanceled),
		AuthoritativeCancel: true,
	}, now)

	assert.Equal(t, false, updates["is_premium"])
	assert.Equal(t, models.SubscriptionCanceled, updates["subscription_status"])
	assert.Equal(t, now, updates["subscription_expiry"])
}

func TestMergeAuthoritativeCancelHonorsExplicitExpiry(t *testing.T) {
	now := time.Now()
	stored := now.Add(30 * 24 * time.Hour)
	profile := &models.Profile{ID: "u1", SubscriptionExpiry: &stored}

	canceledAt := now.Add(-time.Hour)
	updates := merge(profile, Update{Expiry: &canceledAt, AuthoritativeCancel: true}, now)

	assert.Equal(t, canceledAt, updates["subscription_expiry"])
}

func TestMergeEmptyStringsDoNotClearIdentifiers(t *testing.T) {
	profile := &models.Profile{
		ID:               "u1",
		Email:            "user@example.com",
		SubscriptionID:   "sub_1",
		StripeCustomerId: "cus_1",
	}

	updates := merge(profile, Update{
		SubscriptionID: strPtr(""),
		CustomerID:     strPtr(""),
		Email:          strPtr(""),
	}, time.Now())

	assert.Empty(t, updates)
}
