package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPremiumValid(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		profile Profile
		want    bool
	}{
		{
			name:    "active with future expiry",
			profile: Profile{IsPremium: true, SubscriptionStatus: SubscriptionActive, SubscriptionExpiry: &future},
			want:    true,
		},
		{
			name:    "trialing without expiry",
			profile: Profile{IsPremium: true, SubscriptionStatus: SubscriptionTrialing},
			want:    true,
		},
		{
			name:    "premium with past expiry",
			profile: Profile{IsPremium: true, SubscriptionStatus: SubscriptionActive, SubscriptionExpiry: &past},
			want:    false,
		},
		{
			name:    "premium without expiry",
			profile: Profile{IsPremium: true, SubscriptionStatus: SubscriptionActive},
			want:    false,
		},
		{
			name:    "not premium",
			profile: Profile{IsPremium: false, SubscriptionStatus: SubscriptionActive, SubscriptionExpiry: &future},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.PremiumValid(now))
		})
	}
}

func TestSubscriptionStatusPremium(t *testing.T) {
	assert.True(t, SubscriptionActive.Premium())
	assert.True(t, SubscriptionTrialing.Premium())
	assert.False(t, SubscriptionCanceled.Premium())
	assert.False(t, SubscriptionInactive.Premium())
	assert.False(t, SubscriptionPaused.Premium())
}

func TestSubscriptionStatusNegative(t *testing.T) {
	assert.True(t, SubscriptionCanceled.Negative())
	assert.True(t, SubscriptionExpired.Negative())
	assert.False(t, SubscriptionInactive.Negative())
	assert.False(t, SubscriptionActive.Negative())
}
