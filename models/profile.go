package models

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionPaused   SubscriptionStatus = "paused"
)

// Premium reports whether the status alone grants premium access.
func (s SubscriptionStatus) Premium() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Negative reports whether the status is an explicit negative: a recorded
// cancellation or expiry, as opposed to "never subscribed".
func (s SubscriptionStatus) Negative() bool {
	return s == SubscriptionCanceled || s == SubscriptionExpired
}

// Profile is the per-user entitlement record. The ID is the authenticated
// user id; the row is created lazily on first authentication.
type Profile struct {
	ID                 string             `json:"id" gorm:"primaryKey;type:uuid"`
	Email              string             `json:"email" gorm:"index"`
	UserName           string             `json:"username"`
	StripeCustomerId   string             `json:"stripeCustomerId" gorm:"index"`
	IsPremium          bool               `json:"isPremium"`
	SubscriptionID     string             `json:"subscriptionId" gorm:"index"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus" gorm:"type:varchar(20);default:'inactive'"`
	SubscriptionExpiry *time.Time         `json:"subscriptionExpiry"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// PremiumValid reports whether IsPremium is backed by a trialing status or an
// unexpired subscription. IsPremium=true without either is an invariant
// violation and must be corrected to false by the next reconciliation pass.
func (p *Profile) PremiumValid(now time.Time) bool {
	if !p.IsPremium {
		return false
	}
	if p.SubscriptionStatus == SubscriptionTrialing {
		return true
	}
	return p.SubscriptionExpiry != nil && p.SubscriptionExpiry.After(now)
}
