package entitlement

import (
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"
)

// Update is one entitlement write from any source (webhook, oracle,
// verification flow, corrective pass). Nil fields are left untouched.
type Update struct {
	IsPremium      *bool
	Status         *models.SubscriptionStatus
	SubscriptionID *string
	CustomerID     *string
	Email          *string
	Expiry         *time.Time

	// AuthoritativeCancel marks an explicit, immediate cancellation. It is
	// the only case allowed to move SubscriptionExpiry backward.
	AuthoritativeCancel bool
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func statusPtr(s models.SubscriptionStatus) *models.SubscriptionStatus { return &s }

// merge applies an update to a profile and returns the column map to persist.
// Every field is last-write-wins except SubscriptionExpiry, which only moves
// forward unless the update is an authoritative cancellation. This is the
// single place the rule lives; no call site re-implements it.
func merge(p *models.Profile, u Update, now time.Time) map[string]interface{} {
	updates := make(map[string]interface{})

	if u.IsPremium != nil && *u.IsPremium != p.IsPremium {
		updates["is_premium"] = *u.IsPremium
	}
	if u.Status != nil && *u.Status != p.SubscriptionStatus {
		updates["subscription_status"] = *u.Status
	}
	if u.SubscriptionID != nil && *u.SubscriptionID != "" && *u.SubscriptionID != p.SubscriptionID {
		updates["subscription_id"] = *u.SubscriptionID
	}
	if u.CustomerID != nil && *u.CustomerID != "" && *u.CustomerID != p.StripeCustomerId {
		updates["stripe_customer_id"] = *u.CustomerID
	}
	if u.Email != nil && *u.Email != "" && *u.Email != p.Email {
		updates["email"] = *u.Email
	}

	if u.AuthoritativeCancel {
		expiry := now
		if u.Expiry != nil {
			expiry = *u.Expiry
		}
		updates["subscription_expiry"] = expiry
	} else if u.Expiry != nil {
		// Monotonic-forward: an event carrying older data must not shorten
		// an already-extended expiry.
		if p.SubscriptionExpiry == nil || u.Expiry.After(*p.SubscriptionExpiry) {
			updates["subscription_expiry"] = *u.Expiry
		}
	}

	if len(updates) > 0 {
		updates["updated_at"] = now
	}
	return updates
}
