package entitlement

import "errors"

// Error taxonomy for the reconciliation subsystem. Callers classify with
// errors.Is; the resolver itself never propagates these, it resolves to a
// tri-state outcome instead.
var (
	// ErrTransientNetwork marks failures worth a bounded retry.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrAuthNotReady means the authenticated session tied to a checkout is
	// not visible yet. Wait and retry, bounded.
	ErrAuthNotReady = errors.New("authenticated session not ready")

	// ErrProviderUnavailable means the billing provider could not be reached.
	// It must never be interpreted as "not premium".
	ErrProviderUnavailable = errors.New("billing provider unavailable")

	// ErrDataInconsistency means the provider and the stored record disagree.
	// The provider wins; the record is corrected.
	ErrDataInconsistency = errors.New("provider and record disagree")

	// ErrNotFound covers missing rows. A missing profile is lazily created; a
	// missing checkout session is terminal since there is no proof of payment.
	ErrNotFound = errors.New("not found")
)
