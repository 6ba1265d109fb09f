package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	"golang.org/x/sync/singleflight"
)

// ProfileRecords is the entitlement-record surface the engine depends on.
// *ProfileStore satisfies it.
type ProfileRecords interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	ApplyUpdate(ctx context.Context, userID string, u Update) (*models.Profile, error)
}

// PaymentEvidence is the payment-log surface the engine depends on.
// *PaymentLogStore satisfies it.
type PaymentEvidence interface {
	LatestForUser(ctx context.Context, userID string) (*models.PaymentLog, error)
	BySessionID(ctx context.Context, sessionID string) (*models.PaymentLog, error)
	RecordOnce(ctx context.Context, entry models.PaymentLog) (bool, error)
}

// OracleQuerier is the authoritative provider check. *Oracle satisfies it.
type OracleQuerier interface {
	Query(ctx context.Context, userID string) (*OracleResult, error)
}

type Confidence string

const (
	ConfidenceAuthoritative Confidence = "authoritative"
	ConfidenceDegraded      Confidence = "degraded"
)

// Resolution is the engine's answer. The engine never raises to its caller;
// every failure mode collapses into one of these.
type Resolution struct {
	IsPremium  bool       `json:"isPremium"`
	Confidence Confidence `json:"confidence"`
	Source     string     `json:"source"`
}

// Resolver combines the entitlement record, the provider oracle, the payment
// log and the status cache into one resolved answer with bounded latency.
// Every caller goes through Resolve instead of re-implementing the
// precedence order.
type Resolver struct {
	profiles ProfileRecords
	payments PaymentEvidence
	oracle   OracleQuerier
	cache    *StatusCache

	stepTimeout    time.Duration
	fallbackWindow time.Duration
	group          singleflight.Group
	now            func() time.Time
}

func NewResolver(profiles ProfileRecords, payments PaymentEvidence, oracle OracleQuerier, cache *StatusCache, stepTimeout, fallbackWindow time.Duration) *Resolver {
	return &Resolver{
		profiles:       profiles,
		payments:       payments,
		oracle:         oracle,
		cache:          cache,
		stepTimeout:    stepTimeout,
		fallbackWindow: fallbackWindow,
		now:            time.Now,
	}
}

// Resolve returns the current entitlement for a user. Concurrent calls for
// the same user share one in-flight chain.
func (r *Resolver) Resolve(ctx context.Context, userID string) Resolution {
	v, _, _ := r.group.Do(userID, func() (interface{}, error) {
		return r.resolve(ctx, userID), nil
	})
	return v.(Resolution)
}

func (r *Resolver) resolve(ctx context.Context, userID string) Resolution {
	now := r.now()
	offline := false

	// Steps 1-2: the entitlement record.
	profile, recordErr := step(ctx, r.stepTimeout, func(sc context.Context) (*models.Profile, error) {
		return r.profiles.Get(sc, userID)
	})
	if recordErr == nil {
		if res, done := r.resolveFromRecord(ctx, userID, profile, now); done {
			return res
		}
	} else if unreachable(recordErr) {
		offline = true
	}

	// Step 3: the provider oracle.
	oracleRes, oracleErr := step(ctx, r.stepTimeout, func(sc context.Context) (*OracleResult, error) {
		return r.oracle.Query(sc, userID)
	})
	if oracleErr == nil {
		if oracleRes.Premium {
			r.cache.Write(ctx, userID, true)
			return Resolution{IsPremium: true, Confidence: ConfidenceAuthoritative, Source: "provider"}
		}
		if oracleRes.Status.Negative() {
			r.cache.Write(ctx, userID, false)
			return Resolution{IsPremium: false, Confidence: ConfidenceAuthoritative, Source: "provider"}
		}
	} else if unreachable(oracleErr) {
		offline = true
	}

	// Step 4: payment-log evidence with no later explicit negative.
	entry, logErr := step(ctx, r.stepTimeout, func(sc context.Context) (*models.PaymentLog, error) {
		return r.payments.LatestForUser(sc, userID)
	})
	if logErr == nil && entry != nil {
		r.scheduleCorrection(userID, entry)
		return Resolution{IsPremium: true, Confidence: ConfidenceDegraded, Source: "payment-log"}
	}
	if logErr != nil && unreachable(logErr) {
		offline = true
	}

	// Step 5: the cache, and only to cover an offline window. When every
	// higher source answered and none found an entitlement, a cached true
	// must not override them; when a source was unreachable the cached value
	// stands in, with the overclaim bounded by the cache TTL.
	if offline {
		if value, fresh := r.cache.Read(ctx, userID); fresh {
			return Resolution{IsPremium: value, Confidence: ConfidenceDegraded, Source: "cache"}
		}
	}

	// Step 6: nothing conclusive.
	return Resolution{IsPremium: false, Confidence: ConfidenceAuthoritative, Source: "none"}
}

// unreachable reports whether a step failed because its source could not be
// consulted, as opposed to answering "no data".
func unreachable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrProviderUnavailable)
}

// resolveFromRecord handles precedence steps 1 and 2. The second return
// value reports whether the record was conclusive.
func (r *Resolver) resolveFromRecord(ctx context.Context, userID string, profile *models.Profile, now time.Time) (Resolution, bool) {
	if profile.IsPremium {
		if profile.PremiumValid(now) {
			r.cache.Write(ctx, userID, true)
			return Resolution{IsPremium: true, Confidence: ConfidenceAuthoritative, Source: "record"}, true
		}
		// Premium without trialing status or future expiry violates the
		// record invariant; correct it instead of leaving it inconsistent.
		r.correctInvariant(userID)
		r.cache.Write(ctx, userID, false)
		return Resolution{IsPremium: false, Confidence: ConfidenceAuthoritative, Source: "record"}, true
	}

	if profile.SubscriptionStatus.Negative() {
		// Explicit negatives are trusted immediately, unless payment
		// evidence arrived after the negative was recorded (a re-subscribe
		// the record has not caught up with yet).
		entry, err := step(ctx, r.stepTimeout, func(sc context.Context) (*models.PaymentLog, error) {
			return r.payments.LatestForUser(sc, userID)
		})
		if err == nil && entry != nil && entry.PaidAt.After(profile.UpdatedAt) {
			return Resolution{}, false
		}
		r.cache.Write(ctx, userID, false)
		return Resolution{IsPremium: false, Confidence: ConfidenceAuthoritative, Source: "record"}, true
	}

	// Not premium but no explicit negative either: the record may simply
	// lag the provider. Inconclusive.
	return Resolution{}, false
}

// scheduleCorrection asynchronously brings the entitlement record in line
// with payment evidence. The write runs on a context detached from the
// request so a caller timeout does not cancel the correction.
func (r *Resolver) scheduleCorrection(userID string, entry *models.PaymentLog) {
	expiry := entry.PaidAt.Add(r.fallbackWindow)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.stepTimeout)
		defer cancel()

		update := Update{
			IsPremium:      boolPtr(true),
			Status:         statusPtr(models.SubscriptionActive),
			SubscriptionID: strPtr(entry.SubscriptionID),
			Expiry:         &expiry,
		}
		if _, err := r.profiles.ApplyUpdate(ctx, userID, update); err != nil {
			utils.LogErrorWithUser(userID, err, "Corrective entitlement write from payment evidence failed")
		}
	}()
}

func (r *Resolver) correctInvariant(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.stepTimeout)
		defer cancel()

		update := Update{
			IsPremium: boolPtr(false),
			Status:    statusPtr(models.SubscriptionExpired),
		}
		if _, err := r.profiles.ApplyUpdate(ctx, userID, update); err != nil {
			utils.LogErrorWithUser(userID, err, "Invariant correction on entitlement record failed")
		}
	}()
}

type stepResult[T any] struct {
	value T
	err   error
}

// step races one precedence check against the per-step timebox. A timeout is
// not an error to surface, it is the signal to fall through to the next
// source; the chain never blocks indefinitely.
func step[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	sc, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan stepResult[T], 1)
	go func() {
		value, err := fn(sc)
		ch <- stepResult[T]{value: value, err: err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-sc.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrTransientNetwork, sc.Err())
	}
}
