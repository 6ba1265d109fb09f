package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/models"

	"gorm.io/gorm"
)

// ProfileStore persists entitlement records. Profiles are lazily created on
// first authentication and never deleted.
type ProfileStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// GetOrCreate returns the profile for a user, creating an empty record on
// first authentication.
func (s *ProfileStore) GetOrCreate(ctx context.Context, userID, email string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).
		Where(models.Profile{ID: userID}).
		Attrs(models.Profile{Email: email, SubscriptionStatus: models.SubscriptionInactive}).
		FirstOrCreate(&profile).Error
	if err != nil {
		return nil, fmt.Errorf("get or create profile: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile by email: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile by email: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "subscription_id = ?", subscriptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile by subscription: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile by subscription: %w", err)
	}
	return &profile, nil
}

// ApplyUpdate runs the central merge against the stored record and persists
// the result. This is the only write path for entitlement fields; the
// read-modify-write is guarded by the session-id uniqueness on payment logs,
// not by cross-row locking.
func (s *ProfileStore) ApplyUpdate(ctx context.Context, userID string, u Update) (*models.Profile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := merge(profile, u, s.now())
	if len(updates) == 0 {
		return profile, nil
	}

	err = s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", userID).Updates(updates).Error
	if err != nil {
		return nil, fmt.Errorf("apply entitlement update: %w", err)
	}
	return s.Get(ctx, userID)
}

// PaymentLogStore persists proof-of-payment rows. Rows are append-only.
type PaymentLogStore struct {
	db *gorm.DB
}

func NewPaymentLogStore(db *gorm.DB) *PaymentLogStore {
	return &PaymentLogStore{db: db}
}

// RecordOnce inserts the entry if no row with the same session id exists.
// Returns whether a row was created; duplicate delivery is a no-op. The
// unique constraint on session_id closes the race between concurrent
// deliveries of the same event.
func (s *PaymentLogStore) RecordOnce(ctx context.Context, entry models.PaymentLog) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PaymentLog{}).
		Where("session_id = ?", entry.SessionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check payment log: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("record payment: %w", err)
	}
	return true, nil
}

func (s *PaymentLogStore) BySessionID(ctx context.Context, sessionID string) (*models.PaymentLog, error) {
	var entry models.PaymentLog
	err := s.db.WithContext(ctx).First(&entry, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment log by session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment log: %w", err)
	}
	return &entry, nil
}

func (s *PaymentLogStore) ByCustomerID(ctx context.Context, customerID string) (*models.PaymentLog, error) {
	var entry models.PaymentLog
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("paid_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment log by customer: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment log by customer: %w", err)
	}
	return &entry, nil
}

// LatestForUser returns the most recent payment evidence for a user.
func (s *PaymentLogStore) LatestForUser(ctx context.Context, userID string) (*models.PaymentLog, error) {
	var entry models.PaymentLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("paid_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment log for user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest payment log: %w", err)
	}
	return &entry, nil
}

// UnprocessedStore stages webhook events that could not be matched to a user.
type UnprocessedStore struct {
	db *gorm.DB
}

func NewUnprocessedStore(db *gorm.DB) *UnprocessedStore {
	return &UnprocessedStore{db: db}
}

// Stage persists an unmatched event. The write contract: never dropped, the
// retry job resolves entries out of band.
func (s *UnprocessedStore) Stage(ctx context.Context, sessionID string, rawEvent []byte) error {
	entry := models.UnprocessedPayment{
		SessionID: sessionID,
		RawEvent:  string(rawEvent),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("stage unprocessed payment: %w", err)
	}
	return nil
}

func (s *UnprocessedStore) MarkProcessed(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.UnprocessedPayment{}).
		Where("session_id = ? AND processed = ?", sessionID, false).
		Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("mark unprocessed payment: %w", err)
	}
	return nil
}
