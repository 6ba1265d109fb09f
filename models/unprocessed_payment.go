package models

import (
	"time"
)

// UnprocessedPayment stages webhook events that could not be matched to a
// user at ingestion time. Entries are resolved by an out-of-band retry job
// and are never silently dropped.
type UnprocessedPayment struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SessionID string    `json:"sessionId" gorm:"index;not null"`
	RawEvent  string    `json:"rawEvent" gorm:"type:jsonb"`
	Processed bool      `json:"processed" gorm:"default:false"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
