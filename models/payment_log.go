package models

import (
	"time"
)

// PaymentLog is append-only proof of a completed checkout. Rows are never
// updated or deleted; the unique session id makes duplicate webhook delivery
// a no-op beyond the first successful write.
type PaymentLog struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID         string    `json:"userId" gorm:"type:uuid;not null;index"`
	SessionID      string    `json:"sessionId" gorm:"uniqueIndex;not null"`
	SubscriptionID string    `json:"subscriptionId"`
	CustomerID     string    `json:"customerId" gorm:"index"`
	CustomerEmail  string    `json:"customerEmail"`
	PaidAt         time.Time `json:"paidAt"`
	CreatedAt      time.Time `json:"createdAt"`
}
