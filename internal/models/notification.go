package models

import "time"

// NotificationStatus tracks delivery of an outbound notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is a queued message to a resident about their registration.
type Notification struct {
	ID             int64              `db:"id" json:"id"`
	RegistrationID string             `db:"registration_id" json:"registrationId"`
	Recipient      string             `db:"recipient" json:"recipient"`
	Subject        string             `db:"subject" json:"subject"`
	Body           string             `db:"body" json:"body"`
	Status         NotificationStatus `db:"status" json:"status"`
	Attempts       int                `db:"attempts" json:"attempts"`
	LastError      *string            `db:"last_error" json:"lastError,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
	SentAt         *time.Time         `db:"sent_at" json:"sentAt,omitempty"`
}
