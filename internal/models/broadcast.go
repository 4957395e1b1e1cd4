package models

import "time"

// RecipientStatus is the canonical delivery state of one broadcast recipient
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "Pending"
	RecipientStatusSent      RecipientStatus = "Sent"
	RecipientStatusDelivered RecipientStatus = "Delivered"
	RecipientStatusRead      RecipientStatus = "Read"
	RecipientStatusFailed    RecipientStatus = "Failed"
	RecipientStatusWarning   RecipientStatus = "Warning"
)

// IsSuccess reports whether the status counts toward the broadcast success
// aggregate
func (s RecipientStatus) IsSuccess() bool {
	return s == RecipientStatusSent || s == RecipientStatusDelivered || s == RecipientStatusRead
}

// IsFailure reports whether the status counts toward the broadcast failure
// aggregate
func (s RecipientStatus) IsFailure() bool {
	return s == RecipientStatusFailed
}

// Broadcast aggregates the delivery state of a bulk send
type Broadcast struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Status          string    `json:"status"`
	TotalRecipients int       `json:"totalRecipients"`
	SuccessCount    int       `json:"successCount"`
	FailureCount    int       `json:"failureCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BroadcastRecipient tracks one recipient of a broadcast, located by the Meta
// message id during status reconciliation
type BroadcastRecipient struct {
	ID              string          `json:"id"`
	BroadcastID     string          `json:"broadcastId"`
	ContactID       string          `json:"contactId"`
	Status          RecipientStatus `json:"status"`
	Error           string          `json:"error,omitempty"`
	MessageID       string          `json:"messageId,omitempty"`
	ConversationID  string          `json:"conversationId,omitempty"`
	StatusUpdatedAt *time.Time      `json:"statusUpdatedAt,omitempty"`
}

// RecipientStatusUpdate carries the field changes computed by the reconciler
type RecipientStatusUpdate struct {
	Status          RecipientStatus
	StatusUpdatedAt time.Time
	ClearError      bool
	Error           string
	ConversationID  string
}
