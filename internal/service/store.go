package service

import (
	"context"

	"waflow/internal/models"
)

// ContactStore defines the contact persistence needed by the resolver
type ContactStore interface {
	FindContactByPhones(ctx context.Context, userID string, phones []string) (*models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	UpdateContactPhone(ctx context.Context, contactID, phone string) error
	UpdateContactName(ctx context.Context, contactID, name string) error
}

// SessionStore defines the session persistence shared by the resolver and
// executor
type SessionStore interface {
	GetSessionByContactAndFlow(ctx context.Context, contactID, flowID string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSessionState(ctx context.Context, session *models.Session) error
	GetLatestOpenSession(ctx context.Context, contactID, channel string) (*models.Session, error)
}

// FlowStore defines the flow reads used during routing and execution
type FlowStore interface {
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
	ListActiveFlows(ctx context.Context, userID, channel string) ([]models.Flow, error)
}

// UserStore resolves tenants
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.User, error)
}

// SessionLogStore appends and prunes session snapshots
type SessionLogStore interface {
	AppendSessionLog(ctx context.Context, log *models.SessionLog) error
	CleanupOldSessionLogs(ctx context.Context, retentionDays int) error
}

// BroadcastStore defines the persistence used by status reconciliation
type BroadcastStore interface {
	GetRecipientByMessageID(ctx context.Context, userID, messageID string) (*models.BroadcastRecipient, error)
	UpdateRecipientStatus(ctx context.Context, recipientID string, update models.RecipientStatusUpdate) error
	AdjustBroadcastCounters(ctx context.Context, broadcastID string, successDelta, failureDelta int) error
}

// Store is the full persistence surface the engine wires together
type Store interface {
	ContactStore
	SessionStore
	FlowStore
	UserStore
	SessionLogStore
	BroadcastStore
}
