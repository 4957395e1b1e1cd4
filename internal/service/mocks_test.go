package service

import (
	"context"

	"waflow/internal/models"
	metatypes "waflow/pkg/meta/types"

	"github.com/stretchr/testify/mock"
)

// mockStore implements Store
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindContactByPhones(ctx context.Context, userID string, phones []string) (*models.Contact, error) {
	args := m.Called(ctx, userID, phones)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *mockStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	args := m.Called(ctx, contact)
	if contact.ID == "" {
		contact.ID = "contact-1"
	}
	return args.Error(0)
}

func (m *mockStore) UpdateContactPhone(ctx context.Context, contactID, phone string) error {
	args := m.Called(ctx, contactID, phone)
	return args.Error(0)
}

func (m *mockStore) UpdateContactName(ctx context.Context, contactID, name string) error {
	args := m.Called(ctx, contactID, name)
	return args.Error(0)
}

func (m *mockStore) GetSessionByContactAndFlow(ctx context.Context, contactID, flowID string) (*models.Session, error) {
	args := m.Called(ctx, contactID, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockStore) CreateSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	if session.ID == "" {
		session.ID = "session-1"
	}
	return args.Error(0)
}

func (m *mockStore) UpdateSessionState(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockStore) GetLatestOpenSession(ctx context.Context, contactID, channel string) (*models.Session, error) {
	args := m.Called(ctx, contactID, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockStore) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *mockStore) ListActiveFlows(ctx context.Context, userID, channel string) ([]models.Flow, error) {
	args := m.Called(ctx, userID, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Flow), args.Error(1)
}

func (m *mockStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStore) GetUserByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.User, error) {
	args := m.Called(ctx, phoneNumberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStore) AppendSessionLog(ctx context.Context, log *models.SessionLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *mockStore) CleanupOldSessionLogs(ctx context.Context, retentionDays int) error {
	args := m.Called(ctx, retentionDays)
	return args.Error(0)
}

func (m *mockStore) GetRecipientByMessageID(ctx context.Context, userID, messageID string) (*models.BroadcastRecipient, error) {
	args := m.Called(ctx, userID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BroadcastRecipient), args.Error(1)
}

func (m *mockStore) UpdateRecipientStatus(ctx context.Context, recipientID string, update models.RecipientStatusUpdate) error {
	args := m.Called(ctx, recipientID, update)
	return args.Error(0)
}

func (m *mockStore) AdjustBroadcastCounters(ctx context.Context, broadcastID string, successDelta, failureDelta int) error {
	args := m.Called(ctx, broadcastID, successDelta, failureDelta)
	return args.Error(0)
}

// mockSender implements metatypes.Sender
type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, creds metatypes.Credentials, msg metatypes.TextMessage) (*metatypes.SendResult, error) {
	args := m.Called(ctx, creds, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metatypes.SendResult), args.Error(1)
}

func (m *mockSender) SendMedia(ctx context.Context, creds metatypes.Credentials, msg metatypes.MediaMessage) (*metatypes.SendResult, error) {
	args := m.Called(ctx, creds, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metatypes.SendResult), args.Error(1)
}

func (m *mockSender) SendOptions(ctx context.Context, creds metatypes.Credentials, msg metatypes.OptionsMessage) (*metatypes.SendResult, error) {
	args := m.Called(ctx, creds, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metatypes.SendResult), args.Error(1)
}

func (m *mockSender) SendList(ctx context.Context, creds metatypes.Credentials, msg metatypes.ListMessage) (*metatypes.SendResult, error) {
	args := m.Called(ctx, creds, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metatypes.SendResult), args.Error(1)
}

func (m *mockSender) SendFlow(ctx context.Context, creds metatypes.Credentials, msg metatypes.FlowMessage) (*metatypes.SendResult, error) {
	args := m.Called(ctx, creds, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metatypes.SendResult), args.Error(1)
}

func (m *mockSender) SendTemplate(ctx context.Context, creds metatypes.Credentials, msg metatypes.TemplateMessage) (*metatypes.SendResult, error) {
	args := m.Called(ctx, creds, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metatypes.SendResult), args.Error(1)
}
