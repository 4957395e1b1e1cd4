package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"waflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "waflow-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *Database) *models.User {
	t.Helper()
	user := &models.User{
		AccessToken:       "token",
		BusinessAccountID: "waba-1",
		PhoneNumberID:     "555000",
		VerifyToken:       "verify",
	}
	require.NoError(t, db.SaveUser(context.Background(), user))
	return user
}

func TestUserRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)

	loaded, err := db.GetUserByPhoneNumberID(context.Background(), "555000")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, user.ID, loaded.ID)
	assert.Equal(t, "token", loaded.AccessToken)
	assert.Equal(t, "verify", loaded.VerifyToken)

	missing, err := db.GetUserByPhoneNumberID(context.Background(), "000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := db.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
}

func TestContactUniqueConstraint(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	ctx := context.Background()

	contact := &models.Contact{UserID: user.ID, Phone: "5491122223333", Name: "Ada"}
	require.NoError(t, db.CreateContact(ctx, contact))

	duplicate := &models.Contact{UserID: user.ID, Phone: "5491122223333"}
	err := db.CreateContact(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, IsUniqueConstraintError(err))
}

func TestFindContactByPhones(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	ctx := context.Background()

	contact := &models.Contact{UserID: user.ID, Phone: "5491122223333", Name: "Ada"}
	require.NoError(t, db.CreateContact(ctx, contact))

	found, err := db.FindContactByPhones(ctx, user.ID, []string{"nope", "5491122223333"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, contact.ID, found.ID)
	assert.Equal(t, "Ada", found.Name)

	none, err := db.FindContactByPhones(ctx, user.ID, []string{"0000000"})
	require.NoError(t, err)
	assert.Nil(t, none)

	empty, err := db.FindContactByPhones(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestContactUpdates(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	ctx := context.Background()

	contact := &models.Contact{UserID: user.ID, Phone: "+5491122223333"}
	require.NoError(t, db.CreateContact(ctx, contact))

	require.NoError(t, db.UpdateContactPhone(ctx, contact.ID, "5491122223333"))
	require.NoError(t, db.UpdateContactName(ctx, contact.ID, "Ada"))

	found, err := db.FindContactByPhones(ctx, user.ID, []string{"5491122223333"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "5491122223333", found.Phone)
	assert.Equal(t, "Ada", found.Name)
}

func sampleDefinition() models.FlowDefinition {
	return models.FlowDefinition{
		Nodes: []models.Node{
			{ID: "t1", Type: models.NodeTrigger, Data: map[string]interface{}{"keyword": "hola"}},
			{ID: "e1", Type: models.NodeEnd, Data: map[string]interface{}{}},
		},
		Edges: []models.Edge{
			{ID: "edge-1", Source: "t1", Target: "e1"},
		},
	}
}

func TestFlowRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	ctx := context.Background()

	flow := &models.Flow{
		UserID:     user.ID,
		Name:       "Greeting",
		Trigger:    "hola",
		Status:     models.FlowStatusActive,
		Channel:    models.ChannelWhatsApp,
		Definition: sampleDefinition(),
		MetaFlow:   models.MetaFlowInfo{ID: "mf-1", Token: "tok", Metadata: map[string]interface{}{"k": "v"}},
	}
	require.NoError(t, db.SaveFlow(ctx, flow))

	loaded, err := db.GetFlow(ctx, flow.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Greeting", loaded.Name)
	assert.Equal(t, models.FlowStatusActive, loaded.Status)
	require.Len(t, loaded.Definition.Nodes, 2)
	assert.Equal(t, "hola", loaded.Definition.Nodes[0].Data["keyword"])
	assert.Equal(t, "mf-1", loaded.MetaFlow.ID)
	assert.Equal(t, "v", loaded.MetaFlow.Metadata["k"])

	// Upsert keeps the id and bumps the row
	flow.Name = "Renamed"
	require.NoError(t, db.SaveFlow(ctx, flow))
	loaded, err = db.GetFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Name)

	missing, err := db.GetFlow(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListActiveFlows(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	ctx := context.Background()

	for _, spec := range []struct {
		name   string
		status models.FlowStatus
	}{
		{"active-1", models.FlowStatusActive},
		{"draft-1", models.FlowStatusDraft},
		{"active-2", models.FlowStatusActive},
	} {
		flow := &models.Flow{
			UserID:     user.ID,
			Name:       spec.name,
			Status:     spec.status,
			Channel:    models.ChannelWhatsApp,
			Definition: sampleDefinition(),
		}
		require.NoError(t, db.SaveFlow(ctx, flow))
	}

	flows, err := db.ListActiveFlows(ctx, user.ID, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Len(t, flows, 2)
	for _, flow := range flows {
		assert.Equal(t, models.FlowStatusActive, flow.Status)
	}
}

func seedContactAndFlow(t *testing.T, db *Database, user *models.User) (*models.Contact, *models.Flow) {
	t.Helper()
	ctx := context.Background()
	contact := &models.Contact{UserID: user.ID, Phone: "5491122223333"}
	require.NoError(t, db.CreateContact(ctx, contact))
	flow := &models.Flow{
		UserID: user.ID, Name: "f", Status: models.FlowStatusActive,
		Channel: models.ChannelWhatsApp, Definition: sampleDefinition(),
	}
	require.NoError(t, db.SaveFlow(ctx, flow))
	return contact, flow
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	contact, flow := seedContactAndFlow(t, db, user)
	ctx := context.Background()

	session := &models.Session{
		ContactID: contact.ID,
		FlowID:    flow.ID,
		Status:    models.SessionStatusActive,
		Context:   map[string]interface{}{"k": "v"},
	}
	require.NoError(t, db.CreateSession(ctx, session))

	// Unique (contact_id, flow_id)
	dup := &models.Session{ContactID: contact.ID, FlowID: flow.ID}
	err := db.CreateSession(ctx, dup)
	require.Error(t, err)
	assert.True(t, IsUniqueConstraintError(err))

	loaded, err := db.GetSessionByContactAndFlow(ctx, contact.ID, flow.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "v", loaded.Context["k"])
	assert.Nil(t, loaded.CurrentNodeID)

	node := "n1"
	loaded.Status = models.SessionStatusPaused
	loaded.CurrentNodeID = &node
	loaded.Context["step"] = float64(2)
	require.NoError(t, db.UpdateSessionState(ctx, loaded))

	open, err := db.GetLatestOpenSession(ctx, contact.ID, models.ChannelWhatsApp)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, models.SessionStatusPaused, open.Status)
	require.NotNil(t, open.CurrentNodeID)
	assert.Equal(t, "n1", *open.CurrentNodeID)
	assert.Equal(t, float64(2), open.Context["step"])

	// Terminal sessions are not "open"
	open.Status = models.SessionStatusCompleted
	open.CurrentNodeID = nil
	require.NoError(t, db.UpdateSessionState(ctx, open))
	none, err := db.GetLatestOpenSession(ctx, contact.ID, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBroadcastCountersAtomicDeltas(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	contact, _ := seedContactAndFlow(t, db, user)
	ctx := context.Background()

	broadcast := &models.Broadcast{UserID: user.ID, Status: "sending", TotalRecipients: 2}
	require.NoError(t, db.CreateBroadcast(ctx, broadcast))

	recipient := &models.BroadcastRecipient{
		BroadcastID: broadcast.ID,
		ContactID:   contact.ID,
		Status:      models.RecipientStatusPending,
		MessageID:   "wamid.r1",
	}
	require.NoError(t, db.CreateBroadcastRecipient(ctx, recipient))

	require.NoError(t, db.AdjustBroadcastCounters(ctx, broadcast.ID, 1, 0))
	require.NoError(t, db.AdjustBroadcastCounters(ctx, broadcast.ID, -1, 1))
	require.NoError(t, db.AdjustBroadcastCounters(ctx, broadcast.ID, 0, 0))

	loaded, err := db.GetBroadcast(ctx, broadcast.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.SuccessCount)
	assert.Equal(t, 1, loaded.FailureCount)
}

func TestRecipientStatusUpdate(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	contact, _ := seedContactAndFlow(t, db, user)
	ctx := context.Background()

	broadcast := &models.Broadcast{UserID: user.ID, Status: "sending", TotalRecipients: 1}
	require.NoError(t, db.CreateBroadcast(ctx, broadcast))
	recipient := &models.BroadcastRecipient{
		BroadcastID: broadcast.ID,
		ContactID:   contact.ID,
		Status:      models.RecipientStatusPending,
		MessageID:   "wamid.r1",
	}
	require.NoError(t, db.CreateBroadcastRecipient(ctx, recipient))

	found, err := db.GetRecipientByMessageID(ctx, user.ID, "wamid.r1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, recipient.ID, found.ID)

	// Scoped to the owning tenant
	otherUser := &models.User{AccessToken: "t", BusinessAccountID: "w2", PhoneNumberID: "556000"}
	require.NoError(t, db.SaveUser(ctx, otherUser))
	scoped, err := db.GetRecipientByMessageID(ctx, otherUser.ID, "wamid.r1")
	require.NoError(t, err)
	assert.Nil(t, scoped)

	update := models.RecipientStatusUpdate{
		Status:          models.RecipientStatusFailed,
		StatusUpdatedAt: parseTimeMust(t, "2026-01-02T03:04:05Z"),
		Error:           "Phone not on WhatsApp",
		ConversationID:  "conv-1",
	}
	require.NoError(t, db.UpdateRecipientStatus(ctx, recipient.ID, update))

	updated, err := db.GetBroadcastRecipient(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusFailed, updated.Status)
	assert.Equal(t, "Phone not on WhatsApp", updated.Error)
	assert.Equal(t, "conv-1", updated.ConversationID)
	require.NotNil(t, updated.StatusUpdatedAt)

	// Clearing the error on recovery
	require.NoError(t, db.UpdateRecipientStatus(ctx, recipient.ID, models.RecipientStatusUpdate{
		Status:          models.RecipientStatusSent,
		StatusUpdatedAt: parseTimeMust(t, "2026-01-02T04:00:00Z"),
		ClearError:      true,
	}))
	updated, err = db.GetBroadcastRecipient(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Error)
	assert.Equal(t, models.RecipientStatusSent, updated.Status)
}

func TestSessionLogs(t *testing.T) {
	db := newTestDatabase(t)
	user := seedUser(t, db)
	contact, flow := seedContactAndFlow(t, db, user)
	ctx := context.Background()

	session := &models.Session{ContactID: contact.ID, FlowID: flow.ID}
	require.NoError(t, db.CreateSession(ctx, session))

	require.NoError(t, db.AppendSessionLog(ctx, &models.SessionLog{
		SessionID: session.ID,
		Status:    models.SessionStatusCompleted,
		Context:   map[string]interface{}{"endReason": "end"},
	}))

	logs, err := db.ListSessionLogs(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SessionStatusCompleted, logs[0].Status)
	assert.Equal(t, "end", logs[0].Context["endReason"])

	require.NoError(t, db.CleanupOldSessionLogs(ctx, 30))
	logs, err = db.ListSessionLogs(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestInvalidDatabasePath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../../../etc/passwd\x00")
	assert.Error(t, err)
}

func parseTimeMust(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
