package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"waflow/internal/migrations"
	"waflow/internal/models"
	"waflow/internal/security"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dbPath != ":memory:" {
		file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database file: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Users

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertUserQuery,
			user.ID, user.AccessToken, user.BusinessAccountID, user.PhoneNumberID, user.VerifyToken)
		if err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		return nil
	})
}

func (d *Database) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx, selectUserByIDQuery, id))
}

func (d *Database) GetUserByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx, selectUserByPhoneNumberIDQuery, phoneNumberID))
}

func (d *Database) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var verifyToken sql.NullString
	err := row.Scan(&user.ID, &user.AccessToken, &user.BusinessAccountID,
		&user.PhoneNumberID, &verifyToken, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.VerifyToken = verifyToken.String
	return user, nil
}

// Contacts

func (d *Database) CreateContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}

	encryptedPhone, err := d.encryptor.EncryptIfEnabled(contact.Phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone: %w", err)
	}
	encryptedName, err := d.encryptor.EncryptIfEnabled(contact.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt name: %w", err)
	}

	_, err = d.db.ExecContext(ctx, insertContactQuery,
		contact.ID, contact.UserID, encryptedPhone, LookupHash(contact.Phone), encryptedName)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// FindContactByPhones returns the contact whose phone matches any of the
// given forms, or nil
func (d *Database) FindContactByPhones(ctx context.Context, userID string, phones []string) (*models.Contact, error) {
	if len(phones) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(phones)), ", ")
	args := make([]interface{}, 0, len(phones)+1)
	args = append(args, userID)
	for _, phone := range phones {
		args = append(args, LookupHash(phone))
	}

	query := fmt.Sprintf(selectContactByPhoneHashesQuery, placeholders)
	contact := &models.Contact{}
	var encryptedPhone string
	var encryptedName sql.NullString
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&contact.ID, &contact.UserID, &encryptedPhone, &encryptedName,
		&contact.CreatedAt, &contact.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}

	if contact.Phone, err = d.encryptor.DecryptIfEnabled(encryptedPhone); err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	if contact.Name, err = d.encryptor.DecryptIfEnabled(encryptedName.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt name: %w", err)
	}
	return contact, nil
}

func (d *Database) UpdateContactPhone(ctx context.Context, contactID, phone string) error {
	encryptedPhone, err := d.encryptor.EncryptIfEnabled(phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone: %w", err)
	}
	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateContactPhoneQuery, encryptedPhone, LookupHash(phone), contactID)
		if err != nil {
			return fmt.Errorf("failed to update contact phone: %w", err)
		}
		return nil
	})
}

func (d *Database) UpdateContactName(ctx context.Context, contactID, name string) error {
	encryptedName, err := d.encryptor.EncryptIfEnabled(name)
	if err != nil {
		return fmt.Errorf("failed to encrypt name: %w", err)
	}
	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateContactNameQuery, encryptedName, contactID)
		if err != nil {
			return fmt.Errorf("failed to update contact name: %w", err)
		}
		return nil
	})
}

// Flows

func (d *Database) SaveFlow(ctx context.Context, flow *models.Flow) error {
	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	if flow.Channel == "" {
		flow.Channel = models.ChannelWhatsApp
	}
	if flow.Status == "" {
		flow.Status = models.FlowStatusDraft
	}

	definition, err := json.Marshal(flow.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}
	metadata := ""
	if flow.MetaFlow.Metadata != nil {
		b, err := json.Marshal(flow.MetaFlow.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal meta flow metadata: %w", err)
		}
		metadata = string(b)
	}

	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertFlowQuery,
			flow.ID, flow.UserID, flow.Name, flow.Trigger, string(flow.Status), flow.Channel,
			string(definition), flow.MetaFlow.ID, flow.MetaFlow.Token, flow.MetaFlow.Version,
			flow.MetaFlow.RevisionID, flow.MetaFlow.Status, metadata)
		if err != nil {
			return fmt.Errorf("failed to save flow: %w", err)
		}
		return nil
	})
}

func (d *Database) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	rows, err := d.db.QueryContext(ctx, selectFlowByIDQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	flow, err := scanFlow(rows)
	if err != nil {
		return nil, err
	}
	return flow, rows.Err()
}

func (d *Database) ListActiveFlows(ctx context.Context, userID, channel string) ([]models.Flow, error) {
	rows, err := d.db.QueryContext(ctx, selectActiveFlowsQuery, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []models.Flow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

func scanFlow(rows *sql.Rows) (*models.Flow, error) {
	flow := &models.Flow{}
	var status, definition, metadata string
	err := rows.Scan(&flow.ID, &flow.UserID, &flow.Name, &flow.Trigger, &status, &flow.Channel,
		&definition, &flow.MetaFlow.ID, &flow.MetaFlow.Token, &flow.MetaFlow.Version,
		&flow.MetaFlow.RevisionID, &flow.MetaFlow.Status, &metadata,
		&flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	flow.Status = models.FlowStatus(status)
	if err := json.Unmarshal([]byte(definition), &flow.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &flow.MetaFlow.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meta flow metadata: %w", err)
		}
	}
	return flow, nil
}

// Sessions

func (d *Database) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusActive
	}
	if session.Context == nil {
		session.Context = map[string]interface{}{}
	}

	contextJSON, err := d.marshalContext(session.Context)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, insertSessionQuery,
		session.ID, session.ContactID, session.FlowID, string(session.Status),
		nullableString(session.CurrentNodeID), contextJSON)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (d *Database) GetSessionByContactAndFlow(ctx context.Context, contactID, flowID string) (*models.Session, error) {
	return d.scanSession(d.db.QueryRowContext(ctx, selectSessionByContactAndFlowQuery, contactID, flowID))
}

func (d *Database) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return d.scanSession(d.db.QueryRowContext(ctx, selectSessionByIDQuery, id))
}

// GetLatestOpenSession returns the contact's most recently updated active or
// paused session on the given channel, or nil
func (d *Database) GetLatestOpenSession(ctx context.Context, contactID, channel string) (*models.Session, error) {
	return d.scanSession(d.db.QueryRowContext(ctx, selectLatestOpenSessionQuery, contactID, channel))
}

// UpdateSessionState persists the session's status, position and context
func (d *Database) UpdateSessionState(ctx context.Context, session *models.Session) error {
	contextJSON, err := d.marshalContext(session.Context)
	if err != nil {
		return err
	}
	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateSessionStateQuery,
			string(session.Status), nullableString(session.CurrentNodeID), contextJSON, session.ID)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
}

func (d *Database) scanSession(row *sql.Row) (*models.Session, error) {
	session := &models.Session{}
	var status, contextJSON string
	var currentNodeID sql.NullString
	err := row.Scan(&session.ID, &session.ContactID, &session.FlowID, &status,
		&currentNodeID, &contextJSON, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.Status = models.SessionStatus(status)
	if currentNodeID.Valid {
		session.CurrentNodeID = &currentNodeID.String
	}
	if session.Context, err = d.unmarshalContext(contextJSON); err != nil {
		return nil, err
	}
	return session, nil
}

func (d *Database) marshalContext(context map[string]interface{}) (string, error) {
	if context == nil {
		context = map[string]interface{}{}
	}
	b, err := json.Marshal(context)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context: %w", err)
	}
	return d.encryptor.EncryptIfEnabled(string(b))
}

func (d *Database) unmarshalContext(stored string) (map[string]interface{}, error) {
	plaintext, err := d.encryptor.DecryptIfEnabled(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt context: %w", err)
	}
	out := map[string]interface{}{}
	if plaintext == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(plaintext), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	return out, nil
}

// Broadcasts

func (d *Database) CreateBroadcast(ctx context.Context, broadcast *models.Broadcast) error {
	if broadcast.ID == "" {
		broadcast.ID = uuid.NewString()
	}
	_, err := d.db.ExecContext(ctx, insertBroadcastQuery,
		broadcast.ID, broadcast.UserID, broadcast.Status,
		broadcast.TotalRecipients, broadcast.SuccessCount, broadcast.FailureCount)
	if err != nil {
		return fmt.Errorf("failed to create broadcast: %w", err)
	}
	return nil
}

func (d *Database) GetBroadcast(ctx context.Context, id string) (*models.Broadcast, error) {
	broadcast := &models.Broadcast{}
	err := d.db.QueryRowContext(ctx, selectBroadcastByIDQuery, id).Scan(
		&broadcast.ID, &broadcast.UserID, &broadcast.Status, &broadcast.TotalRecipients,
		&broadcast.SuccessCount, &broadcast.FailureCount,
		&broadcast.CreatedAt, &broadcast.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast: %w", err)
	}
	return broadcast, nil
}

func (d *Database) CreateBroadcastRecipient(ctx context.Context, recipient *models.BroadcastRecipient) error {
	if recipient.ID == "" {
		recipient.ID = uuid.NewString()
	}
	_, err := d.db.ExecContext(ctx, insertBroadcastRecipientQuery,
		recipient.ID, recipient.BroadcastID, recipient.ContactID, string(recipient.Status),
		recipient.Error, recipient.MessageID, recipient.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to create broadcast recipient: %w", err)
	}
	return nil
}

// GetRecipientByMessageID locates a broadcast recipient by Meta message id,
// scoped to the tenant owning the parent broadcast
func (d *Database) GetRecipientByMessageID(ctx context.Context, userID, messageID string) (*models.BroadcastRecipient, error) {
	return scanRecipient(d.db.QueryRowContext(ctx, selectRecipientByMessageIDQuery, messageID, userID))
}

func (d *Database) GetBroadcastRecipient(ctx context.Context, id string) (*models.BroadcastRecipient, error) {
	return scanRecipient(d.db.QueryRowContext(ctx, selectRecipientByIDQuery, id))
}

func scanRecipient(row *sql.Row) (*models.BroadcastRecipient, error) {
	recipient := &models.BroadcastRecipient{}
	var status string
	var statusUpdatedAt sql.NullTime
	err := row.Scan(&recipient.ID, &recipient.BroadcastID, &recipient.ContactID, &status,
		&recipient.Error, &recipient.MessageID, &recipient.ConversationID, &statusUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast recipient: %w", err)
	}
	recipient.Status = models.RecipientStatus(status)
	if statusUpdatedAt.Valid {
		recipient.StatusUpdatedAt = &statusUpdatedAt.Time
	}
	return recipient, nil
}

// UpdateRecipientStatus applies the reconciler's field changes to a recipient
func (d *Database) UpdateRecipientStatus(ctx context.Context, recipientID string, update models.RecipientStatusUpdate) error {
	setClauses := []string{"status_updated_at = ?"}
	args := []interface{}{update.StatusUpdatedAt}

	if update.Status != "" {
		setClauses = append(setClauses, "status = ?")
		args = append(args, string(update.Status))
	}
	if update.ClearError {
		setClauses = append(setClauses, "error = NULL")
	} else if update.Error != "" {
		setClauses = append(setClauses, "error = ?")
		args = append(args, update.Error)
	}
	if update.ConversationID != "" {
		setClauses = append(setClauses, "conversation_id = ?")
		args = append(args, update.ConversationID)
	}

	args = append(args, recipientID)
	query := fmt.Sprintf("UPDATE broadcast_recipients SET %s WHERE id = ?", strings.Join(setClauses, ", "))

	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update broadcast recipient: %w", err)
		}
		return nil
	})
}

// AdjustBroadcastCounters applies success/failure deltas in a single atomic
// update; aggregates are never recomputed from scratch
func (d *Database) AdjustBroadcastCounters(ctx context.Context, broadcastID string, successDelta, failureDelta int) error {
	if successDelta == 0 && failureDelta == 0 {
		return nil
	}
	return withBusyRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, adjustBroadcastCountersQuery, successDelta, failureDelta, broadcastID)
		if err != nil {
			return fmt.Errorf("failed to adjust broadcast counters: %w", err)
		}
		return nil
	})
}

// Session logs

func (d *Database) AppendSessionLog(ctx context.Context, log *models.SessionLog) error {
	contextJSON, err := d.marshalContext(log.Context)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, insertSessionLogQuery, log.SessionID, string(log.Status), contextJSON)
	if err != nil {
		return fmt.Errorf("failed to append session log: %w", err)
	}
	return nil
}

func (d *Database) ListSessionLogs(ctx context.Context, sessionID string) ([]models.SessionLog, error) {
	rows, err := d.db.QueryContext(ctx, selectSessionLogsQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SessionLog
	for rows.Next() {
		var log models.SessionLog
		var status, contextJSON string
		if err := rows.Scan(&log.ID, &log.SessionID, &status, &contextJSON, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session log: %w", err)
		}
		log.Status = models.SessionStatus(status)
		if log.Context, err = d.unmarshalContext(contextJSON); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// CleanupOldSessionLogs removes log snapshots older than retentionDays
func (d *Database) CleanupOldSessionLogs(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	modifier := fmt.Sprintf("-%d days", retentionDays)
	_, err := d.db.ExecContext(ctx, deleteOldSessionLogsQuery, modifier)
	if err != nil {
		return fmt.Errorf("failed to cleanup session logs: %w", err)
	}
	return nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
