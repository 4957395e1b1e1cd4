package database

// User queries
const (
	insertUserQuery = `
		INSERT INTO users (id, access_token, business_account_id, phone_number_id, verify_token)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			business_account_id = excluded.business_account_id,
			phone_number_id = excluded.phone_number_id,
			verify_token = excluded.verify_token,
			updated_at = CURRENT_TIMESTAMP
	`

	selectUserByIDQuery = `
		SELECT id, access_token, business_account_id, phone_number_id, verify_token,
		       created_at, updated_at
		FROM users
		WHERE id = ?
	`

	selectUserByPhoneNumberIDQuery = `
		SELECT id, access_token, business_account_id, phone_number_id, verify_token,
		       created_at, updated_at
		FROM users
		WHERE phone_number_id = ?
	`
)

// Contact queries
const (
	insertContactQuery = `
		INSERT INTO contacts (id, user_id, phone, phone_hash, name)
		VALUES (?, ?, ?, ?, ?)
	`

	selectContactByPhoneHashesQuery = `
		SELECT id, user_id, phone, name, created_at, updated_at
		FROM contacts
		WHERE user_id = ? AND phone_hash IN (%s)
		ORDER BY created_at
		LIMIT 1
	`

	updateContactPhoneQuery = `
		UPDATE contacts
		SET phone = ?, phone_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	updateContactNameQuery = `
		UPDATE contacts
		SET name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
)

// Flow queries
const (
	upsertFlowQuery = `
		INSERT INTO flows (
			id, user_id, name, trigger_keyword, status, channel, definition,
			meta_flow_id, meta_flow_token, meta_flow_version,
			meta_flow_revision_id, meta_flow_status, meta_flow_metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trigger_keyword = excluded.trigger_keyword,
			status = excluded.status,
			channel = excluded.channel,
			definition = excluded.definition,
			meta_flow_id = excluded.meta_flow_id,
			meta_flow_token = excluded.meta_flow_token,
			meta_flow_version = excluded.meta_flow_version,
			meta_flow_revision_id = excluded.meta_flow_revision_id,
			meta_flow_status = excluded.meta_flow_status,
			meta_flow_metadata = excluded.meta_flow_metadata,
			updated_at = CURRENT_TIMESTAMP
	`

	selectFlowColumns = `
		id, user_id, name, trigger_keyword, status, channel, definition,
		COALESCE(meta_flow_id, ''), COALESCE(meta_flow_token, ''),
		COALESCE(meta_flow_version, ''), COALESCE(meta_flow_revision_id, ''),
		COALESCE(meta_flow_status, ''), COALESCE(meta_flow_metadata, ''),
		created_at, updated_at
	`

	selectFlowByIDQuery = `
		SELECT ` + selectFlowColumns + `
		FROM flows
		WHERE id = ?
	`

	selectActiveFlowsQuery = `
		SELECT ` + selectFlowColumns + `
		FROM flows
		WHERE user_id = ? AND status = 'active' AND channel = ?
		ORDER BY updated_at DESC
	`
)

// Session queries
const (
	insertSessionQuery = `
		INSERT INTO sessions (id, contact_id, flow_id, status, current_node_id, context)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectSessionColumns = `
		id, contact_id, flow_id, status, current_node_id, context, created_at, updated_at
	`

	selectSessionByContactAndFlowQuery = `
		SELECT ` + selectSessionColumns + `
		FROM sessions
		WHERE contact_id = ? AND flow_id = ?
	`

	selectSessionByIDQuery = `
		SELECT ` + selectSessionColumns + `
		FROM sessions
		WHERE id = ?
	`

	selectLatestOpenSessionQuery = `
		SELECT s.id, s.contact_id, s.flow_id, s.status, s.current_node_id, s.context,
		       s.created_at, s.updated_at
		FROM sessions s
		JOIN flows f ON f.id = s.flow_id
		WHERE s.contact_id = ? AND s.status IN ('active', 'paused') AND f.channel = ?
		ORDER BY s.updated_at DESC
		LIMIT 1
	`

	updateSessionStateQuery = `
		UPDATE sessions
		SET status = ?, current_node_id = ?, context = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
)

// Broadcast queries
const (
	insertBroadcastQuery = `
		INSERT INTO broadcasts (id, user_id, status, total_recipients, success_count, failure_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectBroadcastByIDQuery = `
		SELECT id, user_id, status, total_recipients, success_count, failure_count,
		       created_at, updated_at
		FROM broadcasts
		WHERE id = ?
	`

	insertBroadcastRecipientQuery = `
		INSERT INTO broadcast_recipients (id, broadcast_id, contact_id, status, error, message_id, conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectRecipientByMessageIDQuery = `
		SELECT r.id, r.broadcast_id, r.contact_id, r.status,
		       COALESCE(r.error, ''), COALESCE(r.message_id, ''),
		       COALESCE(r.conversation_id, ''), r.status_updated_at
		FROM broadcast_recipients r
		JOIN broadcasts b ON b.id = r.broadcast_id
		WHERE r.message_id = ? AND b.user_id = ?
	`

	selectRecipientByIDQuery = `
		SELECT r.id, r.broadcast_id, r.contact_id, r.status,
		       COALESCE(r.error, ''), COALESCE(r.message_id, ''),
		       COALESCE(r.conversation_id, ''), r.status_updated_at
		FROM broadcast_recipients r
		WHERE r.id = ?
	`

	adjustBroadcastCountersQuery = `
		UPDATE broadcasts
		SET success_count = success_count + ?,
		    failure_count = failure_count + ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
)

// Session log queries
const (
	insertSessionLogQuery = `
		INSERT INTO session_logs (session_id, status, context)
		VALUES (?, ?, ?)
	`

	selectSessionLogsQuery = `
		SELECT id, session_id, status, context, created_at
		FROM session_logs
		WHERE session_id = ?
		ORDER BY id
	`

	deleteOldSessionLogsQuery = `
		DELETE FROM session_logs
		WHERE created_at < datetime('now', ?)
	`
)
