package service

import (
	"context"
	"strings"

	"waflow/internal/errors"
	"waflow/internal/metrics"
	"waflow/internal/models"
	"waflow/internal/privacy"
	"waflow/internal/trigger"

	"github.com/sirupsen/logrus"
)

// Dispatcher demultiplexes Meta webhook events to message handling or
// broadcast reconciliation and drives the manual trigger path
type Dispatcher struct {
	store      Store
	resolver   *Resolver
	executor   *Executor
	reconciler *BroadcastReconciler
	logger     *logrus.Logger
}

func NewDispatcher(store Store, resolver *Resolver, executor *Executor, reconciler *BroadcastReconciler, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		resolver:   resolver,
		executor:   executor,
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleWebhook processes every change value in a webhook delivery. One
// change value's failure does not stop its siblings; the webhook is accepted
// either way.
func (d *Dispatcher) HandleWebhook(ctx context.Context, envelope *models.MetaWebhookEnvelope) {
	for _, value := range envelope.ChangeValues() {
		d.handleChangeValue(ctx, value)
	}
}

func (d *Dispatcher) handleChangeValue(ctx context.Context, value *models.MetaChangeValue) {
	phoneNumberID := value.Metadata.PhoneNumberID
	if phoneNumberID == "" {
		d.logger.Warn("Webhook change value has no phone_number_id, skipping")
		return
	}

	user, err := d.store.GetUserByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		d.logger.WithError(err).Error("Failed to resolve tenant for webhook")
		return
	}
	if user == nil {
		d.logger.WithField("phone_number_id", phoneNumberID).Warn("Webhook for unknown phone number, skipping")
		return
	}

	if len(value.Statuses) > 0 {
		metrics.AddToCounter("webhook_statuses_total", float64(len(value.Statuses)), nil, "Delivery statuses received")
		d.reconciler.ProcessStatuses(ctx, user, value.Statuses)
	}

	if len(value.Messages) > 0 {
		metrics.AddToCounter("webhook_messages_total", float64(len(value.Messages)), nil, "Inbound messages received")

		profileNames := make(map[string]string, len(value.Contacts))
		for _, contact := range value.Contacts {
			profileNames[contact.WaID] = contact.Profile.Name
		}

		// Messages in one change value are processed serially; one failure
		// does not stop the rest
		for i := range value.Messages {
			msg := &value.Messages[i]
			inbound := NewInboundFromMeta(msg, profileNames[msg.From])
			if err := d.ProcessInbound(ctx, user, inbound); err != nil {
				d.logger.WithError(err).WithFields(logrus.Fields{
					"message_id": privacy.MaskWaMessageID(msg.ID),
					"from":       privacy.MaskPhone(msg.From),
				}).Error("Failed to process inbound message")
			}
		}
	}
}

// ProcessInbound resolves contact, session and flow for one inbound message
// and advances the session
func (d *Dispatcher) ProcessInbound(ctx context.Context, user *models.User, inbound *InboundMessage) error {
	contact, err := d.resolver.GetOrCreateContact(ctx, user.ID, inbound.From, ContactLookup{Name: inbound.ProfileName})
	if err != nil {
		return err
	}

	flow, session, err := d.selectFlowAndSession(ctx, user, contact, inbound)
	if err != nil {
		return err
	}
	if flow == nil {
		// Nothing routable: accept and drop
		return nil
	}

	execErr := d.executor.Execute(ctx, user, flow, contact, session, inbound)
	d.appendLog(ctx, session)
	return execErr
}

// selectFlowAndSession prefers the contact's most recent open session,
// dropping it when its flow is no longer active, then falls back to trigger
// matching over the tenant's active flows
func (d *Dispatcher) selectFlowAndSession(ctx context.Context, user *models.User, contact *models.Contact, inbound *InboundMessage) (*models.Flow, *models.Session, error) {
	session, err := d.store.GetLatestOpenSession(ctx, contact.ID, models.ChannelWhatsApp)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("session lookup", err)
	}
	if session != nil {
		flow, err := d.store.GetFlow(ctx, session.FlowID)
		if err != nil {
			return nil, nil, errors.NewDatabaseError("flow lookup", err)
		}
		if flow != nil && flow.Status == models.FlowStatusActive {
			return flow, session, nil
		}
		// The session's flow went inactive mid-dialogue; reselect
	}

	flows, err := d.store.ListActiveFlows(ctx, user.ID, models.ChannelWhatsApp)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("flow list", err)
	}
	flow := trigger.SelectFlow(flows, trigger.MatchInput{
		FullText:         inbound.Text,
		InteractiveTitle: inbound.InteractiveTitle,
		InteractiveID:    inbound.InteractiveID,
	})
	if flow == nil {
		return nil, nil, nil
	}

	session, err = d.resolver.EnsureActiveSessionForFlow(ctx, contact, flow)
	if err != nil {
		return nil, nil, err
	}
	return flow, session, nil
}

// ManualTriggerRequest is the body of POST /flows/{flowId}/trigger
type ManualTriggerRequest struct {
	From         string                 `json:"from" validate:"required,min=1"`
	Message      string                 `json:"message,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Variables    map[string]interface{} `json:"variables,omitempty"`
	IncomingMeta map[string]interface{} `json:"incomingMeta,omitempty"`
}

// ManualTriggerResult identifies the entities a manual trigger touched
type ManualTriggerResult struct {
	FlowID    string `json:"flowId"`
	ContactID string `json:"contactId"`
	SessionID string `json:"sessionId"`
}

// TriggerFlow drives a flow for a contact directly, bypassing trigger
// matching. Errors carry the HTTP status the API mirrors.
func (d *Dispatcher) TriggerFlow(ctx context.Context, flowID string, req ManualTriggerRequest) (*ManualTriggerResult, error) {
	flow, err := d.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, errors.NewDatabaseError("flow lookup", err)
	}
	if flow == nil {
		return nil, errors.NewNotFoundError("flow", flowID)
	}
	if flow.Status != models.FlowStatusActive {
		return nil, errors.NewConflictError("flow is not active")
	}
	if flow.Channel != models.ChannelWhatsApp {
		return nil, errors.NewConflictError("flow is not a WhatsApp flow")
	}

	user, err := d.store.GetUserByID(ctx, flow.UserID)
	if err != nil {
		return nil, errors.NewDatabaseError("user lookup", err)
	}
	if user == nil {
		return nil, errors.NewNotFoundError("user", flow.UserID)
	}

	contact, err := d.resolver.GetOrCreateContact(ctx, user.ID, req.From, ContactLookup{Name: req.Name})
	if err != nil {
		return nil, err
	}

	session, err := d.resolver.EnsureActiveSessionForFlow(ctx, contact, flow)
	if err != nil {
		return nil, err
	}

	if len(req.Variables) > 0 {
		if session.Context == nil {
			session.Context = map[string]interface{}{}
		}
		for key, value := range req.Variables {
			session.Context[key] = value
		}
	}

	inbound := &InboundMessage{
		From:        contact.Phone,
		ProfileName: req.Name,
		Text:        req.Message,
	}
	if req.IncomingMeta != nil {
		inbound.Media, _ = req.IncomingMeta["media"].(map[string]interface{})
	}

	execErr := d.executor.Execute(ctx, user, flow, contact, session, inbound)
	d.appendLog(ctx, session)
	if execErr != nil {
		return nil, execErr
	}

	return &ManualTriggerResult{
		FlowID:    flow.ID,
		ContactID: contact.ID,
		SessionID: session.ID,
	}, nil
}

// appendLog snapshots the session after inbound processing
func (d *Dispatcher) appendLog(ctx context.Context, session *models.Session) {
	if session == nil || session.ID == "" {
		return
	}
	err := d.store.AppendSessionLog(ctx, &models.SessionLog{
		SessionID: session.ID,
		Status:    session.Status,
		Context:   session.Context,
	})
	if err != nil {
		d.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to append session log")
	}
}

// VerifyWebhook checks a GET verification request against the configured
// token and returns the challenge to echo
func VerifyWebhook(verifyToken, mode, token, challenge string) (string, bool) {
	if strings.TrimSpace(token) == "" || token != verifyToken {
		return "", false
	}
	if mode != "" && mode != "subscribe" {
		return "", false
	}
	return challenge, true
}
