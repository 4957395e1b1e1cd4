package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"waflow/internal/constants"
	apperrors "waflow/internal/errors"
	"waflow/internal/expr"
	"waflow/internal/metrics"
	"waflow/internal/models"
	"waflow/internal/template"
	"waflow/internal/trigger"
	"waflow/internal/validation"
	"waflow/pkg/meta"
	metatypes "waflow/pkg/meta/types"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Executor walks a session through its flow graph until it pauses for input,
// suspends for handoff, terminates or errors. One invocation handles one
// inbound event; the session's position and context are persisted between
// steps.
type Executor struct {
	sessions  SessionStore
	sender    metatypes.Sender
	apiClient *resty.Client
	logger    *logrus.Logger

	// sleep is swapped in tests to skip delay nodes
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(sessions SessionStore, sender metatypes.Sender, logger *logrus.Logger) *Executor {
	return &Executor{
		sessions: sessions,
		sender:   sender,
		apiClient: resty.New().
			SetTimeout(time.Duration(constants.DefaultAPINodeTimeoutSec) * time.Second),
		logger: logger,
		sleep:  cooperativeSleep,
	}
}

func cooperativeSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute advances the session for one inbound event. A nil return covers
// both completed walks and silently dropped inbounds; errors have already
// marked the session as errored and persisted its context.
func (e *Executor) Execute(ctx context.Context, user *models.User, flow *models.Flow, contact *models.Contact, session *models.Session, inbound *InboundMessage) error {
	if session.Context == nil {
		session.Context = map[string]interface{}{}
	}
	recordInbound(session.Context, inbound)

	startNode, err := e.resolveStartNode(ctx, flow, session, inbound)
	if err != nil {
		return err
	}
	if startNode == nil {
		// No trigger matched: drop the inbound without persisting the session
		return nil
	}

	creds := metatypes.Credentials{AccessToken: user.AccessToken, PhoneNumberID: user.PhoneNumberID}
	def := &flow.Definition

	visited := make(map[string]bool)
	steps := 0
	current := startNode

	for current != nil {
		if visited[current.ID] {
			return e.failSession(ctx, session, apperrors.NewRuntimeGuardError(
				fmt.Sprintf("node %s revisited within one execution", current.ID)))
		}
		visited[current.ID] = true
		steps++
		if steps > constants.MaxExecutionSteps {
			return e.failSession(ctx, session, apperrors.NewRuntimeGuardError(
				fmt.Sprintf("execution exceeded %d steps", constants.MaxExecutionSteps)))
		}
		metrics.IncrementCounter("executor_steps_total", nil, "Total executor node steps")

		if err := validation.ValidateNodeData(current); err != nil {
			return e.failSession(ctx, session, err)
		}

		next, done, err := e.executeNode(ctx, creds, flow, contact, session, current)
		if err != nil {
			return e.failSession(ctx, session, err)
		}
		if done {
			return nil
		}

		nodeID := current.ID
		session.Status = models.SessionStatusActive
		session.CurrentNodeID = &nodeID
		if err := e.persist(ctx, session); err != nil {
			return err
		}

		if next == "" {
			edge := def.FirstEdgeFrom(current.ID)
			if edge == nil {
				return e.complete(ctx, session)
			}
			next = edge.Target
		}

		current = def.NodeByID(next)
		if current == nil {
			return e.failSession(ctx, session, apperrors.NewNotFoundError("node", next))
		}
	}

	return e.complete(ctx, session)
}

// resolveStartNode picks where this invocation enters the graph: the answer
// edge of a paused options node, the paused node itself, or a fresh trigger
// node
func (e *Executor) resolveStartNode(ctx context.Context, flow *models.Flow, session *models.Session, inbound *InboundMessage) (*models.Node, error) {
	def := &flow.Definition

	if session.Status == models.SessionStatusPaused && session.CurrentNodeID != nil {
		node := def.NodeByID(*session.CurrentNodeID)
		if node == nil {
			return nil, e.failSession(ctx, session, apperrors.NewNotFoundError("node", *session.CurrentNodeID))
		}
		if node.Type == models.NodeOptions {
			return e.resolveOptionSelection(ctx, session, def, node, inbound)
		}
		return node, nil
	}

	node := trigger.SelectTriggerNode(def, inbound.Text)
	if node == nil {
		return nil, nil
	}
	session.Context["triggerMessage"] = inbound.Text
	return node, nil
}

// resolveOptionSelection matches the user's reply against a paused options
// node and follows the opt-<i> or no-match edge
func (e *Executor) resolveOptionSelection(ctx context.Context, session *models.Session, def *models.FlowDefinition, node *models.Node, inbound *InboundMessage) (*models.Node, error) {
	options := validation.DataStringSlice(node.Data, "options")

	matchedIndex := -1
	if inbound.InteractiveID != "" {
		for i, option := range options {
			if meta.OptionReplyID(option) == inbound.InteractiveID {
				matchedIndex = i
				break
			}
		}
		if matchedIndex < 0 {
			for i := range options {
				if fmt.Sprintf("opt-%d", i) == inbound.InteractiveID {
					matchedIndex = i
					break
				}
			}
		}
	} else {
		needle := strings.ToLower(strings.TrimSpace(inbound.Text))
		for i, option := range options {
			if strings.ToLower(strings.TrimSpace(option)) == needle {
				matchedIndex = i
				break
			}
		}
	}

	var matchedOption interface{}
	handle := "no-match"
	if matchedIndex >= 0 {
		matchedOption = options[matchedIndex]
		handle = fmt.Sprintf("opt-%d", matchedIndex)
	}
	recordOptionSelection(session.Context, matchedIndex, matchedOption)

	edge := def.EdgeFromHandle(node.ID, handle)
	if edge == nil {
		return nil, e.failSession(ctx, session, apperrors.NewNotFoundError("edge", node.ID+"/"+handle))
	}
	target := def.NodeByID(edge.Target)
	if target == nil {
		return nil, e.failSession(ctx, session, apperrors.NewNotFoundError("node", edge.Target))
	}

	session.Status = models.SessionStatusActive
	return target, nil
}

// executeNode runs one node's side effects. It returns the explicitly chosen
// next node id (empty means "first outgoing edge") and whether the execution
// already reached a resting state (pause or completion).
func (e *Executor) executeNode(ctx context.Context, creds metatypes.Credentials, flow *models.Flow, contact *models.Contact, session *models.Session, node *models.Node) (string, bool, error) {
	data := node.Data

	switch node.Type {
	case models.NodeTrigger:
		return "", false, nil

	case models.NodeMessage:
		return "", false, e.executeMessage(ctx, creds, contact, session, node)

	case models.NodeOptions:
		text := template.Interpolate(dataString(data, "text"), session.Context)
		options := validation.DataStringSlice(data, "options")
		result, err := e.sender.SendOptions(ctx, creds, metatypes.OptionsMessage{
			To:      contact.Phone,
			Text:    text,
			Options: options,
		})
		if err != nil {
			return "", false, asSendError(err)
		}
		recordOutboundOptions(session.Context, text, options, result.MessageID)

		nodeID := node.ID
		session.Status = models.SessionStatusPaused
		session.CurrentNodeID = &nodeID
		if err := e.persist(ctx, session); err != nil {
			return "", false, err
		}
		return "", true, nil

	case models.NodeDelay:
		seconds, _ := dataNumber(data, "seconds")
		delay := time.Duration(seconds) * time.Second
		if delay > time.Duration(constants.MaxDelayMs)*time.Millisecond {
			delay = time.Duration(constants.MaxDelayMs) * time.Millisecond
		}
		if err := e.sleep(ctx, delay); err != nil {
			return "", false, err
		}
		return "", false, nil

	case models.NodeCondition:
		expression := dataString(data, "expression")
		result, err := expr.Evaluate(expression, session.Context)
		if err != nil {
			e.logger.WithError(err).WithField("node_id", node.ID).Debug("Condition evaluation failed, taking false branch")
			result = false
		}
		handle := "false"
		if result {
			handle = "true"
		}
		edge := flow.Definition.EdgeFromHandle(node.ID, handle)
		if edge == nil {
			// No branch wired for this outcome ends the walk
			return "", true, e.complete(ctx, session)
		}
		return edge.Target, false, nil

	case models.NodeAPI:
		e.executeAPICall(ctx, session, node)
		return "", false, nil

	case models.NodeAssign:
		key := dataString(data, "key")
		value := template.Interpolate(dataString(data, "value"), session.Context)
		template.Set(session.Context, key, value)
		return "", false, nil

	case models.NodeMedia:
		mediaType := dataString(data, "mediaType")
		mediaID := template.Interpolate(dataString(data, "id"), session.Context)
		mediaURL := template.Interpolate(dataString(data, "url"), session.Context)
		caption := template.Interpolate(dataString(data, "caption"), session.Context)
		result, err := e.sender.SendMedia(ctx, creds, metatypes.MediaMessage{
			To:        contact.Phone,
			MediaType: mediaType,
			ID:        mediaID,
			URL:       mediaURL,
			Caption:   caption,
		})
		if err != nil {
			return "", false, asSendError(err)
		}
		ref := mediaID
		if ref == "" {
			ref = mediaURL
		}
		recordOutboundMedia(session.Context, mediaType, ref, caption, result.MessageID)
		return "", false, nil

	case models.NodeWhatsAppFlow:
		body := strings.TrimSpace(template.Interpolate(dataString(data, "body"), session.Context))
		if body == "" {
			return "", false, apperrors.NewSendError(http.StatusBadRequest, "whatsapp_flow body is empty after interpolation")
		}
		if flow.MetaFlow.ID == "" || flow.MetaFlow.Token == "" {
			return "", false, apperrors.NewSendError(http.StatusBadRequest, "flow has no Meta flow id/token configured")
		}
		result, err := e.sender.SendFlow(ctx, creds, metatypes.FlowMessage{
			To:      contact.Phone,
			FlowID:  flow.MetaFlow.ID,
			Token:   flow.MetaFlow.Token,
			Version: flow.MetaFlow.Version,
			Header:  template.Interpolate(dataString(data, "header"), session.Context),
			Body:    body,
			Footer:  template.Interpolate(dataString(data, "footer"), session.Context),
			CTA:     dataString(data, "cta"),
		})
		if err != nil {
			return "", false, asSendError(err)
		}
		recordOutboundText(session.Context, "out:flow", body, result.MessageID)
		return "", false, nil

	case models.NodeHandoff:
		session.Context["handoffQueue"] = dataString(data, "queue")
		if note := dataString(data, "note"); note != "" {
			session.Context["handoffNote"] = note
		}
		nodeID := node.ID
		session.Status = models.SessionStatusPaused
		session.CurrentNodeID = &nodeID
		if err := e.persist(ctx, session); err != nil {
			return "", false, err
		}
		return "", true, nil

	case models.NodeGoto:
		return dataString(data, "targetNodeId"), false, nil

	case models.NodeEnd:
		reason := dataString(data, "reason")
		if reason == "" {
			reason = "end"
		}
		session.Context["endReason"] = reason
		return "", true, e.complete(ctx, session)

	default:
		return "", false, apperrors.NewNodeDataError(node.ID, string(node.Type), "unknown node type")
	}
}

// executeMessage sends a message node in template or text mode
func (e *Executor) executeMessage(ctx context.Context, creds metatypes.Credentials, contact *models.Contact, session *models.Session, node *models.Node) error {
	data := node.Data

	if dataBool(data, "useTemplate") {
		components := buildTemplateComponents(data, session.Context)
		result, err := e.sender.SendTemplate(ctx, creds, metatypes.TemplateMessage{
			To:         contact.Phone,
			Name:       dataString(data, "templateName"),
			Language:   dataString(data, "templateLanguage"),
			Components: components,
		})
		if err != nil {
			return asSendError(err)
		}
		recordOutboundText(session.Context, "out:template", dataString(data, "templateName"), result.MessageID)
		return nil
	}

	text := template.Interpolate(dataString(data, "text"), session.Context)
	result, err := e.sender.SendText(ctx, creds, metatypes.TextMessage{To: contact.Phone, Body: text})
	if err != nil {
		return asSendError(err)
	}
	recordOutboundText(session.Context, "out:text", text, result.MessageID)
	return nil
}

// buildTemplateComponents interpolates template parameters and groups them by
// (type, subType, index)
func buildTemplateComponents(data map[string]interface{}, context map[string]interface{}) []metatypes.TemplateComponent {
	raw, ok := data["templateParameters"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}

	type componentKey struct {
		compType string
		subType  string
		index    int
	}
	grouped := make(map[componentKey][]metatypes.TemplateParameter)
	var order []componentKey

	for _, item := range raw {
		param, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		value := template.Interpolate(dataString(param, "value"), context)

		key := componentKey{compType: "body", index: -1}
		if t := dataString(param, "type"); t != "" {
			key.compType = strings.ToLower(t)
		}
		key.subType = strings.ToLower(dataString(param, "subType"))
		if idx, ok := dataNumber(param, "index"); ok {
			key.index = int(idx)
		}

		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], metatypes.TemplateParameter{Type: "text", Text: value})
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].compType != order[j].compType {
			return order[i].compType < order[j].compType
		}
		return order[i].index < order[j].index
	})

	components := make([]metatypes.TemplateComponent, 0, len(order))
	for _, key := range order {
		component := metatypes.TemplateComponent{
			Type:       key.compType,
			SubType:    key.subType,
			Parameters: grouped[key],
		}
		if key.index >= 0 {
			idx := key.index
			component.Index = &idx
		}
		components = append(components, component)
	}
	return components
}

// executeAPICall fires an api node. Failures of any kind, timeouts included,
// assign {error: "API call failed"} instead of stopping the walk.
func (e *Executor) executeAPICall(ctx context.Context, session *models.Session, node *models.Node) {
	data := node.Data
	assignTo := dataString(data, "assignTo")
	if assignTo == "" {
		assignTo = "apiResult"
	}

	method := strings.ToUpper(dataString(data, "method"))
	url := template.Interpolate(dataString(data, "url"), session.Context)

	req := e.apiClient.R().SetContext(ctx)
	if headers, ok := data["headers"].(map[string]interface{}); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.SetHeader(name, template.Interpolate(s, session.Context))
			}
		}
	}
	if method != http.MethodGet && method != http.MethodHead {
		if body := dataString(data, "body"); body != "" {
			req.SetBody(template.Interpolate(body, session.Context))
		}
	}

	resp, err := req.Execute(method, url)
	if err != nil || resp.IsError() {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"node_id": node.ID,
			"method":  method,
		}).Warn("API node call failed")
		template.Set(session.Context, assignTo, map[string]interface{}{"error": "API call failed"})
		return
	}

	template.Set(session.Context, assignTo, parseAPIBody(resp.Body()))
}

func parseAPIBody(body []byte) interface{} {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body)
	}
	return decoded
}

// failSession marks the session errored, keeping its position, and persists
// the context before re-raising
func (e *Executor) failSession(ctx context.Context, session *models.Session, cause error) error {
	session.Status = models.SessionStatusErrored
	if err := e.sessions.UpdateSessionState(ctx, session); err != nil {
		e.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to persist errored session")
	}
	metrics.IncrementCounter("sessions_errored_total", nil, "Sessions that ended in error")
	return cause
}

// complete marks the session completed with a cleared position
func (e *Executor) complete(ctx context.Context, session *models.Session) error {
	session.Status = models.SessionStatusCompleted
	session.CurrentNodeID = nil
	if err := e.persist(ctx, session); err != nil {
		return err
	}
	metrics.IncrementCounter("sessions_completed_total", nil, "Sessions that reached completion")
	return nil
}

func (e *Executor) persist(ctx context.Context, session *models.Session) error {
	if err := e.sessions.UpdateSessionState(ctx, session); err != nil {
		return apperrors.NewDatabaseError("session update", err)
	}
	return nil
}

// asSendError converts a builder failure into the typed send error the API
// boundary mirrors
func asSendError(err error) error {
	if sendErr, ok := err.(*metatypes.SendError); ok {
		return apperrors.NewSendError(sendErr.Status, sendErr.Message)
	}
	return apperrors.NewSendError(http.StatusInternalServerError, err.Error())
}

func dataString(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

func dataBool(data map[string]interface{}, key string) bool {
	if data == nil {
		return false
	}
	b, _ := data[key].(bool)
	return b
}

func dataNumber(data map[string]interface{}, key string) (float64, bool) {
	if data == nil {
		return 0, false
	}
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
