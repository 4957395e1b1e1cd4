// Package meta implements the outbound WhatsApp message builder against the
// Meta Graph API, including the allow-list auto-enrollment recovery path.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"waflow/pkg/meta/types"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v23.0"
	defaultTimeout    = 15 * time.Second

	// Meta error code for "recipient phone number not in allowed list"
	recipientNotAllowedCode = 131030

	// TokenExpiredMessage replaces Meta's wording when the access token is
	// no longer usable, inviting reconnection
	TokenExpiredMessage = "Meta access token expired. Please reconnect your WhatsApp account."
)

type Client struct {
	http    *resty.Client
	baseURL string
	version string
}

// NewClient creates a Graph API client. Every request carries a hard
// deadline; the zero config gets v23.0 and a 15 second timeout.
func NewClient(cfg types.ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		version: version,
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// OptionReplyID derives the interactive button id for an option label:
// lowercased, trimmed, whitespace collapsed to underscores, "opt" if empty
func OptionReplyID(option string) string {
	id := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(option)), "_")
	if id == "" {
		return "opt"
	}
	return id
}

// CanonicalPhone reduces a recipient phone to digits only
func CanonicalPhone(phone string) string {
	var sb strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (c *Client) SendText(ctx context.Context, creds types.Credentials, msg types.TextMessage) (*types.SendResult, error) {
	to, err := c.recipient(msg.To)
	if err != nil {
		return nil, err
	}
	payload := c.basePayload(to)
	payload["type"] = "text"
	payload["text"] = map[string]interface{}{
		"body":        msg.Body,
		"preview_url": false,
	}
	return c.send(ctx, creds, to, payload, false)
}

func (c *Client) SendMedia(ctx context.Context, creds types.Credentials, msg types.MediaMessage) (*types.SendResult, error) {
	to, err := c.recipient(msg.To)
	if err != nil {
		return nil, err
	}
	if !types.AllowedMediaTypes[msg.MediaType] {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: fmt.Sprintf("unsupported media type %q", msg.MediaType)}
	}
	if msg.ID == "" && msg.URL == "" {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: "media requires either id or url"}
	}

	media := map[string]interface{}{}
	if msg.ID != "" {
		media["id"] = msg.ID
	} else {
		media["link"] = msg.URL
	}
	if msg.Caption != "" {
		media["caption"] = msg.Caption
	}

	payload := c.basePayload(to)
	payload["type"] = msg.MediaType
	payload[msg.MediaType] = media
	return c.send(ctx, creds, to, payload, false)
}

func (c *Client) SendOptions(ctx context.Context, creds types.Credentials, msg types.OptionsMessage) (*types.SendResult, error) {
	to, err := c.recipient(msg.To)
	if err != nil {
		return nil, err
	}
	options := msg.Options
	if len(options) == 0 {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: "options message requires at least one option"}
	}
	if len(options) > 3 {
		options = options[:3]
	}

	buttons := make([]map[string]interface{}, 0, len(options))
	for _, option := range options {
		buttons = append(buttons, map[string]interface{}{
			"type": "reply",
			"reply": map[string]interface{}{
				"id":    OptionReplyID(option),
				"title": option,
			},
		})
	}

	payload := c.basePayload(to)
	payload["type"] = "interactive"
	payload["interactive"] = map[string]interface{}{
		"type":   "button",
		"body":   map[string]interface{}{"text": msg.Text},
		"action": map[string]interface{}{"buttons": buttons},
	}
	return c.send(ctx, creds, to, payload, false)
}

func (c *Client) SendList(ctx context.Context, creds types.Credentials, msg types.ListMessage) (*types.SendResult, error) {
	to, err := c.recipient(msg.To)
	if err != nil {
		return nil, err
	}
	if len(msg.Sections) == 0 {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: "list message requires at least one section"}
	}

	payload := c.basePayload(to)
	payload["type"] = "interactive"
	payload["interactive"] = map[string]interface{}{
		"type": "list",
		"body": map[string]interface{}{"text": msg.Body},
		"action": map[string]interface{}{
			"button":   msg.Button,
			"sections": msg.Sections,
		},
	}
	return c.send(ctx, creds, to, payload, false)
}

func (c *Client) SendFlow(ctx context.Context, creds types.Credentials, msg types.FlowMessage) (*types.SendResult, error) {
	to, err := c.recipient(msg.To)
	if err != nil {
		return nil, err
	}
	if msg.FlowID == "" || msg.Token == "" {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: "flow message requires a Meta flow id and token"}
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: "flow message requires a body"}
	}

	version := msg.Version
	if version == "" {
		version = "3"
	}
	cta := msg.CTA
	if cta == "" {
		cta = "Open"
	}

	interactive := map[string]interface{}{
		"type": "flow",
		"body": map[string]interface{}{"text": msg.Body},
		"action": map[string]interface{}{
			"name": "flow",
			"parameters": map[string]interface{}{
				"flow_message_version": version,
				"flow_id":              msg.FlowID,
				"flow_token":           msg.Token,
				"flow_cta":             cta,
			},
		},
	}
	if msg.Header != "" {
		interactive["header"] = map[string]interface{}{"type": "text", "text": msg.Header}
	}
	if msg.Footer != "" {
		interactive["footer"] = map[string]interface{}{"text": msg.Footer}
	}

	payload := c.basePayload(to)
	payload["type"] = "interactive"
	payload["interactive"] = interactive
	return c.send(ctx, creds, to, payload, false)
}

func (c *Client) SendTemplate(ctx context.Context, creds types.Credentials, msg types.TemplateMessage) (*types.SendResult, error) {
	to, err := c.recipient(msg.To)
	if err != nil {
		return nil, err
	}
	if msg.Name == "" || msg.Language == "" {
		return nil, &types.SendError{Status: http.StatusBadRequest, Message: "template message requires name and language"}
	}

	components := make([]map[string]interface{}, 0, len(msg.Components))
	for _, component := range msg.Components {
		normalized := map[string]interface{}{
			"type": strings.ToLower(component.Type),
		}
		if component.SubType != "" {
			normalized["sub_type"] = strings.ToLower(component.SubType)
		}
		if component.Index != nil {
			normalized["index"] = *component.Index
		}
		params := make([]map[string]interface{}, 0, len(component.Parameters))
		for _, param := range component.Parameters {
			if strings.ToLower(param.Type) != "text" {
				continue
			}
			params = append(params, map[string]interface{}{
				"type": "text",
				"text": param.Text,
			})
		}
		if len(params) > 0 {
			normalized["parameters"] = params
		}
		components = append(components, normalized)
	}

	template := map[string]interface{}{
		"name":     msg.Name,
		"language": map[string]interface{}{"code": msg.Language},
	}
	if len(components) > 0 {
		template["components"] = components
	}

	payload := c.basePayload(to)
	payload["type"] = "template"
	payload["template"] = template
	return c.send(ctx, creds, to, payload, false)
}

func (c *Client) recipient(to string) (string, error) {
	digits := CanonicalPhone(to)
	if len(digits) < 6 || len(digits) > 20 {
		return "", &types.SendError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid recipient phone number %q", to)}
	}
	return digits, nil
}

func (c *Client) basePayload(to string) map[string]interface{} {
	return map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
}

func (c *Client) send(ctx context.Context, creds types.Credentials, to string, payload map[string]interface{}, allowListAttempted bool) (*types.SendResult, error) {
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, creds.PhoneNumberID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(payload).
		Post(url)
	if err != nil {
		return nil, &types.SendError{Status: http.StatusGatewayTimeout, Message: fmt.Sprintf("meta request failed: %v", err)}
	}

	if resp.IsSuccess() {
		var parsed types.GraphSendResponse
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return nil, &types.SendError{Status: http.StatusBadGateway, Message: "meta returned an unreadable response"}
		}
		result := &types.SendResult{}
		if len(parsed.Messages) > 0 {
			result.MessageID = parsed.Messages[0].ID
		}
		if parsed.Conversation != nil {
			result.ConversationID = parsed.Conversation.ID
		}
		return result, nil
	}

	status := resp.StatusCode()
	message, code := extractError(resp)

	if isTokenExpired(status, message) {
		return nil, &types.SendError{Status: status, Code: code, Message: TokenExpiredMessage}
	}

	if status == http.StatusBadRequest && code == recipientNotAllowedCode && !allowListAttempted {
		if enrollErr := c.enrollRecipient(ctx, creds, to); enrollErr != nil {
			return nil, enrollErr
		}
		return c.send(ctx, creds, to, payload, true)
	}

	return nil, &types.SendError{Status: status, Code: code, Message: message}
}

// enrollRecipient adds the recipient to the tenant's allow list. Some WABA
// configurations only expose the legacy endpoint, so a path error falls back
// to /registered_whatsapp_users.
func (c *Client) enrollRecipient(ctx context.Context, creds types.Credentials, to string) error {
	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(body).
		Post(fmt.Sprintf("%s/%s/%s/recipients", c.baseURL, c.version, creds.PhoneNumberID))
	if err != nil {
		return &types.SendError{Status: http.StatusGatewayTimeout, Message: fmt.Sprintf("allow-list enrollment failed: %v", err)}
	}
	if resp.IsSuccess() {
		return nil
	}

	status := resp.StatusCode()
	message, _ := extractError(resp)
	lower := strings.ToLower(message)
	if (status == http.StatusBadRequest || status == http.StatusNotFound) &&
		(strings.Contains(lower, "unknown path components") || strings.Contains(lower, "unsupported post request")) {
		resp, err = c.http.R().
			SetContext(ctx).
			SetAuthToken(creds.AccessToken).
			SetBody(body).
			Post(fmt.Sprintf("%s/%s/%s/registered_whatsapp_users", c.baseURL, c.version, creds.PhoneNumberID))
		if err != nil {
			return &types.SendError{Status: http.StatusGatewayTimeout, Message: fmt.Sprintf("allow-list enrollment failed: %v", err)}
		}
		if resp.IsSuccess() {
			return nil
		}
		status = resp.StatusCode()
		message, _ = extractError(resp)
	}

	return &types.SendError{
		Status:  status,
		Message: fmt.Sprintf("could not add %s to the allowed recipient list: %s. Add the number manually in the Meta developer console.", to, message),
	}
}

// extractError pulls the most specific error message out of a Graph API
// failure: error_user_msg, then message, then the status text, then the body
func extractError(resp *resty.Response) (string, int) {
	var parsed types.GraphErrorResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err == nil {
		if parsed.Error.ErrorUserMsg != "" {
			return parsed.Error.ErrorUserMsg, parsed.Error.Code
		}
		if parsed.Error.Message != "" {
			return parsed.Error.Message, parsed.Error.Code
		}
	}
	if statusText := http.StatusText(resp.StatusCode()); statusText != "" {
		return statusText, 0
	}
	return strings.TrimSpace(string(resp.Body())), 0
}

func isTokenExpired(status int, message string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status != http.StatusBadRequest && status != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "access token") || strings.Contains(lower, "session has expired")
}
