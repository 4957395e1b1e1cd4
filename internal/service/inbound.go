package service

import (
	"encoding/json"
	"time"

	"waflow/internal/models"
)

// InboundMessage is the normalized inbound event the executor consumes,
// whether it arrived over the webhook or the manual trigger API
type InboundMessage struct {
	MessageID        string
	From             string
	ProfileName      string
	Text             string
	InteractiveID    string
	InteractiveTitle string
	Media            map[string]interface{}
	ReceivedAt       time.Time
}

// NewInboundFromMeta flattens a Meta webhook message into the normalized form
func NewInboundFromMeta(msg *models.MetaInboundMessage, profileName string) *InboundMessage {
	inbound := &InboundMessage{
		MessageID:   msg.ID,
		From:        msg.From,
		ProfileName: profileName,
		ReceivedAt:  time.Now().UTC(),
	}

	if msg.Text != nil {
		inbound.Text = msg.Text.Body
	} else if msg.Button != nil {
		inbound.Text = msg.Button.Text
	}

	if msg.Interactive != nil {
		inbound.InteractiveID = msg.Interactive.ReplyID()
		inbound.InteractiveTitle = msg.Interactive.ReplyTitle()
		if inbound.Text == "" {
			inbound.Text = inbound.InteractiveTitle
		}
	}

	inbound.Media = firstMediaBlob(msg)
	return inbound
}

// firstMediaBlob extracts the message's media payload as an opaque JSON map
func firstMediaBlob(msg *models.MetaInboundMessage) map[string]interface{} {
	blobs := []struct {
		kind string
		raw  json.RawMessage
	}{
		{"image", msg.Image},
		{"video", msg.Video},
		{"audio", msg.Audio},
		{"document", msg.Document},
		{"sticker", msg.Sticker},
	}

	for _, blob := range blobs {
		if len(blob.raw) == 0 {
			continue
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(blob.raw, &decoded); err != nil {
			continue
		}
		decoded["kind"] = blob.kind
		return decoded
	}
	return nil
}
