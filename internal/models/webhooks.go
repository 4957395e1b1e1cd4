package models

import "encoding/json"

// Meta webhook payloads arrive in one of two shapes: the batched
// entry[].changes[].value envelope, or a standalone {field, value} form.

type MetaWebhookEnvelope struct {
	Object string             `json:"object,omitempty"`
	Entry  []MetaWebhookEntry `json:"entry,omitempty"`

	// Standalone form
	Field string           `json:"field,omitempty"`
	Value *MetaChangeValue `json:"value,omitempty"`
}

type MetaWebhookEntry struct {
	ID      string              `json:"id"`
	Changes []MetaWebhookChange `json:"changes"`
}

type MetaWebhookChange struct {
	Field string           `json:"field"`
	Value *MetaChangeValue `json:"value"`
}

// ChangeValues flattens both payload shapes into the list of change values to
// dispatch
func (e *MetaWebhookEnvelope) ChangeValues() []*MetaChangeValue {
	var out []*MetaChangeValue
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			if change.Value != nil {
				out = append(out, change.Value)
			}
		}
	}
	if len(out) == 0 && e.Value != nil {
		out = append(out, e.Value)
	}
	return out
}

type MetaChangeValue struct {
	MessagingProduct string               `json:"messaging_product,omitempty"`
	Metadata         MetaChangeMetadata   `json:"metadata"`
	Contacts         []MetaWebhookContact `json:"contacts,omitempty"`
	Messages         []MetaInboundMessage `json:"messages,omitempty"`
	Statuses         []MetaMessageStatus  `json:"statuses,omitempty"`
}

type MetaChangeMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
	PhoneNumberID      string `json:"phone_number_id,omitempty"`
}

type MetaWebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type MetaInboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *MetaInteractiveReply `json:"interactive,omitempty"`

	// Media blobs are propagated opaquely into the session context
	Image    json.RawMessage `json:"image,omitempty"`
	Video    json.RawMessage `json:"video,omitempty"`
	Audio    json.RawMessage `json:"audio,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
	Sticker  json.RawMessage `json:"sticker,omitempty"`
}

type MetaInteractiveReply struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"list_reply,omitempty"`
}

// ReplyID returns the interactive reply id regardless of reply kind
func (r *MetaInteractiveReply) ReplyID() string {
	if r == nil {
		return ""
	}
	if r.ButtonReply != nil {
		return r.ButtonReply.ID
	}
	if r.ListReply != nil {
		return r.ListReply.ID
	}
	return ""
}

// ReplyTitle returns the interactive reply title regardless of reply kind
func (r *MetaInteractiveReply) ReplyTitle() string {
	if r == nil {
		return ""
	}
	if r.ButtonReply != nil {
		return r.ButtonReply.Title
	}
	if r.ListReply != nil {
		return r.ListReply.Title
	}
	return ""
}

type MetaMessageStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	RecipientID  string `json:"recipient_id,omitempty"`
	Conversation *struct {
		ID string `json:"id"`
	} `json:"conversation,omitempty"`
	Errors []MetaStatusError `json:"errors,omitempty"`
}

type MetaStatusError struct {
	Code      int    `json:"code,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorData struct {
		Details string `json:"details,omitempty"`
	} `json:"error_data"`
}
