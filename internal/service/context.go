package service

import (
	"time"

	"waflow/internal/constants"
)

// Session context bookkeeping. Every inbound and outbound event appends to
// context._meta.history and refreshes the denormalized last* fields flows
// interpolate against. Both history sequences are capped at 50 entries with
// the oldest truncated.

const (
	metaKey         = "_meta"
	historyKey      = "history"
	inputHistoryKey = "inputHistory"
)

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func appendHistory(context map[string]interface{}, entry map[string]interface{}) {
	meta, ok := context[metaKey].(map[string]interface{})
	if !ok {
		meta = map[string]interface{}{}
		context[metaKey] = meta
	}
	history, _ := meta[historyKey].([]interface{})
	history = append(history, entry)
	if len(history) > constants.MaxHistoryEntries {
		history = history[len(history)-constants.MaxHistoryEntries:]
	}
	meta[historyKey] = history
}

// recordInbound updates the context for a received message
func recordInbound(context map[string]interface{}, inbound *InboundMessage) {
	now := isoNow()

	entry := map[string]interface{}{
		"type": "in:message",
		"at":   now,
	}
	if inbound.Text != "" {
		entry["text"] = inbound.Text
	}
	if inbound.MessageID != "" {
		entry["messageId"] = inbound.MessageID
	}
	if inbound.InteractiveID != "" {
		entry["interactiveId"] = inbound.InteractiveID
	}
	if inbound.Media != nil {
		entry["media"] = inbound.Media
	}
	appendHistory(context, entry)

	context["lastUserMessage"] = inbound.Text
	context["lastUserMessageAt"] = now
	if inbound.MessageID != "" {
		context["lastUserMessageId"] = inbound.MessageID
	}
	context["lastInput"] = inbound.Text
	context["lastInputAt"] = now
	if inbound.InteractiveID != "" {
		context["lastInteractiveId"] = inbound.InteractiveID
	}
	if inbound.InteractiveTitle != "" {
		context["lastInteractiveTitle"] = inbound.InteractiveTitle
	}
	if inbound.Media != nil {
		context["lastUserMedia"] = inbound.Media
	}

	count, _ := context["messageCount"].(float64)
	if n, ok := context["messageCount"].(int); ok {
		count = float64(n)
	}
	context["messageCount"] = count + 1

	inputs, _ := context[inputHistoryKey].([]interface{})
	inputs = append(inputs, map[string]interface{}{"text": inbound.Text, "at": now})
	if len(inputs) > constants.MaxHistoryEntries {
		inputs = inputs[len(inputs)-constants.MaxHistoryEntries:]
	}
	context[inputHistoryKey] = inputs
}

// recordOutboundText updates the context after a text or template send
func recordOutboundText(context map[string]interface{}, kind, text, messageID string) {
	now := isoNow()
	entry := map[string]interface{}{
		"type": kind,
		"at":   now,
	}
	if text != "" {
		entry["text"] = text
	}
	if messageID != "" {
		entry["messageId"] = messageID
	}
	appendHistory(context, entry)

	context["lastBotMessage"] = text
	context["lastBotMessageAt"] = now
}

// recordOutboundOptions updates the context after an options send
func recordOutboundOptions(context map[string]interface{}, text string, options []string, messageID string) {
	now := isoNow()
	optionValues := make([]interface{}, len(options))
	for i, opt := range options {
		optionValues[i] = opt
	}

	entry := map[string]interface{}{
		"type":    "out:options",
		"at":      now,
		"text":    text,
		"options": optionValues,
	}
	if messageID != "" {
		entry["messageId"] = messageID
	}
	appendHistory(context, entry)

	context["lastBotMessage"] = text
	context["lastBotMessageAt"] = now
	context["lastBotOptions"] = optionValues
}

// recordOutboundMedia updates the context after a media send
func recordOutboundMedia(context map[string]interface{}, mediaType, ref, caption, messageID string) {
	now := isoNow()
	media := map[string]interface{}{
		"mediaType": mediaType,
		"ref":       ref,
	}
	if caption != "" {
		media["caption"] = caption
	}

	entry := map[string]interface{}{
		"type":  "out:media",
		"at":    now,
		"media": media,
	}
	if messageID != "" {
		entry["messageId"] = messageID
	}
	appendHistory(context, entry)

	context["lastBotMedia"] = media
	context["lastBotMessageAt"] = now
}

// recordOptionSelection notes how a paused options node resolved the reply
func recordOptionSelection(context map[string]interface{}, optionIndex int, matchedOption interface{}) {
	appendHistory(context, map[string]interface{}{
		"type":          "option-selection",
		"at":            isoNow(),
		"optionIndex":   optionIndex,
		"matchedOption": matchedOption,
	})
}
