package validation

import (
	"strings"
	"testing"

	"waflow/internal/models"

	"github.com/stretchr/testify/assert"
)

func node(nodeType models.NodeType, data map[string]interface{}) *models.Node {
	return &models.Node{ID: "n1", Type: nodeType, Data: data}
}

func TestCanonicalPhone(t *testing.T) {
	assert.Equal(t, "5491122223333", CanonicalPhone("+54 9 11 2222-3333"))
	assert.Equal(t, "123456", CanonicalPhone("123456"))
	assert.Equal(t, "", CanonicalPhone("abc"))
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("5491122223333"))
	assert.Error(t, ValidatePhone(""))
	assert.Error(t, ValidatePhone("12345"))
	assert.Error(t, ValidatePhone(strings.Repeat("1", 21)))
	assert.Error(t, ValidatePhone("54911a2223333"))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com/api"))
	assert.NoError(t, ValidateURL("http://example.com"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("https://"))
	assert.Error(t, ValidateURL("not a url"))
}

func TestValidateNodeData(t *testing.T) {
	longText := strings.Repeat("a", 4097)
	thirtyChars := strings.Repeat("x", 30)

	tests := []struct {
		name    string
		node    *models.Node
		wantErr bool
	}{
		{"trigger ok", node(models.NodeTrigger, map[string]interface{}{"keyword": "hola"}), false},
		{"trigger empty keyword", node(models.NodeTrigger, map[string]interface{}{}), true},
		{"trigger keyword too long", node(models.NodeTrigger, map[string]interface{}{"keyword": strings.Repeat("k", 65)}), true},

		{"message text ok", node(models.NodeMessage, map[string]interface{}{"text": "hello"}), false},
		{"message empty text", node(models.NodeMessage, map[string]interface{}{"text": ""}), true},
		{"message text too long", node(models.NodeMessage, map[string]interface{}{"text": longText}), true},
		{"message template ok", node(models.NodeMessage, map[string]interface{}{
			"useTemplate": true, "templateName": "welcome", "templateLanguage": "en"}), false},
		{"message template missing name", node(models.NodeMessage, map[string]interface{}{
			"useTemplate": true, "templateLanguage": "en"}), true},
		{"message template missing language", node(models.NodeMessage, map[string]interface{}{
			"useTemplate": true, "templateName": "welcome"}), true},

		{"options two 30-char items accepted", node(models.NodeOptions, map[string]interface{}{
			"options": []interface{}{thirtyChars, thirtyChars}}), false},
		{"options one item rejected", node(models.NodeOptions, map[string]interface{}{
			"options": []interface{}{"only"}}), true},
		{"options eleven items rejected", node(models.NodeOptions, map[string]interface{}{
			"options": manyOptions(11)}), true},
		{"options 31-char item rejected", node(models.NodeOptions, map[string]interface{}{
			"options": []interface{}{"ok", strings.Repeat("x", 31)}}), true},

		{"delay ok", node(models.NodeDelay, map[string]interface{}{"seconds": float64(10)}), false},
		{"delay max boundary", node(models.NodeDelay, map[string]interface{}{"seconds": float64(3600)}), false},
		{"delay zero", node(models.NodeDelay, map[string]interface{}{"seconds": float64(0)}), true},
		{"delay over max", node(models.NodeDelay, map[string]interface{}{"seconds": float64(3601)}), true},
		{"delay missing", node(models.NodeDelay, map[string]interface{}{}), true},

		{"condition ok", node(models.NodeCondition, map[string]interface{}{"expression": "context.x > 1"}), false},
		{"condition empty", node(models.NodeCondition, map[string]interface{}{"expression": ""}), true},
		{"condition too long", node(models.NodeCondition, map[string]interface{}{"expression": strings.Repeat("x", 501)}), true},

		{"api ok", node(models.NodeAPI, map[string]interface{}{
			"url": "https://api.example.com", "method": "POST",
			"headers": map[string]interface{}{"X-Key": "v"}, "body": "{}"}), false},
		{"api bad url", node(models.NodeAPI, map[string]interface{}{"url": "nope", "method": "GET"}), true},
		{"api bad method", node(models.NodeAPI, map[string]interface{}{
			"url": "https://api.example.com", "method": "TRACE"}), true},
		{"api non-string header", node(models.NodeAPI, map[string]interface{}{
			"url": "https://api.example.com", "method": "GET",
			"headers": map[string]interface{}{"X-Key": float64(1)}}), true},

		{"assign ok", node(models.NodeAssign, map[string]interface{}{"key": "score", "value": "5"}), false},
		{"assign empty key", node(models.NodeAssign, map[string]interface{}{"key": "", "value": "5"}), true},
		{"assign key too long", node(models.NodeAssign, map[string]interface{}{
			"key": strings.Repeat("k", 51), "value": "5"}), true},
		{"assign value too long", node(models.NodeAssign, map[string]interface{}{
			"key": "k", "value": strings.Repeat("v", 501)}), true},

		{"media with url", node(models.NodeMedia, map[string]interface{}{
			"mediaType": "image", "url": "https://example.com/a.png"}), false},
		{"media with id", node(models.NodeMedia, map[string]interface{}{
			"mediaType": "video", "id": "media-123"}), false},
		{"media neither id nor url", node(models.NodeMedia, map[string]interface{}{
			"mediaType": "image"}), true},
		{"media bad type", node(models.NodeMedia, map[string]interface{}{
			"mediaType": "gif", "id": "x"}), true},

		{"whatsapp_flow ok", node(models.NodeWhatsAppFlow, map[string]interface{}{"body": "Fill the form"}), false},
		{"whatsapp_flow empty body", node(models.NodeWhatsAppFlow, map[string]interface{}{}), true},
		{"whatsapp_flow header too long", node(models.NodeWhatsAppFlow, map[string]interface{}{
			"body": "b", "header": strings.Repeat("h", 61)}), true},

		{"handoff ok", node(models.NodeHandoff, map[string]interface{}{"queue": "support"}), false},
		{"handoff missing queue", node(models.NodeHandoff, map[string]interface{}{}), true},
		{"handoff note too long", node(models.NodeHandoff, map[string]interface{}{
			"queue": "support", "note": strings.Repeat("n", 501)}), true},

		{"goto ok", node(models.NodeGoto, map[string]interface{}{"targetNodeId": "n2"}), false},
		{"goto missing target", node(models.NodeGoto, map[string]interface{}{}), true},

		{"end ok without reason", node(models.NodeEnd, map[string]interface{}{}), false},
		{"end ok with reason", node(models.NodeEnd, map[string]interface{}{"reason": "done"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeData(tt.node)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func manyOptions(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = "opt"
	}
	return out
}
