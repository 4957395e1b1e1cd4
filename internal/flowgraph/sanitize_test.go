package flowgraph

import (
	"encoding/json"
	"testing"

	"waflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFromJSONText(t *testing.T) {
	input := `{
		"nodes": [
			{"id": "t1", "type": "trigger", "data": {"keyword": "hola"}, "position": {"x": 10, "y": 20}},
			{"id": "m1", "type": "message", "data": {"text": "hi"}, "position": {"x": 30, "y": 40}, "selected": true}
		],
		"edges": [
			{"id": "e1", "source": "t1", "target": "m1"}
		]
	}`

	def, err := Sanitize(input)
	require.NoError(t, err)
	require.Len(t, def.Nodes, 2)
	require.Len(t, def.Edges, 1)

	assert.Equal(t, "t1", def.Nodes[0].ID)
	assert.Equal(t, models.NodeTrigger, def.Nodes[0].Type)
	assert.Equal(t, 10.0, def.Nodes[0].Position.X)
	assert.Equal(t, "hola", def.Nodes[0].Data["keyword"])

	// Unknown node properties survive
	require.Contains(t, def.Nodes[1].Extra, "selected")
	assert.Equal(t, "true", string(def.Nodes[1].Extra["selected"]))

	assert.Equal(t, "e1", def.Edges[0].ID)
	assert.Nil(t, def.Edges[0].SourceHandle)
}

func TestSanitizeDefaults(t *testing.T) {
	input := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{"id": "n1", "type": "end"},
		},
	}

	def, err := Sanitize(input)
	require.NoError(t, err)
	require.Len(t, def.Nodes, 1)

	assert.NotNil(t, def.Nodes[0].Data)
	assert.Empty(t, def.Nodes[0].Data)
	assert.Equal(t, 0.0, def.Nodes[0].Position.X)
	assert.Equal(t, 0.0, def.Nodes[0].Position.Y)
	assert.Empty(t, def.Edges)
}

func TestSanitizeDropsMalformedEntries(t *testing.T) {
	input := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{"id": "", "type": "message"},
			map[string]interface{}{"id": "n1", "type": "not-a-type"},
			"garbage",
			map[string]interface{}{"id": "ok", "type": "message", "data": map[string]interface{}{"text": "x"}},
		},
		"edges": []interface{}{
			map[string]interface{}{"id": "", "source": "a", "target": "b"},
			map[string]interface{}{"id": "e1", "source": "", "target": "b"},
			map[string]interface{}{"id": "e2", "source": "a", "target": "ok", "sourceHandle": nil},
			42,
		},
	}

	def, err := Sanitize(input)
	require.NoError(t, err)
	require.Len(t, def.Nodes, 1)
	assert.Equal(t, "ok", def.Nodes[0].ID)
	require.Len(t, def.Edges, 1)
	assert.Equal(t, "e2", def.Edges[0].ID)
	assert.Nil(t, def.Edges[0].SourceHandle)
}

func TestSanitizeNonFinitePositions(t *testing.T) {
	input := `{"nodes": [{"id": "n1", "type": "message", "position": {"x": "NaN", "y": null}}]}`
	def, err := Sanitize(input)
	require.NoError(t, err)
	require.Len(t, def.Nodes, 1)
	assert.Equal(t, 0.0, def.Nodes[0].Position.X)
	assert.Equal(t, 0.0, def.Nodes[0].Position.Y)
}

func TestSanitizeHandles(t *testing.T) {
	input := `{
		"nodes": [
			{"id": "c1", "type": "condition", "data": {"expression": "context.x > 1"}},
			{"id": "a", "type": "end"},
			{"id": "b", "type": "end"}
		],
		"edges": [
			{"id": "e1", "source": "c1", "target": "a", "sourceHandle": "true"},
			{"id": "e2", "source": "c1", "target": "b", "sourceHandle": "false", "targetHandle": null}
		]
	}`

	def, err := Sanitize(input)
	require.NoError(t, err)
	require.Len(t, def.Edges, 2)
	require.NotNil(t, def.Edges[0].SourceHandle)
	assert.Equal(t, "true", *def.Edges[0].SourceHandle)
	assert.Nil(t, def.Edges[1].TargetHandle)
}

func TestSanitizeIdempotent(t *testing.T) {
	input := `{
		"nodes": [
			{"id": "t1", "type": "trigger", "data": {"keyword": "hola"}, "position": {"x": 1.5, "y": 2}, "custom": {"nested": [1, 2]}},
			{"id": "o1", "type": "options", "data": {"text": "Pick", "options": ["Yes", "No"]}}
		],
		"edges": [
			{"id": "e1", "source": "t1", "target": "o1", "sourceHandle": "opt-0"}
		]
	}`

	first, err := Sanitize(input)
	require.NoError(t, err)
	second, err := Sanitize(first)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestSanitizeDetachesInput(t *testing.T) {
	data := map[string]interface{}{"text": "original"}
	input := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{"id": "n1", "type": "message", "data": data},
		},
	}

	def, err := Sanitize(input)
	require.NoError(t, err)

	data["text"] = "mutated"
	assert.Equal(t, "original", def.Nodes[0].Data["text"])
}

func TestSanitizeBadInput(t *testing.T) {
	_, err := Sanitize("not json")
	assert.Error(t, err)

	_, err = Sanitize(`[1, 2, 3]`)
	assert.Error(t, err)

	def, err := Sanitize(nil)
	require.NoError(t, err)
	assert.Empty(t, def.Nodes)
	assert.Empty(t, def.Edges)
}
