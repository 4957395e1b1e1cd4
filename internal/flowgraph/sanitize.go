// Package flowgraph normalizes flow definitions into the canonical node-edge
// shape the executor interprets. Sanitizing is idempotent and detaches the
// result from its input.
package flowgraph

import (
	"encoding/json"
	"fmt"
	"math"

	"waflow/internal/models"
)

// Sanitize accepts a flow definition as JSON text, raw bytes, a generic
// object or an already-typed definition and returns the canonical form.
// Malformed nodes and edges are dropped; unknown node properties survive.
func Sanitize(input interface{}) (*models.FlowDefinition, error) {
	raw, err := toGenericMap(input)
	if err != nil {
		return nil, err
	}

	def := &models.FlowDefinition{
		Nodes: []models.Node{},
		Edges: []models.Edge{},
	}
	if raw == nil {
		return def, nil
	}

	if items, ok := raw["nodes"].([]interface{}); ok {
		for _, item := range items {
			if node, ok := sanitizeNode(item); ok {
				def.Nodes = append(def.Nodes, node)
			}
		}
	}
	if items, ok := raw["edges"].([]interface{}); ok {
		for _, item := range items {
			if edge, ok := sanitizeEdge(item); ok {
				def.Edges = append(def.Edges, edge)
			}
		}
	}

	return def, nil
}

func toGenericMap(input interface{}) (map[string]interface{}, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		// Round-trip through JSON to detach from the caller's object
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("definition is not serializable: %w", err)
		}
		return decodeMap(b)
	case string:
		if v == "" {
			return nil, nil
		}
		return decodeMap([]byte(v))
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return decodeMap(v)
	case json.RawMessage:
		return toGenericMap([]byte(v))
	case models.FlowDefinition:
		return definitionToMap(&v)
	case *models.FlowDefinition:
		if v == nil {
			return nil, nil
		}
		return definitionToMap(v)
	default:
		return nil, fmt.Errorf("unsupported definition input %T", input)
	}
}

func definitionToMap(def *models.FlowDefinition) (map[string]interface{}, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("definition is not serializable: %w", err)
	}
	return decodeMap(b)
}

func decodeMap(b []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("definition is not a JSON object: %w", err)
	}
	return raw, nil
}

func sanitizeNode(item interface{}) (models.Node, bool) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return models.Node{}, false
	}

	id, _ := obj["id"].(string)
	if id == "" {
		return models.Node{}, false
	}
	typeStr, _ := obj["type"].(string)
	nodeType := models.NodeType(typeStr)
	if !nodeType.IsValid() {
		return models.Node{}, false
	}

	node := models.Node{
		ID:       id,
		Type:     nodeType,
		Data:     sanitizeData(obj["data"]),
		Position: sanitizePosition(obj["position"]),
	}

	for key, value := range obj {
		switch key {
		case "id", "type", "data", "position":
			continue
		}
		b, err := json.Marshal(value)
		if err != nil {
			continue
		}
		if node.Extra == nil {
			node.Extra = make(map[string]json.RawMessage)
		}
		node.Extra[key] = json.RawMessage(b)
	}

	return node, true
}

func sanitizeData(value interface{}) map[string]interface{} {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	// obj came out of a fresh JSON decode in toGenericMap, so it is already
	// detached from the caller's input
	return obj
}

func sanitizePosition(value interface{}) models.Position {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return models.Position{}
	}
	return models.Position{
		X: finiteNumber(obj["x"]),
		Y: finiteNumber(obj["y"]),
	}
}

func finiteNumber(value interface{}) float64 {
	n, ok := value.(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func sanitizeEdge(item interface{}) (models.Edge, bool) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return models.Edge{}, false
	}

	id, _ := obj["id"].(string)
	source, _ := obj["source"].(string)
	target, _ := obj["target"].(string)
	if id == "" || source == "" || target == "" {
		return models.Edge{}, false
	}

	return models.Edge{
		ID:           id,
		Source:       source,
		Target:       target,
		SourceHandle: handleValue(obj["sourceHandle"]),
		TargetHandle: handleValue(obj["targetHandle"]),
	}, true
}

func handleValue(value interface{}) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	return &s
}
