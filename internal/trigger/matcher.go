// Package trigger selects the flow and trigger node that should handle an
// inbound message. Matching is keyword based over normalized text: NFD
// decomposition with combining marks stripped, lowercased and trimmed, so
// "Hola", "HOLA" and "holá" all hit the same trigger.
package trigger

import (
	"strings"
	"unicode"

	"waflow/internal/models"

	"golang.org/x/text/unicode/norm"
)

// DefaultKeyword is the reserved trigger that matches any inbound message
const DefaultKeyword = "default"

// MatchInput carries the inbound fields triggers are matched against
type MatchInput struct {
	FullText         string
	InteractiveTitle string
	InteractiveID    string
}

// Normalize folds case and diacritics and trims surrounding whitespace.
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	decomposed := norm.NFD.String(s)
	var sb strings.Builder
	sb.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.ToLower(strings.TrimSpace(sb.String()))
}

// KeywordCandidates derives the exact-match candidate set from the inbound
// fields: each normalized whole value plus its whitespace-separated parts.
func KeywordCandidates(values ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, v := range values {
		normalized := Normalize(v)
		add(normalized)
		for _, part := range strings.Fields(normalized) {
			add(part)
		}
	}
	return out
}

// SelectFlow picks the flow that should handle the inbound message from the
// tenant's candidate flows. Candidates are expected to already be filtered to
// active WhatsApp flows. Returns nil when there is nothing to run.
func SelectFlow(candidates []models.Flow, input MatchInput) *models.Flow {
	if len(candidates) == 0 {
		return nil
	}

	keywords := KeywordCandidates(input.FullText, input.InteractiveTitle, input.InteractiveID)
	keywordSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keywordSet[k] = true
	}
	normText := Normalize(input.FullText)
	normTitle := Normalize(input.InteractiveTitle)
	normID := Normalize(input.InteractiveID)

	var best *models.Flow
	bestScore := 0
	var latestDefault *models.Flow

	for i := range candidates {
		flow := &candidates[i]
		keyword := Normalize(flow.Trigger)
		if keyword == "" {
			continue
		}

		if keyword == DefaultKeyword {
			if latestDefault == nil || flow.UpdatedAt.After(latestDefault.UpdatedAt) {
				latestDefault = flow
			}
			if bestScore < 1 || (bestScore == 1 && flow.UpdatedAt.After(best.UpdatedAt)) {
				best = flow
				bestScore = 1
			}
			continue
		}

		matched := keywordSet[keyword] ||
			(normText != "" && strings.Contains(normText, keyword)) ||
			(normTitle != "" && strings.Contains(normTitle, keyword)) ||
			normID == keyword
		if !matched {
			continue
		}

		score := 6
		if normText == keyword {
			score += 2
		}
		if normTitle == keyword {
			score += 1
		}
		if normID == keyword {
			score += 1
		}

		if score > bestScore || (score == bestScore && flow.UpdatedAt.After(best.UpdatedAt)) {
			best = flow
			bestScore = score
		}
	}

	if bestScore > 0 {
		return best
	}
	if latestDefault != nil {
		return latestDefault
	}
	return &candidates[0]
}

// SelectTriggerNode picks the trigger node that starts a session for the
// inbound text. First keyword match wins, then the first default trigger.
// Nil means the inbound is dropped.
func SelectTriggerNode(def *models.FlowDefinition, text string) *models.Node {
	triggers := def.TriggerNodes()
	if len(triggers) == 0 {
		return nil
	}

	keywords := KeywordCandidates(text)
	keywordSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keywordSet[k] = true
	}
	normText := Normalize(text)

	var firstDefault *models.Node
	for i := range triggers {
		node := &triggers[i]
		keyword := Normalize(nodeKeyword(node))
		if keyword == "" {
			continue
		}
		if keyword == DefaultKeyword {
			if firstDefault == nil {
				firstDefault = node
			}
			continue
		}
		if keywordSet[keyword] || (normText != "" && strings.Contains(normText, keyword)) {
			return node
		}
	}
	return firstDefault
}

func nodeKeyword(node *models.Node) string {
	if node.Data == nil {
		return ""
	}
	keyword, _ := node.Data["keyword"].(string)
	return keyword
}
