package ica

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"portkiller/internal/knowledge"
)

// ErrNoJSON means no JSON object could be located in a reply.
var ErrNoJSON = errors.New("no valid JSON found")

const jsonFence = "```json"

// ExtractJSON pulls the first JSON object out of free text. It tries, in
// order: an object at the very start, the body of a ```json fence, and the
// first '{' anywhere. Braces inside string literals do not count.
func ExtractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "{") {
		if end := matchingBrace(trimmed); end >= 0 {
			return trimmed[:end+1], nil
		}
	}

	if start := strings.Index(trimmed, jsonFence); start >= 0 {
		rest := trimmed[start:]
		end := strings.Index(rest, "```\n")
		if end < 0 {
			end = strings.LastIndex(rest, "```")
		}
		if end > len(jsonFence) {
			return strings.TrimSpace(rest[len(jsonFence):end]), nil
		}
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := matchingBrace(trimmed[start:]); end >= 0 {
			return trimmed[start : start+end+1], nil
		}
	}

	return "", fmt.Errorf("%w in response", ErrNoJSON)
}

// matchingBrace returns the index of the brace closing the one at s[0], or -1.
func matchingBrace(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch s[i] {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

type wireAnalysis struct {
	DisplayName *string             `json:"display_name"`
	Description *string             `json:"description"`
	Category    *knowledge.Category `json:"category"`
	GroupHint   *string             `json:"group_hint"`
	Confidence  *float64            `json:"confidence"`
}

// ParseResponse extracts and strictly decodes a classification. Missing
// required fields, wrong types and unknown categories are errors.
func ParseResponse(text string) (knowledge.AnalysisResponse, error) {
	var empty knowledge.AnalysisResponse
	raw, err := ExtractJSON(text)
	if err != nil {
		return empty, err
	}

	var wire wireAnalysis
	if err := json.NewDecoder(bytes.NewReader([]byte(raw))).Decode(&wire); err != nil {
		return empty, fmt.Errorf("decode analysis: %w", err)
	}

	var missing []string
	if wire.DisplayName == nil {
		missing = append(missing, "display_name")
	}
	if wire.Description == nil {
		missing = append(missing, "description")
	}
	if wire.Category == nil {
		missing = append(missing, "category")
	}
	if wire.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return empty, fmt.Errorf("decode analysis: missing %s", strings.Join(missing, ", "))
	}

	confidence := *wire.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return knowledge.AnalysisResponse{
		DisplayName: *wire.DisplayName,
		Description: *wire.Description,
		Category:    *wire.Category,
		GroupHint:   wire.GroupHint,
		Confidence:  confidence,
	}, nil
}
