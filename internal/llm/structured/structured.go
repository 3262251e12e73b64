// Package structured declares the static JSON schemas the generation steps
// constrain their responses to, and decodes model output against them.
// Decoding is fail-open: a malformed or off-schema response yields the
// caller's documented sentinel, never an error that could abort a batch.
package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Schema is the subset of JSON Schema embedded in system prompts and used to
// check responses.
type Schema struct {
	Type        string             `json:"type"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Description string             `json:"description,omitempty"`
	Title       string             `json:"title,omitempty"`
}

// StringField builds an object schema with a single required string property.
func StringField(title, field, description string) *Schema {
	return &Schema{
		Type:  "object",
		Title: title,
		Properties: map[string]*Schema{
			field: {Type: "string", Description: description},
		},
		Required: []string{field},
	}
}

// StringListField builds an object schema with a single required property
// holding an array of strings.
func StringListField(title, field, description string) *Schema {
	return &Schema{
		Type:  "object",
		Title: title,
		Properties: map[string]*Schema{
			field: {
				Type:        "array",
				Items:       &Schema{Type: "string"},
				Description: description,
			},
		},
		Required: []string{field},
	}
}

// JSON renders the schema for embedding into a system prompt.
func (s *Schema) JSON() string {
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

var (
	fencedJSONRe  = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	trailingComma = regexp.MustCompile(`,\s*([\]}])`)
)

// sanitize strips markdown code fences and trailing commas, the two repairs
// that recover the vast majority of near-JSON model output.
func sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if matches := fencedJSONRe.FindStringSubmatch(raw); len(matches) > 1 {
		raw = strings.TrimSpace(matches[1])
	}
	return trailingComma.ReplaceAllString(raw, "$1")
}

// StringResult extracts a required string field from a model response. The
// second return is false when the response is malformed or the field is
// missing or mistyped; callers substitute their sentinel.
func StringResult(raw, field string) (string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(sanitize(raw)), &payload); err != nil {
		return "", false
	}

	value, ok := payload[field]
	if !ok {
		return "", false
	}

	var result string
	if err := json.Unmarshal(value, &result); err != nil {
		return "", false
	}
	return result, true
}

// StringListResult extracts a required list-of-strings field from a model
// response. Same fail-open contract as StringResult.
func StringListResult(raw, field string) ([]string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(sanitize(raw)), &payload); err != nil {
		return nil, false
	}

	value, ok := payload[field]
	if !ok {
		return nil, false
	}

	var result []string
	if err := json.Unmarshal(value, &result); err != nil {
		return nil, false
	}
	return result, true
}
