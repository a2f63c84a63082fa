package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON trims markdown fences and surrounding prose from a model answer,
// keeping the outermost JSON object or array.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return text
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return text
	}
	return text[start : end+1]
}

// DecodeJSON parses a model answer into v.
func DecodeJSON(text string, v interface{}) error {
	if err := json.Unmarshal([]byte(ExtractJSON(text)), v); err != nil {
		return fmt.Errorf("failed to parse AI JSON: %w", err)
	}
	return nil
}
