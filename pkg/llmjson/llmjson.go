// Package llmjson decodes JSON produced by language models, which is
// frequently wrapped in markdown fences or slightly malformed.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Unmarshal parses model output into v. It strips markdown fences, then
// tries strict JSON, then a repair pass for common defects (trailing
// commas, single quotes, unquoted keys).
func Unmarshal(raw string, v interface{}) error {
	cleaned := StripFences(raw)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return fmt.Errorf("unparseable model output: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("repaired output still invalid: %w", err)
	}
	return nil
}
