package classify

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/signalfeed/curator/pkg/anthropic"
)

// Verdict is one model decision for one post, matched by echoed token.
type Verdict struct {
	Token    string `json:"token"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// extractText concatenates the text blocks of a response.
func extractText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// parseVerdicts decodes a model response into verdicts. Code fences and any
// prose around the array are tolerated; a response with no parseable array
// is an error.
func parseVerdicts(text string) ([]Verdict, error) {
	cleaned := cleanJSONArray(text)
	if cleaned == "" {
		return nil, eris.New("classify: no JSON array in response")
	}

	var verdicts []Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdicts); err != nil {
		return nil, eris.Wrap(err, "classify: decode verdicts")
	}
	return verdicts, nil
}

// cleanJSONArray strips markdown fences and surrounding prose, returning the
// outermost bracketed array, or "" when none is present.
func cleanJSONArray(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
