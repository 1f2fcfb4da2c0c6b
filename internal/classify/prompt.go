package classify

import (
	"encoding/json"

	"github.com/signalfeed/curator/internal/model"
)

const systemPrompt = `You curate a daily AI news digest. You receive a JSON array of social posts. Each entry has a "token", an "author", a "text", and sometimes a "quoted_text".

Classify every post as exactly one of:
- "news": reports something concrete happening in AI (model or product releases, research results, benchmarks, funding, acquisitions, policy or regulation).
- "chatter": everything else (opinions, jokes, questions, reactions, personal updates, vague hype).

Respond with a JSON array only, no prose and no code fences, one entry per input post:
[{"token": "<token copied verbatim from the input>", "category": "news" or "chatter", "summary": "<for news: one factual sentence; for chatter: empty string>"}]

Every input token must appear exactly once in the output.`

// maxPostRunes caps the text sent per post. Posts longer than this are rare
// and the tail adds nothing to the verdict.
const maxPostRunes = 2000

type promptPost struct {
	Token      string `json:"token"`
	Author     string `json:"author"`
	Text       string `json:"text"`
	QuotedText string `json:"quoted_text,omitempty"`
}

// buildUserPrompt renders one batch of items as the JSON array the system
// prompt describes. The token is the item id, which is how verdicts are
// matched back to items.
func buildUserPrompt(items []model.CanonicalItem) (string, error) {
	posts := make([]promptPost, len(items))
	for i, it := range items {
		posts[i] = promptPost{
			Token:      it.ID,
			Author:     it.Author,
			Text:       truncateRunes(it.Text, maxPostRunes),
			QuotedText: truncateRunes(it.QuotedText, maxPostRunes),
		}
	}
	b, err := json.Marshal(posts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
