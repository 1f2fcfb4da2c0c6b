// Package normalize converts raw per-source payloads into canonical items.
package normalize

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/signalfeed/curator/internal/model"
)

// Error reports a raw record that cannot be normalized because a required
// field is missing or unusable. The caller decides whether to skip the
// record or abort the run.
type Error struct {
	Source model.Source
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s: %s: %s", e.Source, e.Field, e.Reason)
}

// Item converts one raw record into a canonical item. Text, timestamp and an
// identifier (native id or permalink) are required; everything else defaults
// to a neutral value when absent. Pure: no I/O, safe to call concurrently.
func Item(source model.Source, raw model.RawRecord) (model.CanonicalItem, error) {
	text := CollapseText(raw.Body())
	if text == "" {
		return model.CanonicalItem{}, &Error{Source: source, Field: "text", Reason: "missing"}
	}

	createdAt, ok := ParseTimestamp(raw.CreatedAt)
	if !ok {
		return model.CanonicalItem{}, &Error{Source: source, Field: "created_at", Reason: "unparseable timestamp " + quoteShort(raw.CreatedAt)}
	}

	nativeID := raw.NativeID()
	permalink := permalinkFor(source, raw)
	if nativeID == "" && permalink == "" {
		return model.CanonicalItem{}, &Error{Source: source, Field: "id", Reason: "no native id or permalink"}
	}

	author := "unknown"
	if raw.User != nil && raw.User.ScreenName != "" {
		author = raw.User.ScreenName
	} else if raw.Username != "" {
		author = raw.Username
	}
	author = strings.ToLower(strings.TrimPrefix(author, "@"))

	var links []string
	if raw.Entities != nil {
		for _, u := range raw.Entities.URLs {
			if u.ExpandedURL != "" {
				links = append(links, u.ExpandedURL)
			} else if u.URL != "" {
				links = append(links, u.URL)
			}
		}
	}

	// Quoted content stays a nested reference; it is never folded into Text.
	var quoted string
	if raw.QuotedStatus != nil {
		quoted = CollapseText(raw.QuotedStatus.Body())
	}

	return model.CanonicalItem{
		ID:         model.ItemID(source, nativeID, permalink),
		Source:     source,
		Author:     author,
		Text:       text,
		QuotedText: quoted,
		CreatedAt:  createdAt,
		URL:        permalink,
		Links:      links,
		Reposts:    raw.RetweetCount,
		Likes:      raw.FavoriteCount,
		Category:   model.CategoryUnclassified,
	}, nil
}

// CollapseText NFC-normalizes the text and collapses runs of whitespace
// (including newlines) to single spaces.
func CollapseText(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// permalinkFor returns the canonical permalink for a record, building one
// from the native id for platforms with predictable URL schemes.
func permalinkFor(source model.Source, raw model.RawRecord) string {
	if raw.URL != "" {
		return raw.URL
	}
	if source == model.SourceX && raw.NativeID() != "" {
		author := raw.Username
		if raw.User != nil && raw.User.ScreenName != "" {
			author = raw.User.ScreenName
		}
		if author != "" {
			return fmt.Sprintf("https://x.com/%s/status/%s", strings.ToLower(author), raw.NativeID())
		}
	}
	return ""
}

func quoteShort(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return fmt.Sprintf("%q", s)
}
