package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Source identifies the platform a record was scraped from.
type Source string

const (
	SourceX         Source = "x"
	SourceInstagram Source = "instagram"
	SourceTikTok    Source = "tiktok"
	SourceLinkedIn  Source = "linkedin"
	SourceWeb       Source = "web"
)

// AllSources returns every known source in digest display order.
func AllSources() []Source {
	return []Source{SourceX, SourceInstagram, SourceTikTok, SourceLinkedIn, SourceWeb}
}

// ParseSource converts a user-supplied source name to a Source.
func ParseSource(s string) (Source, bool) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSources() {
		if src == known {
			return src, true
		}
	}
	return "", false
}

// Category is the classification verdict for an item.
type Category string

const (
	CategoryUnclassified Category = "unclassified"
	CategoryNews         Category = "news"
	CategoryChatter      Category = "chatter"
)

// RawRecord is the per-source payload as produced by a scraper. Field names
// cover the superset of shapes the platform APIs return; absent fields stay
// zero-valued and the normalizer substitutes defaults for the optional ones.
type RawRecord struct {
	ID            string       `json:"id,omitempty"`
	IDStr         string       `json:"id_str,omitempty"`
	Text          string       `json:"text,omitempty"`
	FullText      string       `json:"full_text,omitempty"`
	Username      string       `json:"username,omitempty"`
	User          *RawUser     `json:"user,omitempty"`
	CreatedAt     string       `json:"created_at,omitempty"`
	URL           string       `json:"url,omitempty"`
	Entities      *RawEntities `json:"entities,omitempty"`
	QuotedStatus  *RawRecord   `json:"quoted_status,omitempty"`
	RetweetCount  int          `json:"retweet_count,omitempty"`
	FavoriteCount int          `json:"favorite_count,omitempty"`
	Retweeted     bool         `json:"retweeted,omitempty"`
}

// RawUser holds the author block embedded in platform payloads.
type RawUser struct {
	ScreenName string `json:"screen_name,omitempty"`
	Name       string `json:"name,omitempty"`
}

// RawEntities holds link metadata embedded in platform payloads.
type RawEntities struct {
	URLs []RawURL `json:"urls,omitempty"`
}

// RawURL is a single link entity.
type RawURL struct {
	URL         string `json:"url,omitempty"`
	ExpandedURL string `json:"expanded_url,omitempty"`
}

// NativeID returns the platform-native identifier, preferring the string form.
func (r RawRecord) NativeID() string {
	if r.IDStr != "" {
		return r.IDStr
	}
	return r.ID
}

// Body returns the post text, preferring the untruncated form.
func (r RawRecord) Body() string {
	if r.FullText != "" {
		return r.FullText
	}
	return r.Text
}

// CanonicalItem is the source-agnostic representation of one post. It is the
// unit the aggregation and classification stages operate on.
type CanonicalItem struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	QuotedText string    `json:"quoted_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	URL        string    `json:"url"`
	Links      []string  `json:"links,omitempty"`
	Reposts    int       `json:"reposts"`
	Likes      int       `json:"likes"`
	Category   Category  `json:"category"`
	Summary    string    `json:"summary,omitempty"`
}

// ItemID derives the stable identifier for a post. The platform-native id
// takes precedence; the permalink is the fallback when no native id exists,
// so the same underlying post always maps to the same id across runs.
func ItemID(source Source, nativeID, permalink string) string {
	var key string
	if nativeID != "" {
		key = string(source) + "|id:" + nativeID
	} else {
		key = string(source) + "|url:" + CanonicalURL(permalink)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// CanonicalURL normalizes a permalink for id derivation: lowercased scheme
// and host, no fragment, no trailing slash. Unparseable input is returned
// trimmed so derivation stays deterministic either way.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
