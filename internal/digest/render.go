package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/registry"
)

var sourceIcons = map[model.Source]string{
	model.SourceX:         "𝕏",
	model.SourceInstagram: "📸",
	model.SourceTikTok:    "🎵",
	model.SourceLinkedIn:  "💼",
	model.SourceWeb:       "🌐",
}

var sourceNames = map[model.Source]string{
	model.SourceX:         "X (Twitter)",
	model.SourceInstagram: "Instagram",
	model.SourceTikTok:    "TikTok",
	model.SourceLinkedIn:  "LinkedIn",
	model.SourceWeb:       "Web / RSS",
}

var groupIcons = map[string]string{
	registry.GroupResearchers:   "🔬",
	registry.GroupCompaniesLabs: "🏢",
	registry.GroupPractitioners: "⚙️",
	registry.GroupInfluencers:   "📢",
	registry.GroupUncategorized: "📌",
}

var groupTitles = map[string]string{
	registry.GroupResearchers:   "Research & Academia",
	registry.GroupCompaniesLabs: "Companies & Labs",
	registry.GroupPractitioners: "Practitioners & Builders",
	registry.GroupInfluencers:   "Influencers & Educators",
	registry.GroupUncategorized: "Other",
}

// Render produces the markdown digest. The output contains no generation
// timestamp: rendering the same Digest twice yields identical bytes.
func Render(d *Digest) []byte {
	var sb strings.Builder

	sb.WriteString("# AI News Digest\n\n")
	fmt.Fprintf(&sb, "**Period:** %s to %s\n", dateOrDash(d.PeriodFrom), dateOrDash(d.PeriodTo))
	fmt.Fprintf(&sb, "**Total content analyzed:** %d\n", d.TotalAnalyzed)
	fmt.Fprintf(&sb, "**News items found:** %d\n", d.NewsCount)
	sb.WriteString("\n---\n\n")

	for _, section := range d.Sections {
		icon, name := sourceIcons[section.Source], sourceNames[section.Source]
		if icon == "" {
			icon = "📄"
		}
		if name == "" {
			name = string(section.Source)
		}
		fmt.Fprintf(&sb, "## %s %s\n\n", icon, name)

		for _, group := range section.Groups {
			icon, title := groupIcons[group.Name], groupTitles[group.Name]
			if icon == "" {
				icon = "📌"
			}
			if title == "" {
				title = group.Name
			}
			fmt.Fprintf(&sb, "### %s %s\n\n", icon, title)

			for _, it := range group.Items {
				writeItem(&sb, it)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}

func writeItem(sb *strings.Builder, it model.CanonicalItem) {
	line := it.Summary
	if line == "" {
		line = truncate(it.Text, 100)
	}
	fmt.Fprintf(sb, "- **@%s** (%s): %s\n", it.Author, it.CreatedAt.UTC().Format("2006-01-02"), line)
	if it.URL != "" {
		fmt.Fprintf(sb, "  [View](%s)\n", it.URL)
	}
	sb.WriteString("\n")
}

func dateOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
