// Package digest turns a classified item set into the rendered markdown
// digest.
package digest

import (
	"sort"
	"time"

	"github.com/signalfeed/curator/internal/dedup"
	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/registry"
)

// Digest is the assembled structure the renderer walks. Sections appear in
// source display order, groups in registry group order with custom groups
// after (sorted by name), items newest-first with id as tie-break, so the
// same input always renders the same bytes.
type Digest struct {
	PeriodFrom    time.Time
	PeriodTo      time.Time
	TotalAnalyzed int
	NewsCount     int
	Sections      []Section
}

// Section collects the news items of one source.
type Section struct {
	Source model.Source
	Groups []Group
}

// Group collects the news items of one account group within a source.
type Group struct {
	Name  string
	Items []model.CanonicalItem
}

// Assemble builds a Digest from a classified item set. Only news items are
// placed in sections; the period and totals cover every item analyzed, so
// they are derived from item content alone and never from the clock.
func Assemble(items []model.CanonicalItem, reg *registry.Registry) *Digest {
	d := &Digest{TotalAnalyzed: len(items)}

	for _, it := range items {
		if d.PeriodFrom.IsZero() || it.CreatedAt.Before(d.PeriodFrom) {
			d.PeriodFrom = it.CreatedAt
		}
		if it.CreatedAt.After(d.PeriodTo) {
			d.PeriodTo = it.CreatedAt
		}
	}

	buckets := make(map[model.Source]map[string][]model.CanonicalItem)
	for _, it := range items {
		if it.Category != model.CategoryNews {
			continue
		}
		d.NewsCount++

		group := registry.GroupUncategorized
		if reg != nil {
			group = reg.Group(it.Source, it.Author)
		}
		if buckets[it.Source] == nil {
			buckets[it.Source] = make(map[string][]model.CanonicalItem)
		}
		buckets[it.Source][group] = append(buckets[it.Source][group], it)
	}

	for _, source := range model.AllSources() {
		byGroup, ok := buckets[source]
		if !ok {
			continue
		}
		section := Section{Source: source}
		for _, name := range groupOrder(byGroup) {
			section.Groups = append(section.Groups, Group{
				Name:  name,
				Items: dedup.Sort(byGroup[name]),
			})
		}
		d.Sections = append(d.Sections, section)
	}

	return d
}

// groupOrder returns byGroup's keys in display order: the known groups
// first, then any other group names from accounts.yaml sorted. Every bucket
// is rendered, so the header counts always match the body.
func groupOrder(byGroup map[string][]model.CanonicalItem) []string {
	known := make(map[string]bool)
	var names []string
	for _, name := range registry.GroupOrder() {
		known[name] = true
		if _, ok := byGroup[name]; ok {
			names = append(names, name)
		}
	}

	var rest []string
	for name := range byGroup {
		if !known[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
