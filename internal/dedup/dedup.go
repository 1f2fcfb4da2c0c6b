// Package dedup collapses duplicate canonical items and applies the
// lookback window.
package dedup

import (
	"sort"
	"time"

	"github.com/signalfeed/curator/internal/model"
)

// Apply returns the items whose created_at falls inside the lookback window
// (the boundary itself is included) with duplicate ids collapsed. The input
// is not mutated; the result is sorted newest-first with id as tie-break so
// downstream artifacts are stable across runs.
func Apply(items []model.CanonicalItem, now time.Time, lookbackDays int) []model.CanonicalItem {
	cutoff := now.UTC().AddDate(0, 0, -lookbackDays)

	windowed := make([]model.CanonicalItem, 0, len(items))
	for _, it := range items {
		if it.CreatedAt.Before(cutoff) {
			continue
		}
		windowed = append(windowed, it)
	}

	return Sort(collapse(windowed))
}

// Merge combines two item sets keyed on id, with entries from newer taking
// precedence under the same tie-break as Apply. Used when re-aggregating a
// single source against stale artifacts from a prior run.
func Merge(older, newer []model.CanonicalItem) []model.CanonicalItem {
	combined := make([]model.CanonicalItem, 0, len(older)+len(newer))
	combined = append(combined, older...)
	combined = append(combined, newer...)
	return Sort(collapse(combined))
}

// collapse keeps one representative per id. Tie-break: an entry with a
// non-empty summary beats one without; otherwise the later-seen entry wins.
func collapse(items []model.CanonicalItem) []model.CanonicalItem {
	byID := make(map[string]model.CanonicalItem, len(items))
	for _, it := range items {
		prev, seen := byID[it.ID]
		if seen && prev.Summary != "" && it.Summary == "" {
			continue
		}
		byID[it.ID] = it
	}

	out := make([]model.CanonicalItem, 0, len(byID))
	for _, it := range byID {
		out = append(out, it)
	}
	return out
}

// Sort orders items newest-first, breaking created_at ties by ascending id.
func Sort(items []model.CanonicalItem) []model.CanonicalItem {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}
