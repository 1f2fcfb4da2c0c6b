// Package registry loads the tracked-account lists that drive scraping and
// digest grouping.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/signalfeed/curator/internal/model"
)

// Group names recognized in accounts.yaml, in digest display order.
const (
	GroupResearchers   = "researchers"
	GroupCompaniesLabs = "companies_labs"
	GroupPractitioners = "practitioners"
	GroupInfluencers   = "influencers"
	GroupUncategorized = "uncategorized"
)

// GroupOrder returns the digest display order for account groups.
func GroupOrder() []string {
	return []string{
		GroupResearchers,
		GroupCompaniesLabs,
		GroupPractitioners,
		GroupInfluencers,
		GroupUncategorized,
	}
}

// Registry maps tracked accounts to their group, per source.
type Registry struct {
	groups   map[model.Source]map[string]string
	accounts map[model.Source][]string
}

// Load reads <dir>/<source>/accounts.yaml for every known source. A missing
// file means the source tracks no accounts; a malformed file is an error.
//
// Two layouts are accepted: a map from group name to handle list, or a bare
// handle list (every handle lands in uncategorized). Top-level keys starting
// with "_" are ignored so files can carry notes.
func Load(dir string) (*Registry, error) {
	r := &Registry{
		groups:   make(map[model.Source]map[string]string),
		accounts: make(map[model.Source][]string),
	}

	for _, source := range model.AllSources() {
		path := filepath.Join(dir, string(source), "accounts.yaml")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("registry: read %s", path))
		}

		grouped, err := parseAccounts(data)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("registry: parse %s", path))
		}

		byAuthor := make(map[string]string)
		var all []string
		for _, group := range orderedGroups(grouped) {
			for _, h := range grouped[group] {
				h = normalizeHandle(h)
				if h == "" {
					continue
				}
				if prev, dup := byAuthor[h]; dup {
					zap.L().Warn("registry: duplicate handle",
						zap.String("source", string(source)),
						zap.String("handle", h),
						zap.String("kept", prev),
						zap.String("ignored", group),
					)
					continue
				}
				byAuthor[h] = group
				all = append(all, h)
			}
		}
		sort.Strings(all)

		r.groups[source] = byAuthor
		r.accounts[source] = all
	}

	return r, nil
}

// orderedGroups returns grouped's keys in a fixed order: the known groups
// first, then the rest sorted. A handle listed in two groups then resolves
// to the same group on every load.
func orderedGroups(grouped map[string][]string) []string {
	known := make(map[string]bool)
	var names []string
	for _, name := range GroupOrder() {
		known[name] = true
		if _, ok := grouped[name]; ok {
			names = append(names, name)
		}
	}

	var rest []string
	for name := range grouped {
		if !known[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// parseAccounts decodes either accepted layout into group → handles.
func parseAccounts(data []byte) (map[string][]string, error) {
	var grouped map[string][]string
	if err := yaml.Unmarshal(data, &grouped); err == nil {
		out := make(map[string][]string, len(grouped))
		for group, handles := range grouped {
			if strings.HasPrefix(group, "_") {
				continue
			}
			out[group] = handles
		}
		return out, nil
	}

	var flat []string
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	return map[string][]string{GroupUncategorized: flat}, nil
}

// Group returns the group for an author, or uncategorized when the author is
// not tracked. Author matching is case-insensitive with any @ stripped, the
// same normalization applied at load.
func (r *Registry) Group(source model.Source, author string) string {
	if group, ok := r.groups[source][normalizeHandle(author)]; ok {
		return group
	}
	return GroupUncategorized
}

// Accounts returns every tracked handle for a source, sorted.
func (r *Registry) Accounts(source model.Source) []string {
	return r.accounts[source]
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
