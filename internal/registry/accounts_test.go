package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalfeed/curator/internal/model"
)

func writeAccounts(t *testing.T, dir string, source model.Source, content string) {
	t.Helper()
	srcDir := filepath.Join(dir, string(source))
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "accounts.yaml"), []byte(content), 0o644))
}

func TestLoad_GroupedLayout(t *testing.T) {
	dir := t.TempDir()
	writeAccounts(t, dir, model.SourceX, `
_note: internal handles only
researchers:
  - "@Karpathy"
  - ylecun
companies_labs:
  - OpenAI
`)

	reg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, GroupResearchers, reg.Group(model.SourceX, "karpathy"))
	assert.Equal(t, GroupResearchers, reg.Group(model.SourceX, "@KARPATHY"))
	assert.Equal(t, GroupCompaniesLabs, reg.Group(model.SourceX, "openai"))
	assert.Equal(t, GroupUncategorized, reg.Group(model.SourceX, "stranger"))
	assert.Equal(t, []string{"karpathy", "openai", "ylecun"}, reg.Accounts(model.SourceX))
}

func TestLoad_FlatLayout(t *testing.T) {
	dir := t.TempDir()
	writeAccounts(t, dir, model.SourceInstagram, "- alice\n- bob\n")

	reg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, GroupUncategorized, reg.Group(model.SourceInstagram, "alice"))
	assert.Equal(t, []string{"alice", "bob"}, reg.Accounts(model.SourceInstagram))
}

func TestLoad_MissingFileMeansNoAccounts(t *testing.T) {
	reg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, reg.Accounts(model.SourceX))
	assert.Equal(t, GroupUncategorized, reg.Group(model.SourceX, "anyone"))
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeAccounts(t, dir, model.SourceX, "researchers: {not: [valid\n")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_DuplicateHandleKeptOnce(t *testing.T) {
	dir := t.TempDir()
	writeAccounts(t, dir, model.SourceX, `
researchers:
  - karpathy
  - "@karpathy"
`)

	reg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"karpathy"}, reg.Accounts(model.SourceX))
	assert.Equal(t, GroupResearchers, reg.Group(model.SourceX, "karpathy"))
}

func TestLoad_CrossGroupDuplicateIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeAccounts(t, dir, model.SourceX, `
influencers:
  - karpathy
researchers:
  - karpathy
`)

	// Groups are resolved in a fixed order, so the winner never depends on
	// map iteration.
	for i := 0; i < 20; i++ {
		reg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, GroupResearchers, reg.Group(model.SourceX, "karpathy"))
	}
}

func TestLoad_CustomGroupKept(t *testing.T) {
	dir := t.TempDir()
	writeAccounts(t, dir, model.SourceX, `
journalists:
  - caseynewton
`)

	reg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "journalists", reg.Group(model.SourceX, "caseynewton"))
}

func TestGroupOrder_EndsWithUncategorized(t *testing.T) {
	order := GroupOrder()
	require.NotEmpty(t, order)
	assert.Equal(t, GroupUncategorized, order[len(order)-1])
}
