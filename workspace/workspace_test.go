package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, path string) string {
	t.Helper()
	repo, err := git.PlainInit(path, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "package.json"), []byte(`{"name":"shop"}`), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("package.json")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestNewManager_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws", "nested")
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, m.Dir())
	assert.DirExists(t, dir)
}

func TestNewManager_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	m, err := NewManager("~/.nexlayer/workspaces", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".nexlayer", "workspaces"), m.Dir())
}

func TestPathFor(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(m.Dir(), "github.com_acme_shop"), m.PathFor("https://github.com/acme/shop.git"))
}

func TestValidateURL(t *testing.T) {
	for _, ok := range []string{
		"https://github.com/acme/shop",
		"http://gitlab.local/team/api.git",
		"ssh://git@github.com/acme/shop.git",
		"git@github.com:acme/shop.git",
	} {
		assert.NoError(t, ValidateURL(ok), ok)
	}
	for _, bad := range []string{
		"",
		"ftp://example.com/repo",
		"/etc/passwd",
		"https://github.com/acme/../../etc",
		"https://github.com/acme/shop; rm -rf /",
	} {
		assert.ErrorIs(t, ValidateURL(bad), ErrInvalidURL, bad)
	}
}

func TestClone_ReusesExistingCheckout(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	url := "https://github.com/acme/shop.git"
	commit := initRepo(t, m.PathFor(url))

	result, err := m.Clone(context.Background(), CloneOptions{URL: url})
	require.NoError(t, err)

	assert.True(t, result.Reused)
	assert.Equal(t, m.PathFor(url), result.Path)
	assert.Equal(t, commit, result.Commit)
	assert.Equal(t, "master", result.Branch)
	assert.Equal(t, url, result.URL)
}

func TestClone_InvalidURL(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = m.Clone(context.Background(), CloneOptions{URL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestClone_CancelledContext(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Clone(ctx, CloneOptions{URL: "https://127.0.0.1:1/acme/shop.git"})
	require.Error(t, err)
	assert.NoDirExists(t, m.PathFor("https://127.0.0.1:1/acme/shop.git"))
}
