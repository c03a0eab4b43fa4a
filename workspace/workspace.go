// Package workspace manages local checkouts of repositories being deployed.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/mitchellh/go-homedir"

	"nexlayer.io/mcp/common"
)

// ErrInvalidURL is returned for repository URLs that cannot be cloned
var ErrInvalidURL = errors.New("invalid repository URL")

// CloneOptions configures a clone
type CloneOptions struct {
	URL    string
	Branch string // empty clones the default branch
	Depth  int    // 0 means 1 (shallow)
	Token  string // optional HTTPS token for private repositories
	Force  bool   // remove an existing checkout first
}

// CloneResult describes a checkout
type CloneResult struct {
	Path   string `json:"path"`
	URL    string `json:"repoUrl"`
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
	Reused bool   `json:"reused"`
}

// Manager owns the workspace directory
type Manager struct {
	dir    string
	logger *common.ContextLogger
}

// NewManager expands dir ("~" is allowed) and creates it
func NewManager(dir string, logger *common.ContextLogger) (*Manager, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand workspace dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace dir: %w", err)
	}
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	return &Manager{dir: expanded, logger: logger.WithField("component", "workspace")}, nil
}

// Dir returns the expanded workspace directory
func (m *Manager) Dir() string {
	return m.dir
}

// PathFor returns where a repository URL is checked out
func (m *Manager) PathFor(repoURL string) string {
	return filepath.Join(m.dir, common.URLToFilePath(repoURL))
}

// ValidateURL accepts https, http, ssh and scp-style git URLs
func ValidateURL(repoURL string) error {
	switch {
	case repoURL == "":
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	case strings.HasPrefix(repoURL, "https://"),
		strings.HasPrefix(repoURL, "http://"),
		strings.HasPrefix(repoURL, "ssh://"),
		strings.HasPrefix(repoURL, "git@"):
	default:
		return fmt.Errorf("%w: %s (expected https://, ssh:// or git@)", ErrInvalidURL, repoURL)
	}
	if strings.ContainsAny(repoURL, " \t\n") || strings.Contains(repoURL, "..") {
		return fmt.Errorf("%w: %s", ErrInvalidURL, repoURL)
	}
	return nil
}

// Clone checks out a repository. An existing checkout is reused unless Force is set.
func (m *Manager) Clone(ctx context.Context, opts CloneOptions) (*CloneResult, error) {
	if err := ValidateURL(opts.URL); err != nil {
		return nil, err
	}

	path := m.PathFor(opts.URL)
	logger := m.logger.WithFields(map[string]interface{}{
		"repo_url": opts.URL,
		"path":     path,
	})

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		if !opts.Force {
			result, err := describe(path, opts.URL)
			if err == nil {
				result.Reused = true
				logger.Info("Reusing existing checkout")
				return result, nil
			}
			logger.WithError(err).Warn("Existing checkout unreadable, cloning again")
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove existing checkout: %w", err)
		}
	}

	depth := opts.Depth
	if depth <= 0 {
		depth = 1
	}
	cloneOpts := &git.CloneOptions{
		URL:          opts.URL,
		Depth:        depth,
		SingleBranch: true,
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}
	if opts.Token != "" {
		cloneOpts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: opts.Token}
	}

	logger.WithField("branch", opts.Branch).Info("Cloning repository")
	if _, err := git.PlainCloneContext(ctx, path, false, cloneOpts); err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("failed to clone %s: %w", opts.URL, err)
	}

	return describe(path, opts.URL)
}

// describe reads branch and commit of a checkout
func describe(path, repoURL string) (*CloneResult, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD: %w", err)
	}

	result := &CloneResult{
		Path:   path,
		URL:    repoURL,
		Commit: head.Hash().String(),
	}
	if head.Name().IsBranch() {
		result.Branch = head.Name().Short()
	}
	return result, nil
}
