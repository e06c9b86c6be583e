// Package vcs abstracts the version-control queries the action graph and
// task hashing need: which files changed, what the repo root is, and what
// branch is checked out. Only git is implemented.
//
// Grounded on the original internal/scm package (SCM interface, git
// adapter shelling out to `git diff --name-only` / `git ls-files`),
// generalized from ChangedFiles-only to the fuller Provider surface an
// external VCS collaborator needs.
package vcs

// Provider is the fixed query surface a VCS adapter exposes.
type Provider interface {
	// ChangedFiles returns paths, relative to RepoRoot, that differ from
	// baseRef (or from the working tree if baseRef is empty), optionally
	// including untracked files.
	ChangedFiles(baseRef string, includeUntracked bool) ([]string, error)
	// RepoRoot returns the absolute path to the repository root.
	RepoRoot() string
	// CurrentBranch returns the checked-out branch name, or "" if detached.
	CurrentBranch() (string, error)
	// IsEnabled reports whether this Provider found a usable repository.
	IsEnabled() bool
}

// disabled is returned by New when no recognized VCS is found at root; all
// queries are no-ops so callers can fall back to full-file-set hashing
// without special-casing a nil Provider.
type disabled struct{}

func (disabled) ChangedFiles(string, bool) ([]string, error) { return nil, nil }
func (disabled) RepoRoot() string                             { return "" }
func (disabled) CurrentBranch() (string, error)               { return "", nil }
func (disabled) IsEnabled() bool                              { return false }

// Disabled is the shared no-op Provider.
var Disabled Provider = disabled{}
