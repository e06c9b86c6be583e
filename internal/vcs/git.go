package vcs

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/pkg/errors"
)

// git implements Provider by shelling out to the git binary, the way an
// scm.git adapter typically does.
type git struct {
	repoRoot string
	ignore   *ignore.GitIgnore
}

// New locates the git repository containing dir and returns a Provider for
// it, or Disabled if dir isn't inside a git worktree.
func New(dir string) Provider {
	root, err := findRepoRoot(dir)
	if err != nil {
		return Disabled
	}
	return &git{repoRoot: root, ignore: loadIgnore(root)}
}

func findRepoRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", errors.Wrap(err, "vcs: locating repository root")
	}
	return strings.TrimSpace(string(out)), nil
}

// loadIgnore compiles .gitignore and .moonignore at the repo root, if
// present, into one matcher used to filter ChangedFiles results. A missing
// ignore file is not an error; it just contributes no patterns.
func loadIgnore(root string) *ignore.GitIgnore {
	var lines []string
	for _, name := range []string{".gitignore", ".moonignore"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func (g *git) RepoRoot() string {
	return g.repoRoot
}

func (g *git) IsEnabled() bool {
	return true
}

func (g *git) CurrentBranch() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = g.repoRoot
	out, err := cmd.Output()
	if err != nil {
		return "", errors.Wrap(err, "vcs: reading current branch")
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return "", nil
	}
	return branch, nil
}

// ChangedFiles returns paths relative to the repo root that differ from
// baseRef, plus untracked files when includeUntracked is set, filtered
// against the repo's .gitignore/.moonignore.
func (g *git) ChangedFiles(baseRef string, includeUntracked bool) ([]string, error) {
	var files []string

	diffArgs := []string{"diff", "--name-only"}
	if baseRef != "" {
		diffArgs = append(diffArgs, baseRef)
	}
	diffed, err := g.run(diffArgs...)
	if err != nil {
		return nil, errors.Wrapf(err, "vcs: diffing against %q", baseRef)
	}
	files = append(files, diffed...)

	if includeUntracked {
		untracked, err := g.run("ls-files", "--others", "--exclude-standard")
		if err != nil {
			return nil, errors.Wrap(err, "vcs: listing untracked files")
		}
		files = append(files, untracked...)
	}

	return g.filterIgnored(dedupe(files)), nil
}

func (g *git) run(args ...string) ([]string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, out)
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (g *git) filterIgnored(files []string) []string {
	if g.ignore == nil {
		return files
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !g.ignore.MatchesPath(f) {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
