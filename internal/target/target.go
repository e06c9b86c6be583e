// Package target parses and represents moon task targets, grounded on the
// package-task identifier conventions in the original internal/util
// (GetTaskId/GetPackageTaskFromId), generalized to moon's richer scope
// grammar (self/deps-of-current/tag/all).
package target

import (
	"fmt"
	"strings"

	"github.com/moonrepo/moon/internal/id"
)

// Scope identifies how a Target's project portion should be resolved.
type Scope int

const (
	// ScopeProject addresses a single named project: "project:task".
	ScopeProject Scope = iota
	// ScopeSelf addresses the current project: "~:task".
	ScopeSelf
	// ScopeDeps addresses every dependency of the current project: "^:task".
	ScopeDeps
	// ScopeTag addresses every project carrying a tag: "#tag:task".
	ScopeTag
	// ScopeAll addresses every project defining the task: ":task".
	ScopeAll
)

// Target names a task, possibly scoped to a project, tag, or relative
// position in the dependency graph.
type Target struct {
	Scope   Scope
	Project id.Id // empty unless Scope == ScopeProject
	Tag     id.Id // empty unless Scope == ScopeTag
	Task    id.Id
}

// String renders the canonical form of a Target.
func (t Target) String() string {
	switch t.Scope {
	case ScopeProject:
		return fmt.Sprintf("%s:%s", t.Project, t.Task)
	case ScopeSelf:
		return fmt.Sprintf("~:%s", t.Task)
	case ScopeDeps:
		return fmt.Sprintf("^:%s", t.Task)
	case ScopeTag:
		return fmt.Sprintf("#%s:%s", t.Tag, t.Task)
	case ScopeAll:
		return fmt.Sprintf(":%s", t.Task)
	default:
		return fmt.Sprintf("<invalid>:%s", t.Task)
	}
}

// Parse parses a raw target string: a string with no ":" is treated as
// "~:<id>"; a bare ":" is invalid.
func Parse(raw string) (Target, error) {
	if !strings.Contains(raw, ":") {
		taskID, err := id.New(raw)
		if err != nil {
			return Target{}, fmt.Errorf("target: %w", err)
		}
		return Target{Scope: ScopeSelf, Task: taskID}, nil
	}

	idx := strings.IndexByte(raw, ':')
	left, right := raw[:idx], raw[idx+1:]

	taskID, err := id.New(right)
	if err != nil {
		return Target{}, fmt.Errorf("target %q: invalid task: %w", raw, err)
	}

	switch {
	case left == "":
		return Target{Scope: ScopeAll, Task: taskID}, nil
	case left == "~":
		return Target{Scope: ScopeSelf, Task: taskID}, nil
	case left == "^":
		return Target{Scope: ScopeDeps, Task: taskID}, nil
	case strings.HasPrefix(left, "#"):
		tagID, err := id.New(left[1:])
		if err != nil {
			return Target{}, fmt.Errorf("target %q: invalid tag: %w", raw, err)
		}
		return Target{Scope: ScopeTag, Tag: tagID, Task: taskID}, nil
	default:
		projID, err := id.New(left)
		if err != nil {
			return Target{}, fmt.Errorf("target %q: invalid project: %w", raw, err)
		}
		return Target{Scope: ScopeProject, Project: projID, Task: taskID}, nil
	}
}

// MustParse is like Parse but panics on error. Intended for tests and
// literal targets known to be valid at compile time.
func MustParse(raw string) Target {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}
