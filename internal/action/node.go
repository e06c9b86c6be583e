// Package action models the action graph's runtime records: nodes,
// actions, operations and their statuses. Modeled on a core.Task/
// nodes.PackageTask node shape and a runsummary.TaskExecutionSummary
// timing shape, generalized from one task kind to the full ActionNode
// variant set.
package action

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/target"
)

// Kind discriminates the ActionNode tagged-variant.
type Kind int

const (
	KindSyncWorkspace Kind = iota
	KindSetupToolchain
	KindInstallWorkspaceDeps
	KindInstallProjectDeps
	KindSyncProject
	KindRunTask
)

func (k Kind) String() string {
	switch k {
	case KindSyncWorkspace:
		return "SyncWorkspace"
	case KindSetupToolchain:
		return "SetupToolchain"
	case KindInstallWorkspaceDeps:
		return "InstallWorkspaceDeps"
	case KindInstallProjectDeps:
		return "InstallProjectDeps"
	case KindSyncProject:
		return "SyncProject"
	case KindRunTask:
		return "RunTask"
	default:
		return "Unknown"
	}
}

// kindRank gives the stable sibling-ordering rank used by the action graph
// builder.
func (k Kind) kindRank() int {
	return int(k)
}

// Node is a single vertex in the action graph: one of the six ActionNode
// variants. Only the fields relevant to the variant are populated; callers
// should switch on Kind.
type Node struct {
	Kind      Kind
	Runtime   runtimespec.Runtime
	ProjectID id.Id // SetupToolchain excepted, set for node kinds scoped to a project
	Target    target.Target // set only for KindRunTask

	// RunTask-only fields.
	Args        []string
	Env         map[string]string
	Interactive bool
	Persistent  bool
	Timeout     time.Duration
}

// NewSyncWorkspace returns the singleton SyncWorkspace node.
func NewSyncWorkspace() Node {
	return Node{Kind: KindSyncWorkspace}
}

// NewSetupToolchain returns a SetupToolchain node for rt.
func NewSetupToolchain(rt runtimespec.Runtime) Node {
	return Node{Kind: KindSetupToolchain, Runtime: rt}
}

// NewInstallWorkspaceDeps returns an InstallWorkspaceDeps node for rt.
func NewInstallWorkspaceDeps(rt runtimespec.Runtime) Node {
	return Node{Kind: KindInstallWorkspaceDeps, Runtime: rt}
}

// NewInstallProjectDeps returns an InstallProjectDeps node for rt/project.
func NewInstallProjectDeps(rt runtimespec.Runtime, project id.Id) Node {
	return Node{Kind: KindInstallProjectDeps, Runtime: rt, ProjectID: project}
}

// NewSyncProject returns a SyncProject node for rt/project.
func NewSyncProject(rt runtimespec.Runtime, project id.Id) Node {
	return Node{Kind: KindSyncProject, Runtime: rt, ProjectID: project}
}

// RunTaskOptions configure a RunTask node beyond its target and runtime.
type RunTaskOptions struct {
	Args        []string
	Env         map[string]string
	Interactive bool
	Persistent  bool
	Timeout     time.Duration
}

// NewRunTask returns a RunTask node.
func NewRunTask(tgt target.Target, rt runtimespec.Runtime, opts RunTaskOptions) Node {
	return Node{
		Kind:        KindRunTask,
		Runtime:     rt,
		ProjectID:   tgt.Project,
		Target:      tgt,
		Args:        opts.Args,
		Env:         opts.Env,
		Interactive: opts.Interactive,
		Persistent:  opts.Persistent,
		Timeout:     opts.Timeout,
	}
}

// Identity returns a stable string identity for this node, used by the
// action graph builder to deduplicate nodes.
// It is derived purely from the node's variant and identity-relevant
// fields: project id, runtime, target id, and for RunTask also passthrough
// args and env.
func (n Node) Identity() string {
	var b strings.Builder
	b.WriteString(n.Kind.String())
	b.WriteByte('|')

	switch n.Kind {
	case KindSyncWorkspace:
		// singleton, no further discriminator
	case KindSetupToolchain, KindInstallWorkspaceDeps:
		b.WriteString(n.Runtime.Key())
	case KindInstallProjectDeps, KindSyncProject:
		b.WriteString(n.Runtime.Key())
		b.WriteByte('|')
		b.WriteString(n.ProjectID.String())
	case KindRunTask:
		b.WriteString(n.Runtime.Key())
		b.WriteByte('|')
		b.WriteString(n.Target.String())
		b.WriteByte('|')
		b.WriteString(strings.Join(n.Args, "\x1f"))
		b.WriteByte('|')
		keys := make([]string, 0, len(n.Env))
		for k := range n.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\x1f", k, n.Env[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Label renders a short human-readable description of the node.
func (n Node) Label() string {
	switch n.Kind {
	case KindSyncWorkspace:
		return "SyncWorkspace"
	case KindSetupToolchain:
		return fmt.Sprintf("SetupToolchain(%s)", n.Runtime)
	case KindInstallWorkspaceDeps:
		return fmt.Sprintf("InstallWorkspaceDeps(%s)", n.Runtime)
	case KindInstallProjectDeps:
		return fmt.Sprintf("InstallProjectDeps(%s, %s)", n.Runtime, n.ProjectID)
	case KindSyncProject:
		return fmt.Sprintf("SyncProject(%s)", n.ProjectID)
	case KindRunTask:
		return fmt.Sprintf("RunTask(%s)", n.Target)
	default:
		return "Unknown"
	}
}

// SiblingRank returns the rank used for stable sibling ordering: sort by
// (node_kind_rank, project_id, target_id).
func (n Node) SiblingRank() (kindRank int, projectID string, targetID string) {
	return n.Kind.kindRank(), n.ProjectID.String(), n.Target.String()
}
