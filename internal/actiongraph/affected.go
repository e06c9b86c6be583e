package actiongraph

import (
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/util"
	"github.com/moonrepo/moon/internal/workspace"
)

// affectedProjects returns the ids of every project whose root contains at
// least one touched file. touchedFiles are workspace-relative, slash-separated paths,
// the same shape internal/vcs.Provider.ChangedFiles produces.
//
// The touched-file side is collected into a golang-set.Set so duplicate
// paths collapse; each project then scans it until one file falls under
// its root. The result is handed back
// as a util.Set[id.Id] since every downstream caller in this package wants
// a plain typed id.Id lookup.
func affectedProjects(ws workspace.Graph, touchedFiles []string) util.Set[id.Id] {
	touched := mapset.NewThreadUnsafeSet[string]()
	for _, f := range touchedFiles {
		touched.Add(filepath.ToSlash(f))
	}

	affected := util.NewSet[id.Id]()
	if touched.Cardinality() == 0 {
		return affected
	}

	for _, proj := range ws.Projects() {
		root := strings.TrimSuffix(filepath.ToSlash(proj.Root), "/")
		touched.Each(func(f string) bool {
			if root == "" || root == "." || f == root || strings.HasPrefix(f, root+"/") {
				affected.Add(proj.ID)
				return true // stop iterating this project's files
			}
			return false
		})
	}
	return affected
}
