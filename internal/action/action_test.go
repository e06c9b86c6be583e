package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/target"
)

func TestOperationFinishIdempotent(t *testing.T) {
	op := NewOperation(OpHashGeneration)
	op.Finish(StatusPassed)
	finishedAt := op.FinishedAt
	op.Finish(StatusFailed) // second call must be a no-op
	assert.Equal(t, StatusPassed, op.Status)
	assert.Equal(t, finishedAt, op.FinishedAt)
}

func TestActionNeverLeavesTerminalState(t *testing.T) {
	a := NewAction(NewSyncWorkspace(), false)
	a.Start()
	a.Finish(StatusPassed)
	assert.True(t, a.Status().IsTerminal())
	a.Finish(StatusFailed)
	assert.Equal(t, StatusPassed, a.Status(), "terminal actions must not transition again")
}

func TestNodeIdentityDeduplicates(t *testing.T) {
	rt := runtimespec.Runtime{Toolchain: "node", Version: runtimespec.Version{Kind: runtimespec.VersionToolchain, Spec: "18"}}
	n1 := NewSyncProject(rt, id.Id("app"))
	n2 := NewSyncProject(rt, id.Id("app"))
	n3 := NewSyncProject(rt, id.Id("other"))

	assert.Equal(t, n1.Identity(), n2.Identity())
	assert.NotEqual(t, n1.Identity(), n3.Identity())
}

func TestRunTaskIdentityDistinguishesArgsAndEnv(t *testing.T) {
	tgt := target.MustParse("app:build")
	n1 := NewRunTask(tgt, runtimespec.System, RunTaskOptions{Args: []string{"--watch"}})
	n2 := NewRunTask(tgt, runtimespec.System, RunTaskOptions{})
	assert.NotEqual(t, n1.Identity(), n2.Identity())
}
