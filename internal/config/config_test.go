package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestDefaultSetsCacheDirUnderWorkspaceRoot(t *testing.T) {
	opts := Default("/repo")
	assert.Equal(t, "/repo/.moon/cache", opts.CacheDir)
	assert.Greater(t, opts.Concurrency, 0)
}

func TestAddFlagsBindsConcurrency(t *testing.T) {
	opts := Default("/repo")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(flags)

	require := assert.New(t)
	require.NoError(flags.Parse([]string{"--concurrency=4", "--affected"}))
	require.Equal(4, opts.Concurrency)
	require.True(opts.AffectedOnly)
}
