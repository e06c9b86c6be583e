package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw      string
		expected Target
	}{
		{"build", Target{Scope: ScopeSelf, Task: "build"}},
		{"app:build", Target{Scope: ScopeProject, Project: "app", Task: "build"}},
		{"~:build", Target{Scope: ScopeSelf, Task: "build"}},
		{"^:build", Target{Scope: ScopeDeps, Task: "build"}},
		{"#frontend:build", Target{Scope: ScopeTag, Tag: "frontend", Task: "build"}},
		{":build", Target{Scope: ScopeAll, Task: "build"}},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			actual, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{"", ":", "app:", ":app:"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "app:build", MustParse("app:build").String())
	assert.Equal(t, "~:build", MustParse("build").String())
	assert.Equal(t, "^:build", MustParse("^:build").String())
	assert.Equal(t, "#frontend:build", MustParse("#frontend:build").String())
	assert.Equal(t, ":build", MustParse(":build").String())
}
