package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetStateRoundTrip(t *testing.T) {
	c := NewContext("/workspace", "/cache")
	_, ok := c.TargetState("app:build")
	assert.False(t, ok)

	c.SetTargetState("app:build", TargetState{Status: "passed", Hash: "abc"})
	st, ok := c.TargetState("app:build")
	assert.True(t, ok)
	assert.Equal(t, "passed", st.Status)
}

func TestNamedMutexIsSharedAcrossCalls(t *testing.T) {
	c := NewContext("/workspace", "/cache")
	m1 := c.NamedMutex("release")
	m2 := c.NamedMutex("release")
	assert.Same(t, m1, m2)
}

func TestNamedMutexConcurrentCreation(t *testing.T) {
	c := NewContext("/workspace", "/cache")
	var wg sync.WaitGroup
	mutexes := make([]*sync.Mutex, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mutexes[i] = c.NamedMutex("shared")
		}(i)
	}
	wg.Wait()
	for _, m := range mutexes {
		assert.Same(t, mutexes[0], m)
	}
}
