package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetPut(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("missing")
	assert.False(t, ok)

	s := New("abc", time.Now())
	r.Put("abc", s)

	got, ok := r.Get("abc")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	r.Delete("abc")
	_, ok = r.Get("abc")
	assert.False(t, ok)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("%d-%d", i, j)
				r.Put(id, New(id, time.Now()))
				_, ok := r.Get(id)
				assert.True(t, ok)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1600, r.Len())
}

func TestRegistryExpire(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := New("old", base)
	fresh := New("fresh", base)
	fresh.Touch(base.Add(50 * time.Minute))
	r.Put(old.ID(), old)
	r.Put(fresh.ID(), fresh)

	removed := r.Expire(base.Add(time.Hour), 30*time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := r.Get("old")
	assert.False(t, ok)
	_, ok = r.Get("fresh")
	assert.True(t, ok)
}

func TestSessionAttributes(t *testing.T) {
	s := New(NewID(), time.Now())
	assert.NotEmpty(t, s.ID())

	s.Set("user", "alice")
	v, ok := s.Get("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
	assert.Equal(t, 1, s.Len())

	s.Delete("user")
	_, ok = s.Get("user")
	assert.False(t, ok)
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
