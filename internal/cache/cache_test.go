package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSet(t *testing.T) {
	c := New[int](time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 42)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	c.Set("a", 7)
	got, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestCacheExpiry(t *testing.T) {
	c := New[string](30 * time.Millisecond)

	c.Set("k", "v")
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)

	// A fresh Set revives the key with a new deadline.
	c.Set("k", "v2")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}
