package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberLoadsOnce(t *testing.T) {
	c := New(time.Minute)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	key := c.Key("skills", "table", "list")
	v, err := Remember(c, key, load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	v, err = Remember(c, key, load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestRememberDoesNotCacheErrors(t *testing.T) {
	c := New(time.Minute)
	boom := errors.New("boom")
	_, err := Remember(c, "k", func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestRememberWithoutCache(t *testing.T) {
	v, err := Remember[string](nil, "k", func() (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestInvalidateOnlyTouchesOneDataset(t *testing.T) {
	c := New(time.Minute)
	c.Set(c.Key("a", "chart"), 1)
	c.Set(c.Key("a", "table"), 2)
	c.Set(c.Key("ab", "chart"), 3)

	assert.Equal(t, 2, c.Invalidate("a"))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(c.Key("ab", "chart"))
	assert.True(t, ok)
}

func TestStaleLoadIsNeverServed(t *testing.T) {
	c := New(time.Minute)
	staleKey := c.Key("a", "summary")

	// A load that started before the invalidation finishes after it.
	c.Invalidate("a")
	c.Set(staleKey, "stale")

	_, ok := c.Get(c.Key("a", "summary"))
	assert.False(t, ok)
}

func TestFlush(t *testing.T) {
	c := New(0)
	c.Set(c.Key("a"), 1)
	c.Set(c.Key("b"), 2)
	c.Flush()
	assert.Zero(t, c.Len())
}
