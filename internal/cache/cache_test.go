package cache

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(s string) string { return s }

func TestCacheNormalizesKeys(t *testing.T) {
	c := New[string, string](NoExpiration, strings.ToLower)

	_, ok := c.Get("Someone")
	assert.False(t, ok)

	c.Set("Someone", "42")
	v, ok := c.Get("someone")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, 1, c.Len())

	c.Delete("SOMEONE")
	_, ok = c.Get("someone")
	assert.False(t, ok)
}

func TestCacheEntryExpires(t *testing.T) {
	c := New[string, int](10*time.Millisecond, identity)

	c.Set("k", 1)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCacheGetOrLoad(t *testing.T) {
	c := New[string, string](NoExpiration, identity)
	loads := 0
	load := func() (string, error) {
		loads++
		return "42", nil
	}

	v, hit, err := c.GetOrLoad("golang", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "42", v)

	v, hit, err = c.GetOrLoad("golang", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "42", v)
	assert.Equal(t, 1, loads)
}

func TestCacheGetOrLoadDoesNotStoreErrors(t *testing.T) {
	c := New[string, string](NoExpiration, identity)

	_, _, err := c.GetOrLoad("golang", func() (string, error) { return "", errors.New("lookup failed") })
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCacheClear(t *testing.T) {
	c := New[string, int](time.Minute, identity)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
