package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](time.Minute, 0, func() time.Time { return now })

	c.Set("k", "v")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestEvictsWhenFull(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int](time.Hour, 2, func() time.Time { return now })

	c.Set("a", 1)
	now = now.Add(time.Second)
	c.Set("b", 2)
	c.Set("b", 3)
	assert.Equal(t, 2, c.Len())

	c.Set("c", 4)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, _ := c.Get("b")
	assert.Equal(t, 3, v)
}

func TestDeleteAndFlush(t *testing.T) {
	c := New[int](0, 0, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	assert.Equal(t, 1, c.Len())

	c.Flush()
	assert.Zero(t, c.Len())
}
