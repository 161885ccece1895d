package lock

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestMemoryManager(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMemoryManager(clock.Now)

	_, err := m.Acquire("L1", 0, "A", "B")
	require.NoError(t, err)

	assert.True(t, m.IsLocked("A"))
	assert.False(t, m.IsLocked("C"))
	assert.True(t, m.IsFeatureModifiable("A", "L1"))
	assert.False(t, m.IsFeatureModifiable("A", ""))
	assert.False(t, m.IsFeatureModifiable("A", "L2"))
	assert.True(t, m.IsFeatureModifiable("C", ""))

	_, err = m.Acquire("L2", 0, "C", "B")
	var already *ErrAlreadyLocked
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "B", already.FeatureID)
	assert.False(t, m.IsLocked("C"), "failed acquire must not lock anything")

	m.Release("A")
	assert.True(t, m.IsFeatureModifiable("A", ""))

	ids := m.Locked("L1")
	sort.Strings(ids)
	assert.Equal(t, []string{"B"}, ids)

	m.ReleaseLock("L1")
	assert.False(t, m.IsLocked("B"))
}

func TestMemoryManagerExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMemoryManager(clock.Now)

	l, err := m.Acquire("L1", time.Minute, "A")
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Minute), l.Expires)
	assert.False(t, m.IsFeatureModifiable("A", ""))

	clock.t = clock.t.Add(time.Minute)
	assert.True(t, m.IsFeatureModifiable("A", ""))
	assert.False(t, m.IsLocked("A"))

	_, err = m.Acquire("L2", 0, "A")
	assert.NoError(t, err)
}

func TestNoLocks(t *testing.T) {
	var m Manager = NoLocks{}
	assert.True(t, m.IsFeatureModifiable("A", "anything"))
	m.Release("A")
}
