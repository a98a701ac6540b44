package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry()
	a := r.Register(nil)
	b := r.Register(nil)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())
}

func TestGetReturnsRegisteredSession(t *testing.T) {
	r := NewRegistry()
	s := r.Register(nil)

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Get("does-not-exist")
	assert.False(t, ok)
}

func TestReapOnlyRemovesClosedNonInflightSessions(t *testing.T) {
	r := NewRegistry()
	open := r.Register(nil)
	closedIdle := r.Register(nil)
	closedBusy := r.Register(nil)

	closedIdle.SetState(Closed)
	closedBusy.SetState(Closed)
	closedBusy.TryAcquireDecode()

	removed := r.Reap()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, r.Len())
	_, stillThere := r.Get(open.ID)
	assert.True(t, stillThere)
	_, stillBusy := r.Get(closedBusy.ID)
	assert.True(t, stillBusy)
	_, gone := r.Get(closedIdle.ID)
	assert.False(t, gone)
}

func TestRemoveDeletesSession(t *testing.T) {
	r := NewRegistry()
	s := r.Register(nil)
	r.Remove(s.ID)
	_, ok := r.Get(s.ID)
	assert.False(t, ok)
}
