package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWithinBudgetKeepsBuffer(t *testing.T) {
	s := New("s1", nil)
	overflow := s.Append([]float32{1, 2, 3}, 10)
	assert.Empty(t, overflow)
	assert.Equal(t, 3, s.BufferLen())
}

func TestAppendOverflowFlushesLiveTextAndClearsBuffer(t *testing.T) {
	s := New("s1", nil)
	s.SetLastLiveText("partial transcript")

	overflow := s.Append(make([]float32, 20), 10)

	assert.Equal(t, "partial transcript", overflow)
	assert.Equal(t, 0, s.BufferLen())
	assert.Empty(t, s.LastLiveText())
}

func TestAppendOverflowWithNoLiveTextReportsNoFlush(t *testing.T) {
	s := New("s1", nil)
	overflow := s.Append(make([]float32, 20), 10)
	assert.Empty(t, overflow)
	assert.Equal(t, 0, s.BufferLen())
}

func TestTruncatePrefixClampsToBufferLength(t *testing.T) {
	s := New("s1", nil)
	s.Append([]float32{1, 2, 3, 4, 5}, 100)

	s.TruncatePrefix(2)
	require.Equal(t, 3, s.BufferLen())

	s.TruncatePrefix(1000)
	assert.Equal(t, 0, s.BufferLen())
}

func TestCheckIdleTracksUnchangedBufferAcrossTicks(t *testing.T) {
	s := New("s1", nil)
	s.Append([]float32{1, 2, 3}, 100)

	ticks, changed := s.CheckIdle()
	assert.True(t, changed)
	assert.Equal(t, 0, ticks)

	ticks, changed = s.CheckIdle()
	assert.False(t, changed)
	assert.Equal(t, 1, ticks)

	ticks, changed = s.CheckIdle()
	assert.False(t, changed)
	assert.Equal(t, 2, ticks)

	s.Append([]float32{4}, 100)
	_, changed = s.CheckIdle()
	assert.True(t, changed)
}

func TestResetIdleZeroesCounter(t *testing.T) {
	s := New("s1", nil)
	s.Append([]float32{1}, 100)
	s.CheckIdle()
	s.CheckIdle()

	s.ResetIdle()
	ticks, _ := s.CheckIdle()
	assert.Equal(t, 1, ticks)
}

func TestDecodeGuardIsSingleFlight(t *testing.T) {
	s := New("s1", nil)
	require.True(t, s.TryAcquireDecode())
	assert.False(t, s.TryAcquireDecode())
	assert.True(t, s.Inflight())

	s.ReleaseDecode()
	assert.False(t, s.Inflight())
	assert.True(t, s.TryAcquireDecode())
}

func TestSetStateClosedStampsClosedAt(t *testing.T) {
	s := New("s1", nil)
	assert.True(t, s.ClosedAt().IsZero())

	s.SetState(Closed)
	assert.False(t, s.ClosedAt().IsZero())
	assert.Equal(t, Closed, s.State())
}
