package decode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDecodeReturnsOneSegment(t *testing.T) {
	m := NewMock()
	result, err := m.Decode(context.Background(), make([]float32, 1600), 16000)
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	assert.NotEmpty(t, result.Segments[0].Text)
}

func TestScriptedDecodeReplaysInOrderThenRepeatsLast(t *testing.T) {
	first := Result{Segments: []Segment{{Text: "first"}}}
	second := Result{Segments: []Segment{{Text: "second"}}}
	s := NewScripted(first, second)

	r1, _ := s.Decode(context.Background(), nil, 16000)
	r2, _ := s.Decode(context.Background(), nil, 16000)
	r3, _ := s.Decode(context.Background(), nil, 16000)

	assert.Equal(t, "first", r1.Segments[0].Text)
	assert.Equal(t, "second", r2.Segments[0].Text)
	assert.Equal(t, "second", r3.Segments[0].Text)
	assert.Equal(t, 3, s.Calls())
}
