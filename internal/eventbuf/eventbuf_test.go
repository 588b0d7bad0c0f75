package eventbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnakagawa/loggy/internal/extractor"
)

func TestAppend_EvictsOldestWhenOverCapacity(t *testing.T) {
	b := New(2)
	b.Append(extractor.Event{Event: "a"})
	b.Append(extractor.Event{Event: "b"})
	b.Append(extractor.Event{Event: "c"})

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Event)
	assert.Equal(t, "c", snap[1].Event)
}

func TestSnapshot_LengthMatchesCount(t *testing.T) {
	b := New(10)
	b.Append(extractor.Event{Event: "a"}, extractor.Event{Event: "b"})
	assert.Equal(t, b.Count(), len(b.Snapshot()))
}

func TestClear_EmptiesBuffer(t *testing.T) {
	b := New(10)
	b.Append(extractor.Event{Event: "a"})
	b.Clear()
	assert.Equal(t, 0, b.Count())
}

func TestNew_NonPositiveCapacityFallsBack(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultCapacity, b.capacity)
}
