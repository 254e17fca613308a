package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownstreamReordersPackets(t *testing.T) {
	d := NewDownstream(1)
	now := time.Now()
	require.True(t, d.Push(3, "P3", now))
	require.True(t, d.Push(1, "P1", now))
	require.True(t, d.Push(2, "P2", now))

	out := d.DrainReady(now, StaleWindow)
	assert.Equal(t, []interface{}{"P1", "P2", "P3"}, out)
	assert.Equal(t, 0, d.Len())
}

func TestDownstreamGapStalls(t *testing.T) {
	d := NewDownstream(1)
	now := time.Now()
	require.True(t, d.Push(5, "P5", now))

	out := d.DrainReady(now, StaleWindow)
	assert.Empty(t, out)
	assert.Equal(t, 1, d.Len())
}

func TestDownstreamOutOfWindowDropped(t *testing.T) {
	d := NewDownstream(10)
	ok := d.Push(4, "stale", time.Now())
	assert.False(t, ok)
	assert.Equal(t, 0, d.Len())
}

func TestDownstreamGapOlderThanStaleWindowIsSkipped(t *testing.T) {
	d := NewDownstream(1)
	pushedAt := time.Now()
	require.True(t, d.Push(5, "P5", pushedAt))

	// Still within the window: the gap (seq 1..4 missing) still blocks.
	out := d.DrainReady(pushedAt.Add(StaleWindow-time.Second), StaleWindow)
	assert.Empty(t, out)
	assert.Equal(t, 1, d.Len())

	// Past the window: NextExpected jumps to 5 and it is released.
	out = d.DrainReady(pushedAt.Add(StaleWindow+time.Second), StaleWindow)
	assert.Equal(t, []interface{}{"P5"}, out)
	assert.Equal(t, uint64(6), d.NextExpected())
}
