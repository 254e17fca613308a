package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veild/pkg/routing"
)

func TestUpstreamPriorityPreemption(t *testing.T) {
	u := NewUpstream()
	require.NoError(t, u.Push(routing.TransferMessage{Seq: 1, Priority: 1, Payload: []byte("C")}))
	require.NoError(t, u.Push(routing.TransferMessage{Seq: 2, Priority: 0, Payload: []byte("A")}))
	require.NoError(t, u.Push(routing.TransferMessage{Seq: 3, Priority: 0, Payload: []byte("B")}))

	var order []string
	for i := 0; i < 3; i++ {
		m, ok := u.DrainOne()
		require.True(t, ok)
		order = append(order, string(m.Payload))
	}
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestUpstreamOverflowAndDisplacement(t *testing.T) {
	u := NewUpstream()
	for i := 0; i < MaxTotal; i++ {
		require.NoError(t, u.Push(routing.TransferMessage{Seq: uint64(i), Priority: 5}))
	}
	assert.Equal(t, MaxTotal, u.Len())

	err := u.Push(routing.TransferMessage{Seq: 1000, Priority: 5})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, MaxTotal, u.Len())

	err = u.Push(routing.TransferMessage{Seq: 9999, Priority: 0})
	require.NoError(t, err)
	assert.Equal(t, MaxTotal, u.Len())

	first, ok := u.DrainOne()
	require.True(t, ok)
	assert.Equal(t, uint8(0), first.Priority)
	assert.Equal(t, uint64(9999), first.Seq)
}

func TestUpstreamDrainEmpty(t *testing.T) {
	u := NewUpstream()
	_, ok := u.DrainOne()
	assert.False(t, ok)
}

func TestUpstreamRequeueGoesBackToHead(t *testing.T) {
	u := NewUpstream()
	require.NoError(t, u.Push(routing.TransferMessage{Seq: 1, Priority: 0}))
	require.NoError(t, u.Push(routing.TransferMessage{Seq: 2, Priority: 0}))

	m, ok := u.DrainOne()
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.Seq)

	u.Requeue(m)
	m, ok = u.DrainOne()
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.Seq)
}
