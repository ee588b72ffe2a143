package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundQueueFIFOOrder(t *testing.T) {
	q := NewOutboundQueue()
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	frame, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), frame)
	q.Done()

	frame, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), frame)
	q.Done()
}

func TestOutboundQueueNextBlocksUntilPush(t *testing.T) {
	q := NewOutboundQueue()
	resultCh := make(chan []byte, 1)
	go func() {
		frame, ok := q.Next()
		if ok {
			resultCh <- frame
		}
	}()

	select {
	case <-resultCh:
		t.Fatal("Next returned before any frame was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push([]byte("hello"))
	select {
	case got := <-resultCh:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("Next never woke up after Push")
	}
}

func TestOutboundQueueCloseDrainsPendingThenReturnsFalse(t *testing.T) {
	q := NewOutboundQueue()
	q.Push([]byte("last"))
	q.Close()

	frame, ok := q.Next()
	require.True(t, ok, "a pending frame must still be delivered after Close")
	assert.Equal(t, []byte("last"), frame)
	q.Done()

	_, ok = q.Next()
	assert.False(t, ok, "Next must report closed once the queue is drained")
}

func TestOutboundQueueCloseWakesBlockedWaiter(t *testing.T) {
	q := NewOutboundQueue()
	done := make(chan struct{})
	go func() {
		_, ok := q.Next()
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake a blocked Next")
	}
}
