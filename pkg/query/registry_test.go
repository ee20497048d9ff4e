package query

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry(testLogger())
	assert.Zero(t, r.Len())

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Register("req-1", cancel, nil)
	assert.Equal(t, 1, r.Len())

	r.Unregister("req-1")
	assert.Zero(t, r.Len())

	// Unregistering twice is harmless.
	r.Unregister("req-1")
	assert.Zero(t, r.Len())
}

func TestRegistryDrainAllNotifiesAndCancels(t *testing.T) {
	r := NewRegistry(testLogger())

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	var notified atomic.Int32
	r.Register("req-1", cancel1, func() { notified.Add(1) })
	r.Register("req-2", cancel2, func() { notified.Add(1) })

	r.DrainAll()

	assert.Equal(t, int32(2), notified.Load())
	require.Error(t, ctx1.Err())
	require.Error(t, ctx2.Err())
}

func TestRegistryDrainAllEmptyIsNoop(t *testing.T) {
	r := NewRegistry(testLogger())
	r.DrainAll()
	assert.Zero(t, r.Len())
}

func TestRegistryAwaitEmpty(t *testing.T) {
	r := NewRegistry(testLogger())

	// Already empty: returns immediately.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, r.AwaitEmpty(ctx))

	// Occupied: times out.
	_, streamCancel := context.WithCancel(context.Background())
	defer streamCancel()
	r.Register("req-1", streamCancel, nil)

	short, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	assert.False(t, r.AwaitEmpty(short))

	// Stream ends while waiting: reports empty.
	go func() {
		time.Sleep(30 * time.Millisecond)
		r.Unregister("req-1")
	}()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.True(t, r.AwaitEmpty(waitCtx))
}
