package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueue_OrderAndDrain(t *testing.T) {
	q := newWriteQueue()
	var (
		mu  sync.Mutex
		got []byte
	)
	go q.run(func(batch []task) {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range batch {
			got = append(got, t.payload...)
		}
	})

	for i := 0; i < 200; i++ {
		require.True(t, q.push(task{payload: []byte{byte(i)}}))
	}
	q.close()

	require.Len(t, got, 200)
	for i, b := range got {
		assert.Equal(t, byte(i), b)
	}
	assert.False(t, q.push(task{payload: []byte{1}}))
	assert.Zero(t, q.depth())
}

func TestWriteQueue_Barrier(t *testing.T) {
	q := newWriteQueue()
	count := 0
	go q.run(func(batch []task) {
		for _, t := range batch {
			if t.fn != nil {
				t.done <- t.fn()
				continue
			}
			count++
		}
	})
	defer q.close()

	for i := 0; i < 50; i++ {
		q.push(task{payload: []byte{0}})
	}
	done := make(chan error, 1)
	seen := 0
	errBarrier := errors.New("barrier")
	q.push(task{fn: func() error { seen = count; return errBarrier }, done: done})

	assert.ErrorIs(t, <-done, errBarrier)
	assert.Equal(t, 50, seen)
}
