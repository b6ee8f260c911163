package mirror

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameID(t *testing.T) {
	k := newKeyedMutex()

	var (
		active, peak atomic.Int32
		wg           sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(42)
			defer unlock()

			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, k.held())
}

func TestKeyedMutex_DifferentIDsDoNotBlock(t *testing.T) {
	k := newKeyedMutex()

	unlock1 := k.Lock(1)
	done := make(chan struct{})
	go func() {
		unlock2 := k.Lock(2)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on id 2 blocked behind id 1")
	}
	assert.Equal(t, 1, k.held())
	unlock1()
	assert.Zero(t, k.held())
}
