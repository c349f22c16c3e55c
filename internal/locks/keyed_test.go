package locks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nadermx/heroesandmore/internal/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	key := utils.NewSixID()

	const workers = 50
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			km.Lock(key)
			defer km.Unlock(key)
			// Unsynchronized increment; the race detector flags any overlap.
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
	assert.Equal(t, 0, km.Len(), "entries should be reclaimed after release")
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	keyA := utils.NewSixID()
	keyB := utils.NewSixID()

	km.Lock(keyA)
	defer km.Unlock(keyA)

	done := make(chan struct{})
	go func() {
		km.Lock(keyB)
		km.Unlock(keyB)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on an independent key blocked behind another key's holder")
	}
}

func TestKeyedMutex_UnlockUnheldPanics(t *testing.T) {
	km := NewKeyedMutex()
	require.Panics(t, func() {
		km.Unlock(utils.NewSixID())
	})
}
