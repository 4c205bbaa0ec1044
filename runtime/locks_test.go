package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	req := require.New(t)
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("conv-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	req.Equal(100, counter)
	req.Equal(0, km.Size())
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("conv-a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("conv-b")
		unlockB()
		close(done)
	}()

	// conv-b must proceed while conv-a is held.
	<-done
	unlockA()
	require.Equal(t, 0, km.Size())
}
