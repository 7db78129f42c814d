package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := map[string]string{
		"The Lost Commuters":      "The Lost Commuters",
		"# The Lost Commuters":    "The Lost Commuters",
		"### The Lost Commuters ": "The Lost Commuters",
		"  ## Line 9":             "Line 9",
		"C# Programming":          "C# Programming",
		"#":                       "",
		"   ":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTitle(in), in)
	}
}

func TestHeuristicMatch(t *testing.T) {
	assert.True(t, heuristicMatch("lost commuters", "The Lost Commuters"))
	assert.True(t, heuristicMatch("THE LOST COMMUTERS", "The Lost Commuters"))
	assert.True(t, heuristicMatch("the spire", "Spire"))
	assert.False(t, heuristicMatch("Theatre", "Atre"))
	assert.False(t, heuristicMatch("Lost Commuter", "The Lost Commuters"))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "w\x00title")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, k.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	ctx := context.Background()

	unlockA, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, k.size())

	unlockA()
	unlockA()
	unlockB()
	assert.Zero(t, k.size())
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.size())

	unlock()
	assert.Zero(t, k.size())
}
