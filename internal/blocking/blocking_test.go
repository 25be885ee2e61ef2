package blocking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitReturnsImmediatelyWhenAttemptSucceeds(t *testing.T) {
	c := New()
	v, ok := c.Wait(context.Background(), 0, "k", func() (any, bool) { return "ready", true })
	require.True(t, ok)
	require.Equal(t, "ready", v)
}

func TestWaitTimesOutViaContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := c.Wait(ctx, 0, "k", func() (any, bool) { return nil, false })
	require.False(t, ok)
	require.Equal(t, 0, c.WaiterCount(0, "k"))
}

func TestNotifyWakesExactlyOneWaiterFIFO(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	results := make([]any, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, ok := c.Wait(context.Background(), 0, "list", func() (any, bool) { return nil, false })
			if ok {
				results[idx] = v
			}
		}(i)
	}

	for c.WaiterCount(0, "list") < 2 {
		time.Sleep(time.Millisecond)
	}

	produced := false
	c.Notify(0, "list", func() (any, bool) {
		if produced {
			return nil, false
		}
		produced = true
		return "item", true
	})

	wg.Wait()
	delivered := 0
	for _, r := range results {
		if r != nil {
			delivered++
			require.Equal(t, "item", r)
		}
	}
	require.Equal(t, 1, delivered)
}

func TestNotifyFallsThroughOnLosingRace(t *testing.T) {
	c := New()
	done := make(chan any, 1)
	go func() {
		v, _ := c.Wait(context.Background(), 0, "k", func() (any, bool) { return nil, false })
		done <- v
	}()
	for c.WaiterCount(0, "k") < 1 {
		time.Sleep(time.Millisecond)
	}

	calls := 0
	c.Notify(0, "k", func() (any, bool) {
		calls++
		if calls == 1 {
			return nil, false // first waiter's attempt loses the race
		}
		return "won", true
	})

	select {
	case v := <-done:
		require.Nil(t, v)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}
