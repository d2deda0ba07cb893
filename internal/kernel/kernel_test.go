package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCallOrdering exercises the duplicate-detection guarantee that
// spec.md §8 invariant 1 depends on: concurrent Call submissions with
// the same key must yield exactly one success.
func TestCallOrdering(t *testing.T) {
	seen := make(map[string]bool)
	k := New("test", func(tag string, args interface{}) (interface{}, error) {
		key := args.(string)
		if seen[key] {
			return nil, errDuplicate
		}
		seen[key] = true
		return key, nil
	})
	require.NoError(t, k.Start(nil))
	defer k.Stop()

	const n = 64
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err := k.Call(ctx, "create", "same-key")
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent Call with the same key must succeed")
}

func TestCastIsFireAndForget(t *testing.T) {
	applied := make(chan string, 1)
	k := New("test", func(tag string, args interface{}) (interface{}, error) {
		applied <- args.(string)
		return nil, nil
	})
	require.NoError(t, k.Start(nil))
	defer k.Stop()

	k.Cast("send", "hello")

	select {
	case v := <-applied:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("cast was never applied")
	}
}

func TestStartRunsLoadBeforeServing(t *testing.T) {
	loaded := false
	k := New("test", func(tag string, args interface{}) (interface{}, error) {
		return loaded, nil
	})
	require.NoError(t, k.Start(func() error {
		loaded = true
		return nil
	}))
	defer k.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := k.Call(ctx, "check", nil)
	require.NoError(t, err)
	require.True(t, v.(bool))
}

// TestHandlerPanicRecovers exercises the recovery wrap described in
// supervisor's design notes: a handler panic must not take the worker
// goroutine down with it, so the kernel keeps serving afterward.
func TestHandlerPanicRecovers(t *testing.T) {
	k := New("test", func(tag string, args interface{}) (interface{}, error) {
		if tag == "boom" {
			panic("handler exploded")
		}
		return "ok", nil
	})
	require.NoError(t, k.Start(nil))
	defer k.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := k.Call(ctx, "boom", nil)
	require.Error(t, err)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	v, err := k.Call(ctx2, "check", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	select {
	case <-k.Done():
		t.Fatal("worker goroutine exited after a recovered panic")
	default:
	}
}

var errDuplicate = &testErr{"duplicate"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
