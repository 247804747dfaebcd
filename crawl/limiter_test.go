package crawl_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteLimiter(t *testing.T) {
	t.Parallel()

	t.Run("first acquisition is immediate", func(t *testing.T) {
		t.Parallel()

		limiter := crawl.NewSiteLimiter()
		limiter.Configure("a", 100*time.Millisecond, 1)

		start := time.Now()
		release, err := limiter.Acquire(context.Background(), "a")
		elapsed := time.Since(start)

		require.NoError(t, err)
		release()
		assert.Less(t, elapsed, 50*time.Millisecond)
	})

	t.Run("consecutive dispatches are spaced by the delay", func(t *testing.T) {
		t.Parallel()

		const delay = 20 * time.Millisecond
		limiter := crawl.NewSiteLimiter()
		limiter.Configure("a", delay, 4)

		var (
			mu    sync.Mutex
			times []time.Time
			wg    sync.WaitGroup
		)
		limiter.OnDispatch = func(site string, at time.Time) {
			mu.Lock()
			defer mu.Unlock()
			times = append(times, at)
		}
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := limiter.Acquire(context.Background(), "a")
				if err != nil {
					t.Error(err)
					return
				}
				release()
			}()
		}
		wg.Wait()

		require.Len(t, times, 10)
		for i := 1; i < len(times); i++ {
			assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), delay,
				"dispatch %d came %v after the previous one", i, times[i].Sub(times[i-1]))
		}
	})

	t.Run("bounds concurrent holders", func(t *testing.T) {
		t.Parallel()

		limiter := crawl.NewSiteLimiter()
		limiter.Configure("a", 0, 2)

		var (
			current, peak atomic.Int32
			wg            sync.WaitGroup
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := limiter.Acquire(context.Background(), "a")
				if err != nil {
					t.Error(err)
					return
				}
				defer release()
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("sites are independent", func(t *testing.T) {
		t.Parallel()

		limiter := crawl.NewSiteLimiter()
		limiter.Configure("a", time.Second, 1)
		limiter.Configure("b", time.Second, 1)

		releaseA, err := limiter.Acquire(context.Background(), "a")
		require.NoError(t, err)
		defer releaseA()

		start := time.Now()
		releaseB, err := limiter.Acquire(context.Background(), "b")
		require.NoError(t, err)
		releaseB()
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()

		limiter := crawl.NewSiteLimiter()
		limiter.Configure("a", 0, 1)

		release, err := limiter.Acquire(context.Background(), "a")
		require.NoError(t, err)
		release()
		release()

		// A double release must not free a second slot.
		r1, err := limiter.Acquire(context.Background(), "a")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = limiter.Acquire(ctx, "a")
		require.Error(t, err)
		r1()
	})

	t.Run("canceled wait releases the slot", func(t *testing.T) {
		t.Parallel()

		limiter := crawl.NewSiteLimiter()
		limiter.Configure("a", 200*time.Millisecond, 1)

		release, err := limiter.Acquire(context.Background(), "a")
		require.NoError(t, err)
		release()

		// The slot is free but pacing blocks; give up while waiting.
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = limiter.Acquire(ctx, "a")
		require.Error(t, err)

		// The abandoned acquisition must not hold the only slot.
		ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel2()
		r, err := limiter.Acquire(ctx2, "a")
		require.NoError(t, err)
		r()
	})

	t.Run("unconfigured sites use defaults", func(t *testing.T) {
		t.Parallel()

		limiter := crawl.NewSiteLimiter(sitediff.Site{Name: "configured", Delay: sitediff.Ptr(time.Millisecond), Concurrency: 1})

		release, err := limiter.Acquire(context.Background(), "other")
		require.NoError(t, err)
		release()
	})
}
