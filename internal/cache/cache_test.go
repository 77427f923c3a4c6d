package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostbyte/frostrisk/internal/frost"
)

func testKey(date string) Key {
	return Key{StationID: "145", Date: date, Crop: "almond", Variety: "nonpareil"}
}

func stubAssessment() *frost.Assessment {
	return &frost.Assessment{StationID: "145", Crop: "almond", Variety: "nonpareil", Selected: frost.StagePinkbud}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock, time.UTC, DefaultCurrentDayTTL)

	var calls atomic.Int64
	release := make(chan struct{})
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		calls.Add(1)
		<-release
		return stubAssessment(), nil
	}

	const workers = 16
	results := make([]*frost.Assessment, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.GetOrCompute(context.Background(), testKey("2025-01-10"), fn)
			require.NoError(t, err)
			results[i] = got
		}(i)
	}

	// Give every worker a chance to join the in-flight entry.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "compute should run exactly once")
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestGetOrComputePastDateCachedForever(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 2, 18, 12, 0, 0, 0, time.UTC))
	c := New(clock, time.UTC, DefaultCurrentDayTTL)

	var calls atomic.Int64
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		calls.Add(1)
		return stubAssessment(), nil
	}

	key := testKey("2025-02-10")
	_, err := c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)
	_, err = c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "past-day entry should never expire")
}

func TestGetOrComputeCurrentDateExpires(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 2, 18, 12, 0, 0, 0, time.UTC))
	c := New(clock, time.UTC, 10*time.Minute)

	var calls atomic.Int64
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		calls.Add(1)
		return stubAssessment(), nil
	}

	key := testKey("2025-02-18")
	_, err := c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	_, err = c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "entry inside TTL should be served from cache")

	clock.Advance(6 * time.Minute)
	_, err = c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load(), "entry past TTL should recompute")
}

func TestGetOrComputeCurrentLocalDayExpires(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 18:00 PST on the key's date is already the next calendar day in UTC;
	// the entry must still be treated as volatile.
	clock := clockwork.NewFakeClockAt(time.Date(2025, 2, 18, 18, 0, 0, 0, loc))
	c := New(clock, loc, 10*time.Minute)

	var calls atomic.Int64
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		calls.Add(1)
		return stubAssessment(), nil
	}

	key := testKey("2025-02-18")
	_, err = c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, err = c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load(), "current local day past TTL should recompute")
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock, time.UTC, DefaultCurrentDayTTL)

	var calls atomic.Int64
	boom := errors.New("upstream down")
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return stubAssessment(), nil
	}

	key := testKey("2025-01-10")
	_, err := c.GetOrCompute(context.Background(), key, fn)
	require.ErrorIs(t, err, boom)

	got, err := c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, int64(2), calls.Load())
}

func TestGetOrComputeCallerCancelDoesNotAbortOthers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock, time.UTC, DefaultCurrentDayTTL)

	release := make(chan struct{})
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		select {
		case <-release:
			return stubAssessment(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := testKey("2025-01-10")
	cancelCtx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(cancelCtx, key, fn)
		errc <- err
	}()

	patient := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		got, err := c.GetOrCompute(context.Background(), key, fn)
		if err == nil && got == nil {
			err = errors.New("nil assessment")
		}
		patient <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	assert.NoError(t, <-patient, "surviving caller should still receive the result")
}

func TestGetDoesNotJoinInflight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock, time.UTC, DefaultCurrentDayTTL)

	release := make(chan struct{})
	key := testKey("2025-01-10")
	go c.GetOrCompute(context.Background(), key, func(ctx context.Context) (*frost.Assessment, error) {
		<-release
		return stubAssessment(), nil
	})

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok, "Get should not report an unfinished compute")

	close(release)
	assert.Eventually(t, func() bool {
		_, ok := c.Get(key)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock, time.UTC, DefaultCurrentDayTTL)

	var calls atomic.Int64
	fn := func(ctx context.Context) (*frost.Assessment, error) {
		calls.Add(1)
		return stubAssessment(), nil
	}

	key := testKey("2025-01-10")
	_, err := c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)

	c.Invalidate(key)
	_, err = c.GetOrCompute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}
