package services

import (
	"context"
	"errors"
	"math"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/ports"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SameLocationIsTrivial(t *testing.T) {
	f := newFixture(t)

	res, err := f.cache.Resolve(context.Background(), "L1", "L1")
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.DistanceKm)
	require.NotNil(t, res.DurationMinutes)
	assert.Equal(t, 0, *res.DurationMinutes)
	assert.True(t, res.Cached)
	assert.Equal(t, domain.SourceTrivial, res.Source)
	assert.Zero(t, f.store.SegmentCount())
	assert.Zero(t, f.provider.Calls())
}

func TestResolve_SecondCallIsCacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.cache.Resolve(ctx, "L1", "L2")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, domain.SourceProvider, first.Source)
	assert.NotEmpty(t, first.SegmentID)

	second, err := f.cache.Resolve(ctx, "L1", "L2")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, domain.SourceCache, second.Source)

	assert.Equal(t, first.DistanceKm, second.DistanceKm)
	assert.Equal(t, first.DurationMinutes, second.DurationMinutes)
	assert.Equal(t, first.SegmentID, second.SegmentID)
	assert.Equal(t, 1, f.provider.Calls())

	seg, ok := f.store.Segment("L1", "L2")
	require.True(t, ok)
	assert.False(t, seg.Stale)
	assert.Equal(t, domain.SourceProvider, seg.Source)
	assert.Equal(t, testNow, seg.UpdatedAt)
}

func TestResolve_DirectionsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cache.Resolve(ctx, "L1", "L2")
	require.NoError(t, err)
	res, err := f.cache.Resolve(ctx, "L2", "L1")
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 2, f.provider.Calls())
	assert.Equal(t, 2, f.store.SegmentCount())
}

func TestResolve_ConcurrentCallersShareOneProviderCall(t *testing.T) {
	f := newFixture(t)
	f.provider.Gate = make(chan struct{})

	const callers = 10
	results := make([]Resolution, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.cache.Resolve(context.Background(), "L1", "L3")
		}()
	}

	require.Eventually(t, func() bool { return f.provider.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.provider.Gate)
	wg.Wait()

	assert.Equal(t, 1, f.provider.Calls())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].DistanceKm, results[i].DistanceKm)
		assert.Equal(t, results[0].SegmentID, results[i].SegmentID)
	}
	assert.Equal(t, 1, f.store.SegmentCount())
}

func TestResolve_CancelledCallerDoesNotAbortSharedWork(t *testing.T) {
	f := newFixture(t)
	f.provider.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.cache.Resolve(ctx, "L1", "L2")
		done <- err
	}()

	require.Eventually(t, func() bool { return f.provider.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.provider.Gate)
	require.Eventually(t, func() bool { return f.store.SegmentCount() == 1 }, time.Second, time.Millisecond)

	seg, _ := f.store.Segment("L1", "L2")
	assert.Equal(t, domain.SourceProvider, seg.Source)
}

func TestResolve_ProviderFailureFallsBackToGreatCircle(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = errors.New("provider down")

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)

	assert.False(t, math.IsNaN(res.DistanceKm) || math.IsInf(res.DistanceKm, 0))
	assert.InDelta(t, 360, res.DistanceKm, 10)
	assert.Nil(t, res.DurationMinutes)
	assert.Equal(t, domain.SourceFallback, res.Source)

	seg, ok := f.store.Segment("L1", "L2")
	require.True(t, ok)
	assert.Equal(t, domain.SourceFallback, seg.Source)
}

func TestResolve_LockPrimitiveErrorFailsOpen(t *testing.T) {
	f := newFixture(t, withPrimitive(&failingLock{}))

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, f.provider.Calls())
}

func TestResolve_LockHeldElsewhereWithoutResultFails(t *testing.T) {
	f := newFixture(t)
	ok, _ := f.locks.TryLock(context.Background(), domain.SegmentKey("L1", "L2"))
	require.True(t, ok)

	_, err := f.cache.Resolve(context.Background(), "L1", "L2")
	assert.ErrorIs(t, err, domain.ErrLockUnavailable)
	assert.True(t, IsRetryable(err))
	assert.Zero(t, f.provider.Calls())
	assert.Zero(t, f.store.SegmentCount())
}

func TestResolve_LockLoserPicksUpHolderResult(t *testing.T) {
	lock := &contendedLock{}
	f := newFixture(t, withPrimitive(lock))

	lock.onTry = func() {
		_, _ = f.store.UpsertSegment(context.Background(), domain.RoadSegment{
			FromLocationID:  "L1",
			ToLocationID:    "L2",
			DistanceKm:      429.9,
			DurationMinutes: ptrInt(355),
			Source:          domain.SourceProvider,
		})
	}

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 429.9, res.DistanceKm)
	assert.Zero(t, f.provider.Calls())
}

func TestResolve_StaleEntryIsRecomputed(t *testing.T) {
	f := newFixture(t)
	f.store.PutSegment(domain.RoadSegment{
		SegmentID:      "seg-1",
		FromLocationID: "L1",
		ToLocationID:   "L2",
		DistanceKm:     999,
		Source:         domain.SourceProvider,
		Stale:          true,
		UpdatedAt:      testNow.Add(-time.Minute),
	})

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 430.25, res.DistanceKm)
	assert.Equal(t, "seg-1", res.SegmentID)

	seg, _ := f.store.Segment("L1", "L2")
	assert.False(t, seg.Stale)
	assert.Equal(t, 430.25, seg.DistanceKm)
}

func TestResolve_StaleProviderValueIsNotKeptWhenRefreshFallsBack(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = errors.New("provider down")
	f.store.PutSegment(domain.RoadSegment{
		FromLocationID: "L1",
		ToLocationID:   "L2",
		DistanceKm:     999,
		Source:         domain.SourceProvider,
		Stale:          true,
		UpdatedAt:      testNow.Add(-time.Minute),
	})

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, res.Source)
	assert.NotEqual(t, 999.0, res.DistanceKm)
}

func TestResolve_OldFallbackEntryIsUpgraded(t *testing.T) {
	f := newFixture(t)
	f.store.PutSegment(domain.RoadSegment{
		FromLocationID: "L1",
		ToLocationID:   "L2",
		DistanceKm:     357.4,
		Source:         domain.SourceFallback,
		UpdatedAt:      testNow.Add(-7 * time.Hour),
	})

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, domain.SourceProvider, res.Source)
	assert.Equal(t, 430.25, res.DistanceKm)
}

func TestResolve_RecentFallbackEntryIsServed(t *testing.T) {
	f := newFixture(t)
	f.store.PutSegment(domain.RoadSegment{
		FromLocationID: "L1",
		ToLocationID:   "L2",
		DistanceKm:     357.4,
		Source:         domain.SourceFallback,
		UpdatedAt:      testNow.Add(-time.Hour),
	})

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 357.4, res.DistanceKm)
	assert.Zero(t, f.provider.Calls())
}

func TestResolve_FailedProviderRefreshKeepsProviderValue(t *testing.T) {
	f := newFixture(t, withCacheConfig(func(c *RoadSegmentCacheConfig) {
		c.ProviderRefreshAfter = time.Hour
	}))
	f.provider.Err = errors.New("provider down")
	f.store.PutSegment(domain.RoadSegment{
		SegmentID:       "seg-1",
		FromLocationID:  "L1",
		ToLocationID:    "L2",
		DistanceKm:      431,
		DurationMinutes: ptrInt(362),
		Source:          domain.SourceProvider,
		UpdatedAt:       testNow.Add(-2 * time.Hour),
	})

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.Equal(t, 431.0, res.DistanceKm)
	assert.Equal(t, domain.SourceProvider, res.Source)
	require.NotNil(t, res.DurationMinutes)
	assert.Equal(t, 362, *res.DurationMinutes)

	seg, _ := f.store.Segment("L1", "L2")
	assert.Equal(t, testNow, seg.UpdatedAt, "timestamp bumped so the next read is a hit")
	assert.Equal(t, domain.SourceProvider, seg.Source)
}

func TestResolve_SoftMissLoserReturnsPreviousValue(t *testing.T) {
	f := newFixture(t, withPrimitive(&contendedLock{}))
	f.store.PutSegment(domain.RoadSegment{
		FromLocationID: "L1",
		ToLocationID:   "L2",
		DistanceKm:     357.4,
		Source:         domain.SourceFallback,
		UpdatedAt:      testNow.Add(-7 * time.Hour),
	})

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 357.4, res.DistanceKm)
	assert.Zero(t, f.provider.Calls())
}

func TestResolve_MissingCoordinatesIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	f.store.PutLocation(domain.Location{ID: "L9"})

	_, err := f.cache.Resolve(context.Background(), "L1", "L9")
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinates)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, f.store.SegmentCount())

	_, err = f.cache.Resolve(context.Background(), "L1", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinates)
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)

	assert.False(t, f.locks.Held(domain.SegmentKey("L1", "L9")), "lock released on error")
}

// brokenReads fails every GetSegment call.
type brokenReads struct {
	ports.SegmentStore
}

func (b brokenReads) GetSegment(context.Context, string, string) (*domain.RoadSegment, error) {
	return nil, errors.New("read failed")
}

func TestResolve_StoreReadErrorIsTreatedAsMiss(t *testing.T) {
	f := newFixture(t)
	cache := NewRoadSegmentCache(
		brokenReads{SegmentStore: f.store},
		f.store,
		f.cache.resolver,
		NewSegmentLockCoordinator(f.locks),
		f.cache.cfg,
	)

	res, err := cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, f.store.SegmentCount())
}

func TestResolve_IDsContainingSeparatorAreDistinctPairs(t *testing.T) {
	f := newFixture(t)
	f.store.PutLocation(location("a|L1", -23.0, -46.0))
	f.store.PutLocation(location("L2|b", -22.0, -43.0))
	f.store.PutLocation(location("a", -20.0, -44.0))
	f.store.PutLocation(location("L1|L2|b", -25.0, -49.0))
	f.provider.Fn = func(from, to domain.Coordinates) (ports.RouteEstimate, error) {
		return ports.RouteEstimate{DistanceKm: math.Abs(to.Lat), Source: domain.SourceProvider}, nil
	}
	ctx := context.Background()

	first, err := f.cache.Resolve(ctx, "a|L1", "L2|b")
	require.NoError(t, err)
	second, err := f.cache.Resolve(ctx, "a", "L1|L2|b")
	require.NoError(t, err)

	assert.False(t, second.Cached)
	assert.Equal(t, 22.0, first.DistanceKm)
	assert.Equal(t, 25.0, second.DistanceKm)
	assert.Equal(t, 2, f.provider.Calls())
	assert.Equal(t, 2, f.store.SegmentCount())
}

func TestResolve_CoordinateChangeDuringResolutionIsRecomputed(t *testing.T) {
	f := newFixture(t)
	f.store.PutSegment(domain.RoadSegment{
		SegmentID:      "seg-1",
		FromLocationID: "L1",
		ToLocationID:   "L2",
		DistanceKm:     999,
		Source:         domain.SourceProvider,
		Stale:          true,
		UpdatedAt:      testNow.Add(-time.Minute),
	})

	ctx := context.Background()
	var once sync.Once
	f.provider.Fn = func(from, to domain.Coordinates) (ports.RouteEstimate, error) {
		// L2 moves while the first computation is in flight.
		once.Do(func() {
			_, err := f.store.UpdateCoordinates(ctx, "L2", -22.5, -43.0)
			assert.NoError(t, err)
			_, err = f.store.MarkStaleByLocation(ctx, "L2")
			assert.NoError(t, err)
		})
		return ports.RouteEstimate{DistanceKm: math.Abs(to.Lat), Source: domain.SourceProvider}, nil
	}

	res, err := f.cache.Resolve(ctx, "L1", "L2")
	require.NoError(t, err)
	assert.Equal(t, 22.5, res.DistanceKm, "value from the new coordinates")
	assert.Equal(t, 2, f.provider.Calls())

	seg, ok := f.store.Segment("L1", "L2")
	require.True(t, ok)
	assert.False(t, seg.Stale)
	assert.Equal(t, 22.5, seg.DistanceKm)
	assert.Equal(t, "seg-1", seg.SegmentID)
}

func TestResolve_EntryThatKeepsChangingIsNotStored(t *testing.T) {
	f := newFixture(t)
	marks := 0
	f.provider.Fn = func(from, to domain.Coordinates) (ports.RouteEstimate, error) {
		// Each computation loses to a newer stale row.
		marks++
		f.store.PutSegment(domain.RoadSegment{
			FromLocationID: "L1",
			ToLocationID:   "L2",
			DistanceKm:     1,
			Source:         domain.SourceFallback,
			Stale:          true,
			UpdatedAt:      testNow.Add(time.Duration(marks) * time.Second),
		})
		return ports.RouteEstimate{DistanceKm: 430.25, Source: domain.SourceProvider}, nil
	}

	res, err := f.cache.Resolve(context.Background(), "L1", "L2")
	require.NoError(t, err)
	assert.Equal(t, 430.25, res.DistanceKm)
	assert.False(t, res.Cached)
	assert.Equal(t, 1+maxRecomputes, f.provider.Calls())

	seg, _ := f.store.Segment("L1", "L2")
	assert.True(t, seg.Stale, "the newer stale mark is kept")
}

func TestResolve_SharedWorkIsBoundedByResolveTimeout(t *testing.T) {
	f := newFixture(t, withCacheConfig(func(c *RoadSegmentCacheConfig) {
		c.ResolveTimeout = 50 * time.Millisecond
	}))
	// The provider never answers on its own.
	f.provider.Gate = make(chan struct{})
	defer close(f.provider.Gate)

	done := make(chan Resolution, 1)
	go func() {
		res, err := f.cache.Resolve(context.Background(), "L1", "L2")
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		assert.Equal(t, domain.SourceFallback, res.Source)
		assert.InDelta(t, 360, res.DistanceKm, 10)
	case <-time.After(5 * time.Second):
		t.Fatal("resolution outlived its timeout")
	}
}
