package services

import (
	"context"
	"errors"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/platform/obs"
	"route-segment-service/internal/ports"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Resolution is the answer to a segment distance request.
type Resolution struct {
	DistanceKm      float64
	DurationMinutes *int
	Cached          bool
	Source          domain.SegmentSource
	SegmentID       string
}

type RoadSegmentCacheConfig struct {
	// A fallback entry older than this is refreshed on read.
	FallbackUpgradeAfter time.Duration
	// A provider entry older than this is refreshed on read. Zero disables.
	ProviderRefreshAfter time.Duration
	// Waits between cache polls while another process holds the lock.
	PollWaits []time.Duration
	// Bounds the shared resolution, which outlives its callers.
	ResolveTimeout time.Duration
	Now            func() time.Time
}

var defaultPollWaits = []time.Duration{
	300 * time.Millisecond,
	800 * time.Millisecond,
	1500 * time.Millisecond,
}

const (
	defaultResolveTimeout = 45 * time.Second

	// A write rejected by a newer stale mark is recomputed this many times.
	maxRecomputes = 1
)

// RoadSegmentCache resolves directed segment distances through the segment
// store, collapsing concurrent work in-process with single-flight and across
// processes with the lock coordinator.
type RoadSegmentCache struct {
	store     ports.SegmentStore
	locations ports.LocationRepository
	resolver  ports.DistanceResolver
	locks     *SegmentLockCoordinator
	cfg       RoadSegmentCacheConfig

	inflight singleflight.Group
	log      *zap.SugaredLogger
}

func NewRoadSegmentCache(
	store ports.SegmentStore,
	locations ports.LocationRepository,
	resolver ports.DistanceResolver,
	locks *SegmentLockCoordinator,
	cfg RoadSegmentCacheConfig,
) *RoadSegmentCache {
	if cfg.PollWaits == nil {
		cfg.PollWaits = defaultPollWaits
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = defaultResolveTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if locks == nil {
		locks = NewSegmentLockCoordinator(nil)
	}

	return &RoadSegmentCache{
		store:     store,
		locations: locations,
		resolver:  resolver,
		locks:     locks,
		cfg:       cfg,
		log:       logger.GetLogger("segments"),
	}
}

// Resolve returns the distance for the ordered pair. Only missing or
// non-finite coordinates and lock contention without a result surface as
// errors.
func (c *RoadSegmentCache) Resolve(ctx context.Context, fromLocationID, toLocationID string) (_ Resolution, err error) {
	defer obs.Time(ctx, "segments.Resolve")(&err)

	if fromLocationID == toLocationID {
		obs.SegmentResolutions.WithLabelValues("trivial").Inc()
		zero := 0
		return Resolution{DurationMinutes: &zero, Cached: true, Source: domain.SourceTrivial}, nil
	}

	key := domain.SegmentKey(fromLocationID, toLocationID)

	// The shared call must outlive any single caller's cancellation, but
	// not the resolve timeout.
	ch := c.inflight.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ResolveTimeout)
		defer cancel()
		return c.resolve(shared, fromLocationID, toLocationID)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			obs.SegmentResolutions.WithLabelValues("error").Inc()
			return Resolution{}, r.Err
		}
		res := r.Val.(Resolution)
		res.DurationMinutes = cloneInt(res.DurationMinutes)
		return res, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

func (c *RoadSegmentCache) resolve(ctx context.Context, from, to string) (res Resolution, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolve segment %s->%s: panic: %v", from, to, p)
		}
	}()

	key := domain.SegmentKey(from, to)

	prev := c.read(ctx, from, to)
	if prev != nil && c.usable(*prev) {
		obs.SegmentResolutions.WithLabelValues("cache_hit").Inc()
		return cachedResolution(*prev), nil
	}

	lock := c.locks.TryAcquire(ctx, key)
	if !lock.Acquired {
		return c.awaitHolder(ctx, from, to, prev)
	}
	defer c.locks.Release(ctx, key, lock)

	// Another process may have finished between our read and the lock.
	seen := prev
	if lock.Supported {
		seen = c.read(ctx, from, to)
		if seen != nil && c.usable(*seen) {
			obs.SegmentResolutions.WithLabelValues("cache_hit").Inc()
			return cachedResolution(*seen), nil
		}
	}

	for attempt := 0; ; attempt++ {
		res, err := c.compute(ctx, from, to, seen)
		if !errors.Is(err, domain.ErrSegmentChanged) {
			return res, err
		}
		if attempt == maxRecomputes {
			c.log.Warnw("segment kept changing during resolution, value not stored", "from", from, "to", to)
			obs.SegmentResolutions.WithLabelValues("computed").Inc()
			return res, nil
		}

		// The entry moved on while we computed, typically a stale mark
		// after a coordinate change. Start over from the newer row.
		seen = c.read(ctx, from, to)
		if seen != nil && c.usable(*seen) {
			obs.SegmentResolutions.WithLabelValues("cache_hit").Inc()
			return cachedResolution(*seen), nil
		}
	}
}

// compute resolves the pair and writes it back unless the entry changed since
// seen was read. On domain.ErrSegmentChanged the computed value is returned
// along with the error.
func (c *RoadSegmentCache) compute(ctx context.Context, from, to string, seen *domain.RoadSegment) (Resolution, error) {
	fromCoords, toCoords, err := c.coordinates(ctx, from, to)
	if err != nil {
		return Resolution{}, err
	}

	est, err := c.resolver.Resolve(ctx, fromCoords, toCoords)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve segment %s->%s: %w", from, to, err)
	}

	seg := domain.RoadSegment{
		FromLocationID:  from,
		ToLocationID:    to,
		DistanceKm:      est.DistanceKm,
		DurationMinutes: est.DurationMinutes,
		Source:          est.Source,
		UpdatedAt:       c.cfg.Now(),
	}

	// A refresh that only reached the fallback keeps a fresh provider value.
	if seen != nil && !seen.Stale && seen.Source == domain.SourceProvider && est.Source != domain.SourceProvider {
		seg.DistanceKm = seen.DistanceKm
		seg.DurationMinutes = seen.DurationMinutes
		seg.Source = seen.Source
	}

	stored, err := c.store.UpsertSegmentIfUnchanged(ctx, seg, seen)
	switch {
	case errors.Is(err, domain.ErrSegmentChanged):
		return resolutionOf(seg), err
	case err != nil:
		c.log.Errorw("segment upsert failed", "from", from, "to", to, "err", err)
	default:
		seg = *stored
	}

	obs.SegmentResolutions.WithLabelValues("computed").Inc()
	return resolutionOf(seg), nil
}

// awaitHolder polls the store while another process resolves the pair.
func (c *RoadSegmentCache) awaitHolder(ctx context.Context, from, to string, prev *domain.RoadSegment) (Resolution, error) {
	for _, wait := range c.cfg.PollWaits {
		time.Sleep(wait)

		if seg := c.read(ctx, from, to); seg != nil && c.usable(*seg) {
			obs.SegmentResolutions.WithLabelValues("cache_hit").Inc()
			return cachedResolution(*seg), nil
		}
	}

	// A soft miss still has a valid last value.
	if prev != nil && !prev.Stale {
		obs.SegmentResolutions.WithLabelValues("stale_reuse").Inc()
		return cachedResolution(*prev), nil
	}

	return Resolution{}, fmt.Errorf("resolve segment %s->%s: %w", from, to, domain.ErrLockUnavailable)
}

// read treats storage errors as a miss.
func (c *RoadSegmentCache) read(ctx context.Context, from, to string) *domain.RoadSegment {
	seg, err := c.store.GetSegment(ctx, from, to)
	if err != nil {
		c.log.Warnw("segment read failed, treating as miss", "from", from, "to", to, "err", err)
		return nil
	}
	return seg
}

// usable reports whether an entry can be served without a refresh.
func (c *RoadSegmentCache) usable(seg domain.RoadSegment) bool {
	if seg.Stale {
		return false
	}

	age := c.cfg.Now().Sub(seg.UpdatedAt)
	switch seg.Source {
	case domain.SourceFallback:
		return c.cfg.FallbackUpgradeAfter <= 0 || age < c.cfg.FallbackUpgradeAfter
	case domain.SourceProvider:
		return c.cfg.ProviderRefreshAfter <= 0 || age < c.cfg.ProviderRefreshAfter
	default:
		return true
	}
}

func (c *RoadSegmentCache) coordinates(ctx context.Context, from, to string) (domain.Coordinates, domain.Coordinates, error) {
	locs, err := c.locations.GetLocations(ctx, []string{from, to})
	if err != nil {
		return domain.Coordinates{}, domain.Coordinates{}, fmt.Errorf("resolve segment %s->%s: load locations: %w", from, to, err)
	}

	lookup := func(id string) (domain.Coordinates, error) {
		loc, ok := locs[id]
		if !ok {
			return domain.Coordinates{}, fmt.Errorf("location %q: %w: %w", id, domain.ErrInvalidCoordinates, domain.ErrLocationNotFound)
		}
		coords, ok := loc.Coordinates()
		if !ok {
			return domain.Coordinates{}, fmt.Errorf("location %q: %w", id, domain.ErrInvalidCoordinates)
		}
		return coords, nil
	}

	fromCoords, err := lookup(from)
	if err != nil {
		return domain.Coordinates{}, domain.Coordinates{}, fmt.Errorf("resolve segment %s->%s: %w", from, to, err)
	}
	toCoords, err := lookup(to)
	if err != nil {
		return domain.Coordinates{}, domain.Coordinates{}, fmt.Errorf("resolve segment %s->%s: %w", from, to, err)
	}

	return fromCoords, toCoords, nil
}

func resolutionOf(seg domain.RoadSegment) Resolution {
	return Resolution{
		DistanceKm:      seg.DistanceKm,
		DurationMinutes: seg.DurationMinutes,
		Cached:          false,
		Source:          seg.Source,
		SegmentID:       seg.SegmentID,
	}
}

func cachedResolution(seg domain.RoadSegment) Resolution {
	return Resolution{
		DistanceKm:      seg.DistanceKm,
		DurationMinutes: seg.DurationMinutes,
		Cached:          true,
		Source:          domain.SourceCache,
		SegmentID:       seg.SegmentID,
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// IsRetryable reports whether a resolution error may clear on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrLockUnavailable)
}
