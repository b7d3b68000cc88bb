package services

import (
	"context"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/platform/obs"
	"route-segment-service/internal/ports"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SegmentResolver is the part of RoadSegmentCache the cascade depends on.
type SegmentResolver interface {
	Resolve(ctx context.Context, fromLocationID, toLocationID string) (Resolution, error)
}

// CascadeSummary counts the work done by one cascade run.
// SegmentsComputed counts fresh resolutions, of which SegmentsFallback were
// geometric; SegmentsFromCache were served from the store.
type CascadeSummary struct {
	StaleMarked       int
	RoutesScanned     int
	UpdatedPoints     int
	SegmentsComputed  int
	SegmentsFromCache int
	SegmentsFallback  int
	Errors            int
	TouchedRouteIDs   []string
}

type CascadeConfig struct {
	ResolveConcurrency int
	WriteConcurrency   int
}

// InvalidationCascade recomputes the segments adjacent to a moved location on
// every route that visits it.
type InvalidationCascade struct {
	segments ports.SegmentStore
	points   ports.RoutePointRepository
	resolver SegmentResolver
	cfg      CascadeConfig
	log      *zap.SugaredLogger
}

func NewInvalidationCascade(
	segments ports.SegmentStore,
	points ports.RoutePointRepository,
	resolver SegmentResolver,
	cfg CascadeConfig,
) *InvalidationCascade {
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = 3
	}
	if cfg.WriteConcurrency <= 0 {
		cfg.WriteConcurrency = 6
	}

	return &InvalidationCascade{
		segments: segments,
		points:   points,
		resolver: resolver,
		cfg:      cfg,
		log:      logger.GetLogger("cascade"),
	}
}

type segmentPair struct {
	from string
	to   string
}

func (p segmentPair) key() string { return domain.SegmentKey(p.from, p.to) }

type pointUpdate struct {
	pointID string
	routeID string
	pair    segmentPair
}

// OnLocationCoordinatesChanged marks the location's cache entries stale, then
// re-resolves each distinct adjacent pair once and writes the results to the
// affected points. Per-pair and per-point failures are counted, not returned.
// An error means stale marking itself failed and nothing was recomputed.
func (c *InvalidationCascade) OnLocationCoordinatesChanged(ctx context.Context, locationID string) (_ CascadeSummary, err error) {
	defer obs.Time(ctx, "cascade.OnLocationCoordinatesChanged")(&err)
	obs.CascadeRuns.Inc()

	var summary CascadeSummary

	marked, err := c.segments.MarkStaleByLocation(ctx, locationID)
	if err != nil {
		obs.CascadeErrors.Inc()
		return summary, fmt.Errorf("cascade location=%q: mark stale: %w", locationID, err)
	}
	summary.StaleMarked = marked

	routeIDs, err := c.points.RoutesReferencingLocation(ctx, locationID)
	if err != nil {
		c.log.Errorw("cascade: list routes failed", "location", locationID, "err", err)
		obs.CascadeErrors.Inc()
		summary.Errors++
		return summary, nil
	}

	pairs, updates, routeErrors := c.plan(ctx, locationID, routeIDs)
	summary.RoutesScanned = len(routeIDs) - routeErrors
	summary.Errors += routeErrors

	resolved := c.resolveAll(ctx, pairs, &summary)
	c.applyAll(ctx, updates, resolved, &summary)

	c.log.Infow("cascade finished",
		"location", locationID,
		"stale_marked", summary.StaleMarked,
		"routes", summary.RoutesScanned,
		"pairs", len(pairs),
		"updated_points", summary.UpdatedPoints,
		"errors", summary.Errors,
	)

	return summary, nil
}

// plan collects the distinct pairs to resolve and the point writes they feed.
func (c *InvalidationCascade) plan(ctx context.Context, locationID string, routeIDs []string) ([]segmentPair, []pointUpdate, int) {
	pairSet := make(map[string]segmentPair)
	updates := make([]pointUpdate, 0)
	planned := make(map[string]struct{})
	failed := 0

	add := func(point domain.RoutePoint, pair segmentPair) {
		if pair.from == pair.to {
			return
		}
		if _, ok := planned[point.ID]; ok {
			return
		}
		planned[point.ID] = struct{}{}
		pairSet[pair.key()] = pair
		updates = append(updates, pointUpdate{pointID: point.ID, routeID: point.RouteID, pair: pair})
	}

	for _, routeID := range routeIDs {
		points, err := c.points.OrderedRoutePoints(ctx, routeID)
		if err != nil {
			c.log.Errorw("cascade: load route points failed", "route", routeID, "err", err)
			obs.CascadeErrors.Inc()
			failed++
			continue
		}

		for i, p := range points {
			if p.LocationID != locationID {
				continue
			}
			if i > 0 {
				add(p, segmentPair{from: points[i-1].LocationID, to: p.LocationID})
			}
			if i < len(points)-1 {
				next := points[i+1]
				add(next, segmentPair{from: p.LocationID, to: next.LocationID})
			}
		}
	}

	pairs := make([]segmentPair, 0, len(pairSet))
	for _, p := range pairSet {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key() < pairs[j].key() })

	return pairs, updates, failed
}

func (c *InvalidationCascade) resolveAll(ctx context.Context, pairs []segmentPair, summary *CascadeSummary) map[string]Resolution {
	var (
		mu       sync.Mutex
		resolved = make(map[string]Resolution, len(pairs))
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.ResolveConcurrency)

	for _, pair := range pairs {
		g.Go(func() error {
			res, err := c.resolver.Resolve(ctx, pair.from, pair.to)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				c.log.Warnw("cascade: resolve failed", "from", pair.from, "to", pair.to, "err", err)
				obs.CascadeErrors.Inc()
				summary.Errors++
				return nil
			}

			resolved[pair.key()] = res
			switch {
			case res.Cached:
				summary.SegmentsFromCache++
			case res.Source == domain.SourceFallback:
				summary.SegmentsComputed++
				summary.SegmentsFallback++
			default:
				summary.SegmentsComputed++
			}
			return nil
		})
	}
	_ = g.Wait()

	return resolved
}

func (c *InvalidationCascade) applyAll(ctx context.Context, updates []pointUpdate, resolved map[string]Resolution, summary *CascadeSummary) {
	var mu sync.Mutex
	touched := make(map[string]struct{})

	var g errgroup.Group
	g.SetLimit(c.cfg.WriteConcurrency)

	for _, u := range updates {
		res, ok := resolved[u.pair.key()]
		if !ok {
			continue
		}

		g.Go(func() error {
			err := c.points.UpdateSegment(ctx, u.pointID, res.DistanceKm, res.DurationMinutes)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				c.log.Warnw("cascade: point update failed", "point", u.pointID, "route", u.routeID, "err", err)
				obs.CascadeErrors.Inc()
				summary.Errors++
				return nil
			}

			summary.UpdatedPoints++
			touched[u.routeID] = struct{}{}
			return nil
		})
	}
	_ = g.Wait()

	summary.TouchedRouteIDs = make([]string, 0, len(touched))
	for id := range touched {
		summary.TouchedRouteIDs = append(summary.TouchedRouteIDs, id)
	}
	sort.Strings(summary.TouchedRouteIDs)
}
