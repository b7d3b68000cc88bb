// Package memstore keeps segments, locations and route points in process
// memory. It backs the service when no database is configured and serves as
// the storage double in tests.
package memstore

import (
	"context"
	"route-segment-service/internal/domain"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairKey struct{ from, to string }

func keyOf(seg domain.RoadSegment) pairKey {
	return pairKey{from: seg.FromLocationID, to: seg.ToLocationID}
}

// Store is a thread-safe in-memory implementation of SegmentStore,
// LocationRepository and RoutePointRepository.
type Store struct {
	mu        sync.RWMutex
	segments  map[pairKey]domain.RoadSegment
	locations map[string]domain.Location
	points    map[string]domain.RoutePoint

	// Now stamps UpdatedAt on writes; tests may replace it.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		segments:  make(map[pairKey]domain.RoadSegment),
		locations: make(map[string]domain.Location),
		points:    make(map[string]domain.RoutePoint),
		Now:       time.Now,
	}
}

// PutLocation inserts or replaces a location.
func (s *Store) PutLocation(loc domain.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ID] = cloneLocation(loc)
}

// PutRoutePoints inserts or replaces route points. Points without an id get one.
func (s *Store) PutRoutePoints(points ...domain.RoutePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		s.points[p.ID] = clonePoint(p)
	}
}

// PutSegment writes an entry as-is, bypassing upsert semantics.
func (s *Store) PutSegment(seg domain.RoadSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[keyOf(seg)] = cloneSegment(seg)
}

// Segment returns the stored entry for the ordered pair.
func (s *Store) Segment(fromLocationID, toLocationID string) (domain.RoadSegment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[pairKey{from: fromLocationID, to: toLocationID}]
	return cloneSegment(seg), ok
}

// SegmentCount returns the number of stored entries.
func (s *Store) SegmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// RoutePoint returns the stored point.
func (s *Store) RoutePoint(id string) (domain.RoutePoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	return clonePoint(p), ok
}

func (s *Store) GetSegment(_ context.Context, fromLocationID, toLocationID string) (*domain.RoadSegment, error) {
	seg, ok := s.Segment(fromLocationID, toLocationID)
	if !ok {
		return nil, nil
	}
	return &seg, nil
}

func (s *Store) UpsertSegment(_ context.Context, seg domain.RoadSegment) (*domain.RoadSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(seg), nil
}

func (s *Store) UpsertSegmentIfUnchanged(
	_ context.Context,
	seg domain.RoadSegment,
	seen *domain.RoadSegment,
) (*domain.RoadSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.segments[keyOf(seg)]; ok {
		if seen == nil || !existing.UpdatedAt.Equal(seen.UpdatedAt) || existing.Stale != seen.Stale {
			return nil, domain.ErrSegmentChanged
		}
	}
	return s.upsert(seg), nil
}

// upsert requires s.mu held.
func (s *Store) upsert(seg domain.RoadSegment) *domain.RoadSegment {
	key := keyOf(seg)
	if existing, ok := s.segments[key]; ok && existing.SegmentID != "" {
		seg.SegmentID = existing.SegmentID
	}
	if seg.SegmentID == "" {
		seg.SegmentID = uuid.NewString()
	}
	if seg.UpdatedAt.IsZero() {
		seg.UpdatedAt = s.Now()
	}

	s.segments[key] = cloneSegment(seg)
	out := cloneSegment(seg)
	return &out
}

func (s *Store) MarkStaleByLocation(_ context.Context, locationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, seg := range s.segments {
		if seg.FromLocationID != locationID && seg.ToLocationID != locationID {
			continue
		}
		seg.Stale = true
		seg.UpdatedAt = s.Now()
		s.segments[key] = seg
		n++
	}
	return n, nil
}

func (s *Store) GetLocation(_ context.Context, id string) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return nil, nil
	}
	out := cloneLocation(loc)
	return &out, nil
}

func (s *Store) GetLocations(_ context.Context, ids []string) (map[string]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Location, len(ids))
	for _, id := range ids {
		if loc, ok := s.locations[id]; ok {
			out[id] = cloneLocation(loc)
		}
	}
	return out, nil
}

func (s *Store) UpdateCoordinates(_ context.Context, id string, lat, lng float64) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[id]; !ok {
		return nil, domain.ErrLocationNotFound
	}

	loc := domain.Location{ID: id, Lat: &lat, Lng: &lng}
	s.locations[id] = loc
	out := cloneLocation(loc)
	return &out, nil
}

func (s *Store) RoutesReferencingLocation(_ context.Context, locationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	routes := make([]string, 0)
	for _, p := range s.points {
		if p.LocationID != locationID {
			continue
		}
		if _, ok := seen[p.RouteID]; ok {
			continue
		}
		seen[p.RouteID] = struct{}{}
		routes = append(routes, p.RouteID)
	}
	sort.Strings(routes)
	return routes, nil
}

func (s *Store) OrderedRoutePoints(_ context.Context, routeID string) ([]domain.RoutePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RoutePoint, 0)
	for _, p := range s.points {
		if p.RouteID == routeID {
			out = append(out, clonePoint(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) UpdateSegment(_ context.Context, pointID string, distanceKm float64, durationMinutes *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.points[pointID]
	if !ok {
		return domain.ErrRoutePointNotFound
	}

	p.SegmentDistanceKm = &distanceKm
	if durationMinutes != nil {
		d := *durationMinutes
		p.SegmentDurationMinutes = &d
	}
	s.points[pointID] = p
	return nil
}

func (s *Store) SaveDerivedMetrics(_ context.Context, points []domain.RoutePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		stored, ok := s.points[p.ID]
		if !ok {
			return domain.ErrRoutePointNotFound
		}
		c := clonePoint(p)
		stored.CumulativeDistanceKm = c.CumulativeDistanceKm
		stored.AverageSpeedKmH = c.AverageSpeedKmH
		stored.ArrivalOffsetMinutes = c.ArrivalOffsetMinutes
		stored.DepartureOffsetMinutes = c.DepartureOffsetMinutes
		s.points[p.ID] = stored
	}
	return nil
}

func cloneSegment(seg domain.RoadSegment) domain.RoadSegment {
	seg.DurationMinutes = cloneInt(seg.DurationMinutes)
	return seg
}

func cloneLocation(loc domain.Location) domain.Location {
	loc.Lat = cloneFloat(loc.Lat)
	loc.Lng = cloneFloat(loc.Lng)
	return loc
}

func clonePoint(p domain.RoutePoint) domain.RoutePoint {
	p.SegmentDistanceKm = cloneFloat(p.SegmentDistanceKm)
	p.SegmentDurationMinutes = cloneInt(p.SegmentDurationMinutes)
	p.StopDurationMinutes = cloneInt(p.StopDurationMinutes)
	p.CumulativeDistanceKm = cloneFloat(p.CumulativeDistanceKm)
	p.AverageSpeedKmH = cloneFloat(p.AverageSpeedKmH)
	p.ArrivalOffsetMinutes = cloneInt(p.ArrivalOffsetMinutes)
	p.DepartureOffsetMinutes = cloneInt(p.DepartureOffsetMinutes)
	return p
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
