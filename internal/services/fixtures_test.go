package services

import (
	"context"
	"errors"
	"fmt"
	"route-segment-service/internal/adapters/distance"
	"route-segment-service/internal/adapters/locks"
	"route-segment-service/internal/adapters/memstore"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/ports"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	provider *distance.MockRouteProvider
	locks    *locks.LocalLock
	cache    *RoadSegmentCache
}

type fixtureOption func(*fixtureSettings)

type fixtureSettings struct {
	primitive ports.LockPrimitive
	cfg       RoadSegmentCacheConfig
}

func withPrimitive(p ports.LockPrimitive) fixtureOption {
	return func(s *fixtureSettings) { s.primitive = p }
}

func withCacheConfig(fn func(*RoadSegmentCacheConfig)) fixtureOption {
	return func(s *fixtureSettings) { fn(&s.cfg) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store := memstore.New()
	store.Now = func() time.Time { return testNow }

	for _, loc := range []struct {
		id       string
		lat, lng float64
	}{
		{"L1", -23.5505, -46.6333},
		{"L2", -22.9068, -43.1729},
		{"L3", -19.9167, -43.9345},
		{"L4", -25.4284, -49.2733},
		{"L5", -27.5954, -48.5480},
	} {
		store.PutLocation(location(loc.id, loc.lat, loc.lng))
	}

	local := locks.NewLocalLock()
	settings := fixtureSettings{
		primitive: local,
		cfg: RoadSegmentCacheConfig{
			FallbackUpgradeAfter: 6 * time.Hour,
			PollWaits:            []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
			Now:                  func() time.Time { return testNow },
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	provider := distance.NewMockRouteProvider(430.25, 360)
	cache := NewRoadSegmentCache(
		store,
		store,
		distance.NewResolver(provider),
		NewSegmentLockCoordinator(settings.primitive),
		settings.cfg,
	)

	return &fixture{store: store, provider: provider, locks: local, cache: cache}
}

func location(id string, lat, lng float64) domain.Location {
	return domain.Location{ID: id, Lat: &lat, Lng: &lng}
}

func point(routeID string, order int, locationID string) domain.RoutePoint {
	return domain.RoutePoint{
		ID:         fmt.Sprintf("%s-%d", routeID, order),
		RouteID:    routeID,
		Order:      order,
		LocationID: locationID,
	}
}

func ptrInt(v int) *int { return &v }

func ptrFloat(v float64) *float64 { return &v }

// failingLock errors on every call.
type failingLock struct {
	mu       sync.Mutex
	unlocked int
}

func (l *failingLock) TryLock(context.Context, string) (bool, error) {
	return false, errors.New("lock backend down")
}

func (l *failingLock) Unlock(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked++
	return nil
}

// contendedLock is always held elsewhere; onTry runs on each attempt.
type contendedLock struct {
	onTry func()
}

func (l *contendedLock) TryLock(context.Context, string) (bool, error) {
	if l.onTry != nil {
		l.onTry()
	}
	return false, nil
}

func (l *contendedLock) Unlock(context.Context, string) error { return nil }
