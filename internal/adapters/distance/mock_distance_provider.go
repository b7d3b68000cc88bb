package distance

import (
	"context"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/ports"
	"sync"
)

// MockRouteProvider is a scripted RouteProvider for tests and local runs.
// Fn, when set, decides each answer; otherwise Result and Err are returned.
// A non-nil Gate blocks every call until it is closed.
type MockRouteProvider struct {
	Result ports.RouteEstimate
	Err    error
	Fn     func(from, to domain.Coordinates) (ports.RouteEstimate, error)
	Gate   chan struct{}

	mu    sync.Mutex
	calls int
}

func NewMockRouteProvider(distanceKm float64, durationMinutes int) *MockRouteProvider {
	return &MockRouteProvider{
		Result: ports.RouteEstimate{
			DistanceKm:      distanceKm,
			DurationMinutes: &durationMinutes,
			Source:          domain.SourceProvider,
		},
	}
}

func (p *MockRouteProvider) Route(ctx context.Context, from, to domain.Coordinates) (ports.RouteEstimate, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return ports.RouteEstimate{}, ctx.Err()
		}
	}

	if p.Fn != nil {
		return p.Fn(from, to)
	}
	if p.Err != nil {
		return ports.RouteEstimate{}, p.Err
	}
	return p.Result, nil
}

// Calls returns how many times Route was invoked.
func (p *MockRouteProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
