package distance

import (
	"context"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/platform/obs"
	"route-segment-service/internal/ports"

	"go.uber.org/zap"
)

// Resolver implements DistanceResolver: the routing provider when one is
// configured, otherwise (or when it fails) a great-circle estimate.
// Only non-finite coordinates produce an error.
type Resolver struct {
	provider ports.RouteProvider
	log      *zap.SugaredLogger
}

// NewResolver wraps provider with the geometric fallback. A nil provider means
// no credential is configured and every call is answered geometrically.
func NewResolver(provider ports.RouteProvider) *Resolver {
	return &Resolver{
		provider: provider,
		log:      logger.GetLogger("distance"),
	}
}

func (r *Resolver) Resolve(
	ctx context.Context,
	from domain.Coordinates,
	to domain.Coordinates,
) (ports.RouteEstimate, error) {
	if !from.Finite() || !to.Finite() {
		return ports.RouteEstimate{}, fmt.Errorf("resolve route: %w", domain.ErrInvalidCoordinates)
	}

	if r.provider == nil {
		return fallbackEstimate(from, to, "no_credentials"), nil
	}

	est, err := r.route(ctx, from, to)
	if err != nil {
		r.log.Warnw("routing provider failed, using fallback", "from", from.CoordsToList(), "to", to.CoordsToList(), "err", err)
		return fallbackEstimate(from, to, "provider_failed"), nil
	}

	return est, nil
}

func (r *Resolver) route(ctx context.Context, from, to domain.Coordinates) (est ports.RouteEstimate, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("routing provider panic: %v", p)
		}
	}()

	return r.provider.Route(ctx, from, to)
}

func fallbackEstimate(from, to domain.Coordinates, reason string) ports.RouteEstimate {
	obs.FallbackEstimates.WithLabelValues(reason).Inc()

	return ports.RouteEstimate{
		DistanceKm: domain.GreatCircleKm(from, to),
		Source:     domain.SourceFallback,
	}
}
