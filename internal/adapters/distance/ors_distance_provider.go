package distance

import (
	"context"
	"errors"
	"net/http"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/obs"
	"route-segment-service/internal/ports"
	"strings"
	"time"
)

// ORSConfig configures the OpenRouteService directions client.
// Zero values fall back to the defaults below.
type ORSConfig struct {
	APIKey       string
	BaseURL      string
	Profile      string
	Timeout      time.Duration
	RetryBackoff time.Duration
	MaxRetries   int
	Radiuses     []float64
}

const (
	defaultORSBaseURL   = "https://api.openrouteservice.org"
	defaultORSProfile   = "driving-car"
	defaultORSTimeout   = 12 * time.Second
	defaultRetryBackoff = 250 * time.Millisecond
	defaultMaxRetries   = 2
)

// Snap-to-road search radiuses in meters; the second is only tried after the
// provider reports an unroutable point.
var defaultRadiuses = []float64{500, 2000}

// ORSRouteProvider implements RouteProvider using the OpenRouteService
// directions endpoint for a single coordinate pair.
//
// Every attempt runs under its own timeout. Transient failures (timeouts,
// network errors, 429, 5xx) are retried with linear backoff; an unroutable
// point is retried once with a wider radius. The provider is safe for
// concurrent use.
type ORSRouteProvider struct {
	session    *http.Client
	apiKey     string
	baseURL    string
	profile    string
	timeout    time.Duration
	backoff    time.Duration
	maxRetries int
	radiuses   []float64
}

func NewORSRouteProvider(cfg ORSConfig) (*ORSRouteProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	provider := &ORSRouteProvider{
		session:    &http.Client{},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		profile:    cfg.Profile,
		timeout:    cfg.Timeout,
		backoff:    cfg.RetryBackoff,
		maxRetries: cfg.MaxRetries,
		radiuses:   cfg.Radiuses,
	}

	if provider.baseURL == "" {
		provider.baseURL = defaultORSBaseURL
	}
	if provider.profile == "" {
		provider.profile = defaultORSProfile
	}
	if provider.timeout <= 0 {
		provider.timeout = defaultORSTimeout
	}
	if provider.backoff <= 0 {
		provider.backoff = defaultRetryBackoff
	}
	if provider.maxRetries <= 0 {
		provider.maxRetries = defaultMaxRetries
	}
	if len(provider.radiuses) == 0 {
		provider.radiuses = defaultRadiuses
	}

	return provider, nil
}

// Route asks the provider for the driving distance and duration from one
// coordinate to another.
func (o *ORSRouteProvider) Route(
	ctx context.Context,
	from domain.Coordinates,
	to domain.Coordinates,
) (_ ports.RouteEstimate, err error) {
	defer obs.Time(ctx, "ors.Route")(&err)

	radiusIdx := 0
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return ports.RouteEstimate{}, err
		}

		res := o.fetchRoute(ctx, from, to, o.radiuses[radiusIdx])
		obs.ProviderRequests.WithLabelValues(res.kind.String()).Inc()

		switch nextStep(res.kind, attempt, o.maxRetries, radiusIdx+1 < len(o.radiuses)) {
		case stepDone:
			return res.estimate, nil

		case stepRetry:
			attempt++
			if err := sleepCtx(ctx, time.Duration(attempt)*o.backoff); err != nil {
				return ports.RouteEstimate{}, err
			}

		case stepWiden:
			radiusIdx++
			attempt = 0

		default:
			return ports.RouteEstimate{}, res.err
		}
	}
}

type step int

const (
	stepDone step = iota
	stepRetry
	stepWiden
	stepGiveUp
)

// nextStep is the retry policy: a pure function of the outcome tag and the
// attempts spent so far.
func nextStep(kind outcomeKind, attempt, maxRetries int, canWiden bool) step {
	switch kind {
	case outcomeSuccess:
		return stepDone
	case outcomeTransient:
		if attempt < maxRetries {
			return stepRetry
		}
		return stepGiveUp
	case outcomeStructural:
		if canWiden {
			return stepWiden
		}
		return stepGiveUp
	default:
		return stepGiveUp
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
