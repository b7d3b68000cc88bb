package obs

import (
	"context"
	"route-segment-service/internal/platform/logger"
	"sync"
	"time"

	"go.uber.org/zap"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

// WithRequestID stores the request id used to correlate timing lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// timingLog is resolved on first use so logger.Init can run beforehand.
var timingLog = sync.OnceValue(func() *zap.SugaredLogger { return logger.GetLogger("obs") })

func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	reqID, _ := ctx.Value(RequestIDKey).(string)
	log := timingLog()

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			log.Infow("op", "req_id", reqID, "op", name, "dur", dur, "err", *errp)
			return
		}
		log.Debugw("op", "req_id", reqID, "op", name, "dur", dur)
	}
}
