package metrics

import (
	"context"
	"expvar"
	"time"
)

var (
	// SubmissionsQueued counts documents handed to the broker
	SubmissionsQueued = expvar.NewInt("submissions_queued_total")

	// SubmissionsInline counts documents processed in the submitting call
	SubmissionsInline = expvar.NewInt("submissions_inline_total")

	// AttemptsStarted counts processing attempts that claimed a document
	AttemptsStarted = expvar.NewInt("attempts_started_total")

	AttemptsCompleted = expvar.NewInt("attempts_completed_total")
	AttemptsFailed    = expvar.NewInt("attempts_failed_total")

	// DetectorFallbacks counts whole-image fallbacks after a missing model
	DetectorFallbacks = expvar.NewInt("detector_fallbacks_total")

	// QualityTiers counts completed attempts per quality tier
	QualityTiers = expvar.NewMap("quality_tiers")

	// AttemptMillis accumulates wall time of finished attempts
	AttemptMillis = expvar.NewInt("attempt_duration_ms_total")
)

// PublishModelLoads exposes the model cache load counter as model_loads_total.
func PublishModelLoads(loads func() int64) {
	expvar.Publish("model_loads_total", expvar.Func(func() any { return loads() }))
}

// PublishQueueLength exposes the broker backlog as queue_length. Errors read as -1.
func PublishQueueLength(length func(ctx context.Context) (int64, error)) {
	expvar.Publish("queue_length", expvar.Func(func() any {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := length(ctx)
		if err != nil {
			return int64(-1)
		}
		return n
	}))
}
