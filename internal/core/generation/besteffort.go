package generation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Best-effort step names, used in logs and metrics.
const (
	StepUpdatePreview    = "update_preview"
	StepReconcileVariant = "reconcile_variants"
)

// bestEffort runs fn on a context detached from the caller and bounded by timeout.
// A failure is logged and counted, never returned: the generation result is already final.
func (s *service) bestEffort(ctx context.Context, step, postID string, timeout time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return
	}

	s.metrics.observeBestEffortFailure(step)
	s.logger.Warn("[GENERATE] Post-generation step failed, returning generated content anyway",
		zap.String("step", step),
		zap.String("post_id", postID),
		zap.Error(err))
}
