package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// AlertFunc is invoked when a job fails or panics.
type AlertFunc func(ctx context.Context, job *rivertype.JobRow, err error)

// AlertingErrorHandler logs job failures and forwards final ones for
// operator alerting. Mid-retry failures only log; the alert goes out
// when River has given up on the job.
type AlertingErrorHandler struct {
	logger zerolog.Logger
	notify AlertFunc
}

func NewAlertingErrorHandler(logger zerolog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{logger: logger, notify: notify}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	event := h.logger.Error().Int64("job_id", job.ID).Str("kind", job.Kind).
		Int("attempt", job.Attempt).Err(err)
	if job.Attempt < job.MaxAttempts {
		event.Msg("job failed; will retry")
		return nil
	}
	event.Msg("job failed permanently")
	if h.notify != nil {
		h.notify(ctx, job, err)
	}
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	panicErr := fmt.Errorf("panic: %v", panicVal)
	h.logger.Error().Int64("job_id", job.ID).Str("kind", job.Kind).
		Int("attempt", job.Attempt).Str("trace", trace).Err(panicErr).Msg("job panicked")
	if h.notify != nil {
		h.notify(ctx, job, panicErr)
	}
	return nil
}
