package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/skaldhq/skald/pkg/capability"
	"github.com/skaldhq/skald/pkg/jobstore"
	"github.com/skaldhq/skald/pkg/source"
)

// failRecordTimeout bounds the store write that records a failure. It uses a
// fresh deadline because the run context may already be expired.
const failRecordTimeout = 10 * time.Second

// Runner executes one job to a terminal state. Every outcome, success or
// failure, is recorded on the job record; the returned error exists for the
// dispatch layer's logging and never implies a retryable run.
type Runner struct {
	store  jobstore.Store
	cfg    Config
	retry  RetryConfig
	logger *zap.Logger
}

// NewRunner builds a runner over the given store.
func NewRunner(store jobstore.Store, cfg Config, retry RetryConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:  store,
		cfg:    cfg.withDefaults(),
		retry:  retry.withDefaults(),
		logger: logger,
	}
}

// Run drives the job through fetch, split, per-chunk processing, and join.
// Progress moves monotonically from the acknowledgement floor to 1.0. A job
// already claimed or already terminal is skipped without error, so a
// duplicate delivery cannot clobber a finished record.
func (r *Runner) Run(ctx context.Context, jobID string, task Task) error {
	log := r.logger.With(
		zap.String("job_id", jobID),
		zap.String("kind", string(task.Kind())),
	)

	ctx, cancel := context.WithTimeout(ctx, r.retry.JobTimeout)
	defer cancel()

	if _, err := r.store.Update(ctx, jobID, func(rec *jobstore.Record) error {
		return rec.MarkProcessing(r.cfg.ProgressFloor)
	}); err != nil {
		if errors.Is(err, jobstore.ErrNotPending) || errors.Is(err, jobstore.ErrTerminal) {
			log.Warn("job already claimed, skipping duplicate run", zap.Error(err))
			return nil
		}
		return fmt.Errorf("claim job: %w", err)
	}
	log.Info("job started")

	input, err := task.Fetch(ctx)
	if err != nil {
		return r.fail(ctx, log, jobID, "fetch input", err)
	}

	chunks, err := task.Split(input)
	if err != nil {
		return r.fail(ctx, log, jobID, "split input", err)
	}
	if len(chunks) == 0 {
		return r.fail(ctx, log, jobID, "split input", errors.New("input is empty"))
	}

	total := len(chunks)
	share := task.ChunkShare()
	parts := make([]string, total)
	for i, c := range chunks {
		out, err := r.processChunk(ctx, log, task, c, total)
		if err != nil {
			stage := fmt.Sprintf("process chunk %d/%d", i+1, total)
			return r.fail(ctx, log, jobID, stage, err)
		}
		parts[i] = out

		progress := r.cfg.ProgressFloor + share*(float64(i+1)/float64(total))
		if err := r.setProgress(ctx, jobID, progress); err != nil {
			return r.fail(ctx, log, jobID, "record progress", err)
		}
		log.Info("chunk processed",
			zap.Int("chunk", i+1),
			zap.Int("chunks", total),
			zap.Float64("progress", progress),
		)
	}

	output, err := task.Join(ctx, parts)
	if err != nil {
		return r.fail(ctx, log, jobID, "aggregate results", err)
	}
	if strings.TrimSpace(output) == "" {
		// A completed record always carries output; an empty result is a
		// provider failure, not a success.
		return r.fail(ctx, log, jobID, "aggregate results", errors.New("provider returned no output"))
	}

	if _, err := r.store.Update(ctx, jobID, func(rec *jobstore.Record) error {
		rec.Complete(output)
		return nil
	}); err != nil {
		return r.fail(ctx, log, jobID, "record completion", err)
	}
	log.Info("job completed", zap.Int("chunks", total), zap.Int("output_bytes", len(output)))
	return nil
}

// processChunk runs one capability call with exponential backoff on
// transient provider errors. Permanent errors and context cancellation stop
// the retry loop immediately.
func (r *Runner) processChunk(ctx context.Context, log *zap.Logger, task Task, c Chunk, total int) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retry.InitialBackoff
	bo.MaxInterval = r.retry.MaxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.retry.MaxAttempts-1)), ctx)

	var out string
	attempt := 0
	op := func() error {
		attempt++
		res, err := task.Process(ctx, c)
		if err != nil {
			if !capability.IsTransient(err) {
				return backoff.Permanent(err)
			}
			log.Warn("transient chunk failure, retrying",
				zap.Int("chunk", c.Index+1),
				zap.Int("chunks", total),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		out = res
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Runner) setProgress(ctx context.Context, jobID string, progress float64) error {
	_, err := r.store.Update(ctx, jobID, func(rec *jobstore.Record) error {
		rec.SetProgress(progress)
		return nil
	})
	return err
}

// fail records the failure cause on the job and returns the original error.
// The store write uses a detached context so an expired run deadline cannot
// prevent the record from reaching the failed state.
func (r *Runner) fail(ctx context.Context, log *zap.Logger, jobID, stage string, cause error) error {
	msg := failureMessage(ctx, stage, cause)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failRecordTimeout)
	defer cancel()
	if _, err := r.store.Update(rctx, jobID, func(rec *jobstore.Record) error {
		rec.Fail(msg)
		return nil
	}); err != nil && !errors.Is(err, jobstore.ErrTerminal) {
		log.Error("failed to record job failure", zap.Error(err))
	}

	log.Error("job failed", zap.String("stage", stage), zap.Error(cause))
	return fmt.Errorf("%s: %w", stage, cause)
}

// failureMessage produces the operator-facing cause stored on the record.
// The leading phrase distinguishes the failure classes without exposing
// provider internals.
func failureMessage(ctx context.Context, stage string, cause error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Sprintf("timeout: job exceeded the processing deadline during %s", stage)
	}
	switch {
	case errors.Is(cause, source.ErrNotFound),
		errors.Is(cause, source.ErrDenied),
		errors.Is(cause, source.ErrUnreachable),
		errors.Is(cause, source.ErrTooLarge):
		return fmt.Sprintf("source unavailable: %v", cause)
	case capability.IsTransient(cause):
		return fmt.Sprintf("provider outage: retries exhausted during %s: %v", stage, cause)
	case capability.IsInvalidCredentials(cause):
		return fmt.Sprintf("provider rejected request: %v", cause)
	case capability.IsInvalidInput(cause), errors.Is(cause, capability.ErrMalformedResponse):
		return fmt.Sprintf("provider rejected request during %s: %v", stage, cause)
	case errors.Is(cause, ErrNotTranscription),
		errors.Is(cause, ErrNotCompleted),
		errors.Is(cause, ErrEmptyTranscript),
		errors.Is(cause, jobstore.ErrNotFound):
		return fmt.Sprintf("source unavailable: %v", cause)
	default:
		return fmt.Sprintf("%s failed: %v", stage, cause)
	}
}
