package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/skaldhq/skald/pkg/jobstore"
)

// ErrEmptyReference reports a job creation request with a blank input
// reference.
var ErrEmptyReference = errors.New("input reference is empty")

// Dispatcher hands a created job off for detached execution. Dispatch
// returns once the job is accepted; execution happens outside the caller's
// request lifetime.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *jobstore.Record) error
}

// Coordinator is the request-path entry point: it creates job records,
// enqueues them for execution, and serves status lookups. It never blocks on
// job execution.
type Coordinator struct {
	store      jobstore.Store
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewCoordinator builds a coordinator over the given store and dispatcher.
func NewCoordinator(store jobstore.Store, dispatcher Dispatcher, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, dispatcher: dispatcher, logger: logger}
}

// CreateTranscription registers a transcription job for the given audio
// reference and dispatches it. The returned record is in the pending state;
// the caller polls GetStatus for the outcome.
func (c *Coordinator) CreateTranscription(ctx context.Context, sourceRef string) (*jobstore.Record, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, ErrEmptyReference
	}
	return c.create(ctx, jobstore.NewRecord(jobstore.KindTranscription, sourceRef))
}

// CreateSummarization registers a summarization job over a completed
// transcription. Requests referencing a missing job, a non-transcription
// job, or a transcription that is not completed are rejected up front, so a
// caller gets a synchronous error instead of a job doomed to fail.
func (c *Coordinator) CreateSummarization(ctx context.Context, transcriptionID string) (*jobstore.Record, error) {
	transcriptionID = strings.TrimSpace(transcriptionID)
	if transcriptionID == "" {
		return nil, ErrEmptyReference
	}

	src, err := c.store.Get(ctx, transcriptionID)
	if err != nil {
		return nil, err
	}
	if src.Kind != jobstore.KindTranscription {
		return nil, ErrNotTranscription
	}
	if src.Status != jobstore.StatusCompleted {
		return nil, ErrNotCompleted
	}
	if strings.TrimSpace(src.Output) == "" {
		return nil, ErrEmptyTranscript
	}

	return c.create(ctx, jobstore.NewRecord(jobstore.KindSummarization, transcriptionID))
}

// GetStatus returns the current record for a job. An unknown ID yields
// jobstore.ErrNotFound; it is never reported as a failed job.
func (c *Coordinator) GetStatus(ctx context.Context, id string) (*jobstore.Record, error) {
	return c.store.Get(ctx, id)
}

func (c *Coordinator) create(ctx context.Context, rec *jobstore.Record) (*jobstore.Record, error) {
	if err := c.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}
	if err := c.dispatcher.Dispatch(ctx, rec); err != nil {
		// Leave a terminal record behind so the poller is not stuck on
		// a pending job that will never run.
		if _, ferr := c.store.Update(ctx, rec.ID, func(r *jobstore.Record) error {
			r.Fail("failed to start processing")
			return nil
		}); ferr != nil {
			c.logger.Error("failed to record dispatch failure",
				zap.String("job_id", rec.ID), zap.Error(ferr))
		}
		return nil, fmt.Errorf("dispatch job: %w", err)
	}
	c.logger.Info("job accepted",
		zap.String("job_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
	)
	return rec, nil
}

// LocalDispatcher runs each job on a goroutine in the current process. It is
// the single-node execution mode; a queue-backed dispatcher replaces it when
// workers run out of process.
type LocalDispatcher struct {
	runner  *Runner
	factory *Factory
	wg      sync.WaitGroup
}

// NewLocalDispatcher builds an in-process dispatcher.
func NewLocalDispatcher(runner *Runner, factory *Factory) *LocalDispatcher {
	return &LocalDispatcher{runner: runner, factory: factory}
}

// Dispatch implements Dispatcher. The run is detached from the request
// context; the runner applies its own deadline.
func (d *LocalDispatcher) Dispatch(_ context.Context, rec *jobstore.Record) error {
	task, err := d.factory.TaskFor(rec)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.runner.Run(context.Background(), rec.ID, task)
	}()
	return nil
}

// Wait blocks until all dispatched jobs have finished. Used on shutdown.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
