// Package queue provides the Redis-backed dispatch mode: jobs are enqueued
// as asynq tasks and executed by worker processes. Delivery retries are
// disabled because the runner owns retry semantics and records every
// failure terminally on the job itself.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/skaldhq/skald/pkg/jobstore"
	"github.com/skaldhq/skald/pkg/pipeline"
)

// TypePipelineRun is the asynq task type for one pipeline job run.
const TypePipelineRun = "pipeline:run"

// queueName is the asynq queue all pipeline tasks ride on.
const queueName = "pipeline"

// taskTimeoutSlack is added to the runner's job timeout so asynq does not
// cancel a run the runner is still allowed to finish.
const taskTimeoutSlack = time.Minute

// RunPayload is the wire payload of a pipeline task.
type RunPayload struct {
	JobID string `json:"job_id"`
}

// Manager enqueues pipeline tasks. It implements pipeline.Dispatcher.
type Manager struct {
	client     *asynq.Client
	jobTimeout time.Duration
	logger     *zap.Logger
}

// NewManager builds a dispatcher enqueueing to the given Redis instance.
// jobTimeout mirrors the runner's job timeout.
func NewManager(redisOpt asynq.RedisClientOpt, jobTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobTimeout <= 0 {
		jobTimeout = pipeline.DefaultRetryConfig().JobTimeout
	}
	return &Manager{
		client:     asynq.NewClient(redisOpt),
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Dispatch implements pipeline.Dispatcher by enqueueing one task per job.
func (m *Manager) Dispatch(ctx context.Context, rec *jobstore.Record) error {
	payload, err := json.Marshal(RunPayload{JobID: rec.ID})
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypePipelineRun, payload)
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
		asynq.Timeout(m.jobTimeout+taskTimeoutSlack),
	)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", rec.ID, err)
	}

	m.logger.Info("job enqueued",
		zap.String("job_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("task_id", info.ID),
	)
	return nil
}

// Close releases the underlying Redis client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// Worker consumes pipeline tasks and drives them through the runner.
type Worker struct {
	server  *asynq.Server
	store   jobstore.Store
	runner  *pipeline.Runner
	factory *pipeline.Factory
	logger  *zap.Logger
}

// NewWorker builds a worker processing up to concurrency jobs at once.
func NewWorker(redisOpt asynq.RedisClientOpt, concurrency int, store jobstore.Store, runner *pipeline.Runner, factory *pipeline.Factory, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
	})
	return &Worker{
		server:  server,
		store:   store,
		runner:  runner,
		factory: factory,
		logger:  logger,
	}
}

// Start runs the worker loop until Shutdown. It blocks.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePipelineRun, w.handleRun)
	return w.server.Run(mux)
}

// Shutdown stops the worker, waiting for in-flight jobs.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleRun(ctx context.Context, t *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}

	rec, err := w.store.Get(ctx, payload.JobID)
	if err != nil {
		// The record may have expired between enqueue and delivery.
		w.logger.Warn("job record missing, dropping task",
			zap.String("job_id", payload.JobID), zap.Error(err))
		return nil
	}

	task, err := w.factory.TaskFor(rec)
	if err != nil {
		return fmt.Errorf("build task for job %s: %w", rec.ID, err)
	}
	return w.runner.Run(ctx, rec.ID, task)
}
