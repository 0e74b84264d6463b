package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"buddy/backend/internal/audit"
	"buddy/backend/internal/constants"
	"buddy/backend/internal/observability"
	apperrors "buddy/backend/pkg/errors"
	"buddy/backend/pkg/logger"
)

var (
	// ErrDispatcherClosed is returned by Submit after Close
	ErrDispatcherClosed = errors.New("knowledge dispatcher is closed")
	// ErrQueueFull is returned when a user already has DispatcherQueueSize builds waiting
	ErrQueueFull = errors.New("knowledge build queue is full for user")
	// ErrNotRetryable is returned by Retry for runs that have not failed, or
	// failed in a way another attempt cannot fix
	ErrNotRetryable = errors.New("run cannot be retried")
)

// Runner executes one build cycle
type Runner interface {
	Build(ctx context.Context, req BuildRequest) (BuildResult, error)
}

// Outcome is delivered once per submitted build
type Outcome struct {
	Run    *audit.Run
	Result BuildResult
	Err    error
}

type job struct {
	req  BuildRequest
	run  *audit.Run
	done chan Outcome
}

// Dispatcher runs builds in the background, at most one at a time per user,
// in submission order. Every build is recorded in the audit log.
type Dispatcher struct {
	runner  Runner
	audit   *audit.Log
	metrics *observability.Collector
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	queues map[string][]*job
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. timeout bounds each build.
func NewDispatcher(runner Runner, auditLog *audit.Log, metrics *observability.Collector, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		runner:  runner,
		audit:   auditLog,
		metrics: metrics,
		timeout: timeout,
		logger:  logger.Named("dispatcher"),
		queues:  make(map[string][]*job),
	}
}

// Submit records a pending run and queues it behind the user's earlier
// builds. The returned channel receives exactly one Outcome; callers may
// ignore it.
func (d *Dispatcher) Submit(ctx context.Context, req BuildRequest) (*audit.Run, <-chan Outcome, error) {
	if req.Attempt == 0 {
		req.Attempt = 1
	}
	run := &audit.Run{
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Attempt: req.Attempt,
		RetryOf: req.RetryOf,
		Status:  audit.StatusPending,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, nil, ErrDispatcherClosed
	}
	if len(d.queues[req.UserID]) >= constants.DispatcherQueueSize {
		d.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrQueueFull, req.UserID)
	}
	d.mu.Unlock()

	if err := d.audit.Create(ctx, run); err != nil {
		return nil, nil, err
	}

	j := &job{req: req, run: run, done: make(chan Outcome, 1)}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.failUnstarted(j, ErrDispatcherClosed)
		return nil, nil, ErrDispatcherClosed
	}
	queue, draining := d.queues[req.UserID]
	if len(queue) >= constants.DispatcherQueueSize {
		d.failUnstarted(j, ErrQueueFull)
		return nil, nil, fmt.Errorf("%w: %s", ErrQueueFull, req.UserID)
	}
	d.queues[req.UserID] = append(queue, j)
	if !draining {
		d.wg.Add(1)
		go d.drain(req.UserID)
	}

	d.logger.Info("Build queued",
		zap.String("run_id", run.ID),
		zap.String("user_id", req.UserID),
		zap.String("chat_id", req.ChatID),
		zap.Int("attempt", req.Attempt))
	// the worker owns run from here on
	queued := *run
	return &queued, j.done, nil
}

// Retry re-submits a failed run with the next attempt number. Runs that
// failed on bad input are refused, since they would fail the same way again.
func (d *Dispatcher) Retry(ctx context.Context, runID string) (*audit.Run, <-chan Outcome, error) {
	prev, err := d.audit.Get(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if prev.Status != audit.StatusFailed {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrNotRetryable, runID, prev.Status)
	}
	if !prev.Retryable {
		return nil, nil, fmt.Errorf("%w: %s failed permanently: %s", ErrNotRetryable, runID, prev.Error)
	}
	return d.Submit(ctx, BuildRequest{
		UserID:  prev.UserID,
		ChatID:  prev.ChatID,
		Attempt: prev.Attempt + 1,
		RetryOf: prev.ID,
	})
}

// Close stops intake and waits for queued builds to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// drain runs the user's queue until it is empty. A queue entry in d.queues
// means a drain goroutine owns it.
func (d *Dispatcher) drain(userID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		j := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		d.execute(j)
	}
}

func (d *Dispatcher) execute(j *job) {
	runLog := d.logger.With(zap.String("run_id", j.run.ID), zap.String("user_id", j.req.UserID))

	// Detached from the submitting request; the build timeout is the only deadline
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	j.run.Status = audit.StatusRunning
	d.updateRun(ctx, j.run, runLog)

	start := time.Now()
	result, err := d.runner.Build(ctx, j.req)
	duration := time.Since(start)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !apperrors.IsErrorType(err, apperrors.ErrorTypeContext) {
		err = apperrors.NewContextTimeout("knowledge build", d.timeout, err)
	}

	outcome := observability.OutcomeSucceeded
	switch {
	case err != nil:
		outcome = observability.OutcomeFailed
		j.run.Status = audit.StatusFailed
		j.run.Error = err.Error()
		j.run.Retryable = apperrors.IsRetryable(err)
		runLog.Error("Knowledge build failed",
			zap.Int("attempt", j.run.Attempt),
			zap.Bool("retryable", j.run.Retryable),
			zap.Duration("duration", duration),
			zap.Error(err))
	case result.Empty:
		outcome = observability.OutcomeEmpty
		j.run.Status = audit.StatusSucceeded
		runLog.Info("Knowledge build found nothing to commit", zap.Duration("duration", duration))
	default:
		j.run.Status = audit.StatusSucceeded
		j.run.Mode = result.Mode
		j.run.Statements = result.Statements
		runLog.Info("Knowledge build succeeded",
			zap.String("mode", result.Mode),
			zap.Int("statements", result.Statements),
			zap.Duration("duration", duration))
	}
	d.metrics.RecordBuild(outcome, duration, result.Statements)

	// the build context may be spent; give the final write its own
	writeCtx, writeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer writeCancel()
	d.updateRun(writeCtx, j.run, runLog)

	j.done <- Outcome{Run: j.run, Result: result, Err: err}
	close(j.done)
}

func (d *Dispatcher) updateRun(ctx context.Context, run *audit.Run, runLog *zap.Logger) {
	if err := d.audit.Update(ctx, run); err != nil {
		runLog.Warn("Failed to update build record", zap.String("status", string(run.Status)), zap.Error(err))
	}
}

// failUnstarted marks a recorded run that will never execute
func (d *Dispatcher) failUnstarted(j *job, cause error) {
	j.run.Status = audit.StatusFailed
	j.run.Error = cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.updateRun(ctx, j.run, d.logger.With(zap.String("run_id", j.run.ID)))
}
