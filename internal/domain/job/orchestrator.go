package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/logging"
)

// Executor performs the work for one job kind. It returns the artifact
// reference for the result on success.
type Executor func(ctx context.Context, j *Job) (resultRef string, err error)

// Execution modes. Inline runs the job in the submitting call; pool hands
// it to background workers.
const (
	ModeInline = "inline"
	ModePool   = "pool"
)

// Config tunes the orchestrator.
type Config struct {
	Mode          string
	Workers       int
	StaleAfter    time.Duration
	Heartbeat     time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
	PollInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeInline
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Minute
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// Orchestrator owns the job lifecycle: it accepts submissions, dispatches
// them to registered executors, requeues work lost to stalled workers once,
// and garbage-collects terminal jobs past retention.
type Orchestrator struct {
	cfg    Config
	store  Store
	logger *logging.Logger

	mu    sync.RWMutex
	execs map[string]Executor

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewOrchestrator creates an orchestrator over the given store.
func NewOrchestrator(cfg Config, store Store, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		store:  store,
		logger: logger,
		execs:  make(map[string]Executor),
	}
}

// RegisterExecutor binds an executor to a job kind. Registration happens
// during bootstrap, before Start.
func (o *Orchestrator) RegisterExecutor(kind string, exec Executor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.execs[kind] = exec
}

// Start launches workers and the sweeper in pool mode. Inline mode only
// needs the sweeper, for retention.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return errors.New(errors.KindBootstrap, "orchestrator.start", "already started")
	}
	o.started = true

	o.runCtx, o.cancel = context.WithCancel(ctx)
	if o.cfg.Mode == ModePool {
		for i := 0; i < o.cfg.Workers; i++ {
			o.wg.Add(1)
			go o.workerLoop(i)
		}
	}
	o.wg.Add(1)
	go o.sweepLoop()
	return nil
}

// Stop halts workers and waits for in-flight jobs to settle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// Submit records a job and, in inline mode, runs it before returning.
// The returned job reflects the state at return time.
func (o *Orchestrator) Submit(ctx context.Context, kind, submittedBy string, payload interface{}) (*Job, error) {
	const op = "orchestrator.submit"

	o.mu.RLock()
	_, ok := o.execs[kind]
	o.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.KindInvalidInput, op, "unknown job kind: %s", kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, op, "encode payload", err)
	}

	now := time.Now()
	j := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		State:       StateQueued,
		SubmittedBy: submittedBy,
		Payload:     raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.Insert(ctx, j); err != nil {
		return nil, err
	}

	if o.cfg.Mode == ModeInline {
		claimed, err := o.store.ClaimByID(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			o.runJob(ctx, claimed)
		}
		return o.store.Get(ctx, j.ID)
	}
	return j, nil
}

// Poll returns the job for status inspection.
func (o *Orchestrator) Poll(ctx context.Context, id string) (*Job, error) {
	return o.store.Get(ctx, id)
}

// FetchResult returns the result reference of a succeeded job. Pending jobs
// yield a not-ready error, failed jobs surface the stored detail.
func (o *Orchestrator) FetchResult(ctx context.Context, id string) (string, error) {
	const op = "orchestrator.result"

	j, err := o.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch j.State {
	case StateSucceeded:
		if j.ResultRef == nil {
			return "", errors.New(errors.KindStorage, op, "succeeded job is missing its result")
		}
		return *j.ResultRef, nil
	case StateQueued, StateRunning:
		return "", errors.New(errors.KindNotReady, op, "job has not finished")
	case StateCancelled:
		return "", errors.New(errors.KindNotReady, op, "job was cancelled")
	case StateFailed:
		detail := "job failed"
		if j.ErrorDetail != nil {
			detail = *j.ErrorDetail
		}
		return "", errors.New(errors.KindUpstream, op, detail)
	}
	return "", errors.Newf(errors.KindUnknown, op, "job in unexpected state: %s", j.State)
}

// Cancel withdraws a queued job. Running and terminal jobs cannot be
// cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	const op = "orchestrator.cancel"

	ok, err := o.store.TransitionQueued(ctx, id, StateCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.KindInvalidInput, op, "job is no longer queued")
	}
	return nil
}

func (o *Orchestrator) workerLoop(worker int) {
	defer o.wg.Done()

	for {
		select {
		case <-o.runCtx.Done():
			return
		default:
		}

		j, err := o.store.Claim(o.runCtx)
		if err != nil {
			o.logger.WarnTag("Jobs", "worker %d claim failed: %v", worker, err)
			o.sleep(o.cfg.PollInterval)
			continue
		}
		if j == nil {
			o.sleep(o.cfg.PollInterval)
			continue
		}
		o.runJob(o.runCtx, j)
	}
}

// runJob executes a claimed job and persists the terminal state. A side
// goroutine stamps heartbeats so the sweeper can tell a slow job from a
// dead worker.
func (o *Orchestrator) runJob(ctx context.Context, j *Job) {
	o.mu.RLock()
	exec, ok := o.execs[j.Kind]
	o.mu.RUnlock()
	if !ok {
		o.finishFailed(j, fmt.Sprintf("no executor for kind %s", j.Kind))
		return
	}

	hbCtx, stopHB := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(o.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := o.store.Heartbeat(context.Background(), j.ID, time.Now()); err != nil {
					o.logger.WarnTag("Jobs", "heartbeat for job %s failed: %v", j.ID, err)
				}
			}
		}
	}()

	resultRef, err := exec(ctx, j)
	stopHB()
	<-done

	if err != nil {
		o.finishFailed(j, err.Error())
		return
	}
	j.State = StateSucceeded
	j.ResultRef = &resultRef
	j.ErrorDetail = nil
	if uerr := o.store.Update(context.Background(), j); uerr != nil {
		o.logger.ErrorTag("Jobs", "persist success for job %s failed: %v", j.ID, uerr)
	}
}

func (o *Orchestrator) finishFailed(j *Job, detail string) {
	j.State = StateFailed
	j.ErrorDetail = &detail
	j.ResultRef = nil
	if err := o.store.Update(context.Background(), j); err != nil {
		o.logger.ErrorTag("Jobs", "persist failure for job %s failed: %v", j.ID, err)
	}
}

func (o *Orchestrator) sweepLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.runCtx.Done():
			return
		case <-ticker.C:
			o.sweep()
		}
	}
}

// sweep requeues jobs abandoned by a stalled worker once; a job that
// stalls twice fails with a timeout. It also drops terminal jobs past
// retention.
func (o *Orchestrator) sweep() {
	ctx := context.Background()

	stale, err := o.store.Stale(ctx, time.Now().Add(-o.cfg.StaleAfter))
	if err != nil {
		o.logger.WarnTag("Jobs", "stale scan failed: %v", err)
	}
	for _, j := range stale {
		if !j.Requeued {
			j.State = StateQueued
			j.Requeued = true
			j.HeartbeatAt = nil
			if err := o.store.Update(ctx, j); err != nil {
				o.logger.WarnTag("Jobs", "requeue job %s failed: %v", j.ID, err)
			} else {
				o.logger.InfoTag("Jobs", "requeued stale job %s", j.ID)
			}
			continue
		}
		detail := "job timed out after a stalled retry"
		j.State = StateFailed
		j.ErrorDetail = &detail
		if err := o.store.Update(ctx, j); err != nil {
			o.logger.WarnTag("Jobs", "fail stale job %s failed: %v", j.ID, err)
		}
	}

	removed, err := o.store.DeleteTerminalBefore(ctx, time.Now().Add(-o.cfg.Retention))
	if err != nil {
		o.logger.WarnTag("Jobs", "retention sweep failed: %v", err)
	} else if removed > 0 {
		o.logger.InfoTag("Jobs", "removed %d expired jobs", removed)
	}
}

func (o *Orchestrator) sleep(d time.Duration) {
	select {
	case <-o.runCtx.Done():
	case <-time.After(d):
	}
}
