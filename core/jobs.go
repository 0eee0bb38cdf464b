package core

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	JobIDRequestExpired          = "dcb.event.request_expired"
	JobIDItemCheckedIn           = "dcb.event.item_checked_in"
	JobIDBootstrapSharedResource = "dcb.shared_resources.bootstrap"

	JobParamRequestID = "request_id"
	JobParamItemID    = "item_id"
	JobParamAttempt   = "_attempt"
)

const (
	defaultJobMaxAttempts    = 5
	defaultJobInitialBackoff = 500 * time.Millisecond
	defaultJobMaxBackoff     = 30 * time.Second
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultJobInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultJobMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func NewRequestExpiredJob(requestID string) *JobExecutionMessage {
	requestID = strings.TrimSpace(requestID)
	return &JobExecutionMessage{
		JobID:          JobIDRequestExpired,
		Parameters:     map[string]any{JobParamRequestID: requestID},
		IdempotencyKey: JobIDRequestExpired + ":" + requestID,
	}
}

func NewItemCheckedInJob(itemID string) *JobExecutionMessage {
	itemID = strings.TrimSpace(itemID)
	return &JobExecutionMessage{
		JobID:      JobIDItemCheckedIn,
		Parameters: map[string]any{JobParamItemID: itemID},
	}
}

func NewBootstrapJob() *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID:          JobIDBootstrapSharedResource,
		Parameters:     map[string]any{},
		IdempotencyKey: JobIDBootstrapSharedResource,
	}
}

// ProcessJob runs one queued event or maintenance job.
func (s *Service) ProcessJob(ctx context.Context, msg *JobExecutionMessage) error {
	if msg == nil {
		return s.mapError(fmt.Errorf("core: job message is required"))
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDRequestExpired:
		requestID := jobStringParam(msg, JobParamRequestID)
		if requestID == "" {
			return s.mapError(fmt.Errorf("core: job %s: %s is required", msg.JobID, JobParamRequestID))
		}
		return s.HandleRequestExpired(ctx, requestID)
	case JobIDItemCheckedIn:
		itemID := jobStringParam(msg, JobParamItemID)
		if itemID == "" {
			return s.mapError(fmt.Errorf("core: job %s: %s is required", msg.JobID, JobParamItemID))
		}
		return s.HandleItemCheckedIn(ctx, itemID)
	case JobIDBootstrapSharedResource:
		_, err := s.BootstrapSharedResources(ctx)
		return err
	default:
		return s.mapError(fmt.Errorf("core: job id %q is invalid", msg.JobID))
	}
}

func jobStringParam(msg *JobExecutionMessage, key string) string {
	if msg == nil || msg.Parameters == nil {
		return ""
	}
	value, ok := msg.Parameters[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func jobAttempt(msg *JobExecutionMessage) int {
	if msg == nil || msg.Parameters == nil {
		return 1
	}
	switch value := msg.Parameters[JobParamAttempt].(type) {
	case int:
		return max(value, 1)
	case int64:
		return max(int(value), 1)
	case float64:
		return max(int(value), 1)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 1
		}
		return max(parsed, 1)
	default:
		return 1
	}
}

// JobWorker pulls deliveries and hands them to Service.ProcessJob.
type JobWorker struct {
	Service     *Service
	Dequeuer    JobDequeuer
	Hook        JobWorkerHook
	Scheduler   BackoffScheduler
	MaxAttempts int
}

// RunOnce processes a single delivery. Client-side failures are dead
// lettered at once; others are requeued with backoff until MaxAttempts.
func (w *JobWorker) RunOnce(ctx context.Context) error {
	if w == nil || w.Service == nil || w.Dequeuer == nil {
		return fmt.Errorf("core: job worker is not configured")
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	event := JobWorkerEvent{Message: msg, Attempt: jobAttempt(msg), StartedAt: time.Now().UTC()}
	w.onStart(ctx, event)

	processErr := w.Service.ProcessJob(ctx, msg)
	event.Duration = time.Since(event.StartedAt)
	if processErr == nil {
		w.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = processErr
	opts := w.nackOptions(event.Attempt, processErr)
	event.Delay = opts.Delay
	if opts.DeadLetter {
		w.onFailure(ctx, event)
	} else {
		w.onRetry(ctx, event)
	}
	return delivery.Nack(ctx, opts)
}

func (w *JobWorker) nackOptions(attempt int, cause error) JobNackOptions {
	maxAttempts := w.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultJobMaxAttempts
	}
	scheduler := w.Scheduler
	if scheduler == nil {
		scheduler = ExponentialBackoffScheduler{}
	}
	if ErrorHTTPStatus(cause) < http.StatusInternalServerError || attempt >= maxAttempts {
		return JobNackOptions{DeadLetter: true, Reason: cause.Error()}
	}
	return JobNackOptions{
		Delay:   scheduler.NextDelay(attempt),
		Requeue: true,
		Reason:  cause.Error(),
	}
}

func (w *JobWorker) onStart(ctx context.Context, event JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnStart(ctx, event)
	}
}

func (w *JobWorker) onSuccess(ctx context.Context, event JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnSuccess(ctx, event)
	}
}

func (w *JobWorker) onFailure(ctx context.Context, event JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnFailure(ctx, event)
	}
}

func (w *JobWorker) onRetry(ctx context.Context, event JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnRetry(ctx, event)
	}
}
