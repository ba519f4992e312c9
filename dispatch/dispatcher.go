// Package dispatch turns user actions into two effects: a synchronous
// override write, so the view updates immediately, and an asynchronous call
// against the board API. Failed calls are retried from a bounded in-process
// queue with backoff; outcomes, including terminal failures, come back on
// the Results channel instead of disappearing into a log line.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/api"
	"boardsync/domain"
	"boardsync/overrides"
)

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 4
	defaultBackoff     = 2 * time.Second
)

// ErrQueueFull is reported when the retry queue cannot take another
// mutation. The override write has already happened, so the local view is
// correct; only the sync is lost.
var ErrQueueFull = errors.New("dispatch queue full")

// Result is the outcome of one dispatched mutation.
type Result struct {
	// ID is the client-generated id of this dispatch, not of the task.
	ID     string
	Action string
	TaskID string
	// Attempts counts remote calls made, including the successful one.
	Attempts int
	Err      error
	// Pending means the mutation is preserved locally and will reach the
	// server on a later sync, so the failure is not data loss.
	Pending bool
}

type job struct {
	id      string
	action  string
	taskID  string
	pending bool
	call    func(context.Context) error
}

// Dispatcher owns the retry queue worker. Construct with NewDispatcher and
// start exactly one Run.
type Dispatcher struct {
	client *Client
	store  *overrides.Store
	logger *log.Logger

	queue       chan job
	results     chan Result
	maxAttempts int
	backoff     time.Duration
}

// Option adjusts dispatcher construction.
type Option func(*Dispatcher)

// WithRetry overrides the retry budget and base backoff.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.backoff = backoff
	}
}

func NewDispatcher(client *Client, store *overrides.Store, logger *log.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:      client,
		store:       store,
		logger:      logger,
		queue:       make(chan job, defaultQueueSize),
		results:     make(chan Result, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Results delivers one Result per dispatched mutation. Slow consumers drop
// results rather than blocking the worker.
func (d *Dispatcher) Results() <-chan Result { return d.results }

// Run processes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.execute(ctx, j)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, j job) {
	var err error
	attempts := 0
	for attempts < d.maxAttempts {
		attempts++
		err = j.call(ctx)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			break
		}
		d.logger.WithFields(log.Fields{
			"action":  j.action,
			"attempt": attempts,
			"error":   err.Error(),
		}).Debug("mutation failed, backing off")
		select {
		case <-ctx.Done():
			d.deliver(Result{ID: j.id, Action: j.action, TaskID: j.taskID, Attempts: attempts, Err: ctx.Err(), Pending: j.pending})
			return
		case <-time.After(d.backoff * time.Duration(attempts)):
		}
	}
	res := Result{ID: j.id, Action: j.action, TaskID: j.taskID, Attempts: attempts, Err: err}
	if err != nil && j.pending {
		res.Pending = true
	}
	d.deliver(res)
}

// retryable separates transient failures from deterministic ones. Invalid
// input, missing entities and misconfiguration will fail identically on
// every attempt; conflicts and transport errors are worth another try.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalid),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrParse),
		errors.Is(err, domain.ErrMisconfigured):
		return false
	}
	return true
}

func (d *Dispatcher) deliver(res Result) {
	select {
	case d.results <- res:
	default:
		d.logger.WithField("action", res.Action).Debug("result dropped, no consumer")
	}
}

func (d *Dispatcher) enqueue(j job) string {
	j.id = uuid.NewString()
	select {
	case d.queue <- j:
	default:
		d.deliver(Result{ID: j.id, Action: j.action, TaskID: j.taskID, Err: ErrQueueFull, Pending: j.pending})
	}
	return j.id
}

// ToggleCompletion records the completion override and syncs it.
func (d *Dispatcher) ToggleCompletion(ctx context.Context, taskID, projectID string, completed bool) (string, error) {
	if err := d.store.SetTaskOverride(ctx, taskID, domain.TaskOverride{Completed: &completed}); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action: "complete",
		taskID: taskID,
		call: func(ctx context.Context) error {
			_, err := d.client.CompleteTask(ctx, api.CompleteTaskRequest{
				TaskID: taskID, ProjectID: projectID, Completed: &completed,
			})
			return err
		},
	}), nil
}

// Move records a placement override and syncs it. The target string takes
// a column name or an assignee, same as the wire protocol.
func (d *Dispatcher) Move(ctx context.Context, taskID, projectID, target string) (string, error) {
	parsed := domain.ParseTarget(target)
	if err := d.store.SetTaskOverride(ctx, taskID, domain.TaskOverride{Placement: &parsed}); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action: "move",
		taskID: taskID,
		call: func(ctx context.Context) error {
			_, err := d.client.MoveTask(ctx, api.MoveTaskRequest{
				TaskID: taskID, ProjectID: projectID, TargetColumn: target,
			})
			return err
		},
	}), nil
}

// Edit records a field-edit override and syncs it.
func (d *Dispatcher) Edit(ctx context.Context, taskID, projectID string, patch domain.TaskPatch) (string, error) {
	if err := d.store.SetTaskOverride(ctx, taskID, domain.TaskOverride{Patch: patch}); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action: "edit",
		taskID: taskID,
		call: func(ctx context.Context) error {
			_, err := d.client.EditTask(ctx, api.EditTaskRequest{
				TaskID: taskID, ProjectID: projectID, Updates: patch,
			})
			return err
		},
	}), nil
}

// AddTask stores the task locally under a client-generated id and syncs it.
// If the remote add ultimately fails the task survives as a local task and
// the result carries Pending.
func (d *Dispatcher) AddTask(ctx context.Context, task domain.Task, projectID, target string) (string, error) {
	if task.ID == "" {
		task.ID = "u-" + uuid.NewString()
	}
	parsed := domain.ParseTarget(target)
	if err := d.store.AddLocalTask(ctx, domain.LocalTask{Task: task, ProjectID: projectID, Target: parsed}); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action:  "add",
		taskID:  task.ID,
		pending: true,
		call: func(ctx context.Context) error {
			_, err := d.client.AddTask(ctx, api.AddTaskRequest{
				Task: task, ProjectID: projectID, Column: target,
			})
			return err
		},
	}), nil
}

// MutateSubtask syncs a subtask add or toggle. Subtask state has no local
// override representation, so this is remote-only.
func (d *Dispatcher) MutateSubtask(ctx context.Context, req api.SubtaskRequest) string {
	return d.enqueue(job{
		action: "subtask",
		taskID: req.TaskID,
		call: func(ctx context.Context) error {
			_, err := d.client.MutateSubtask(ctx, req)
			return err
		},
	})
}

// AddIdea caches the idea locally and syncs it; the cache entry is removed
// once the server acknowledges.
func (d *Dispatcher) AddIdea(ctx context.Context, idea domain.Idea) (string, error) {
	if idea.ID == "" {
		idea.ID = "i-" + uuid.NewString()
	}
	if err := d.store.Set(ctx, overrides.KindIdea, idea.ID, idea); err != nil {
		return "", err
	}
	localID := idea.ID
	return d.enqueue(job{
		action:  "add-idea",
		pending: true,
		call: func(ctx context.Context) error {
			_, err := d.client.AddIdea(ctx, api.IdeaRequest{
				Title: idea.Title, Idea: idea.Idea, Tags: idea.Tags,
			})
			if err != nil {
				return err
			}
			return d.store.Delete(ctx, overrides.KindIdea, localID)
		},
	}), nil
}

// SubmitChangeRequest caches the request text locally and syncs it, same
// acknowledge-then-clear shape as AddIdea.
func (d *Dispatcher) SubmitChangeRequest(ctx context.Context, text string) (string, error) {
	localID := "cr-" + uuid.NewString()
	cached := domain.ChangeRequest{ID: localID, Text: text, Status: domain.ChangeRequestPending}
	if err := d.store.Set(ctx, overrides.KindChangeRequest, localID, cached); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action:  "change-request",
		pending: true,
		call: func(ctx context.Context) error {
			_, err := d.client.SubmitChangeRequest(ctx, api.ChangeRequestRequest{Text: text})
			if err != nil {
				return err
			}
			return d.store.Delete(ctx, overrides.KindChangeRequest, localID)
		},
	}), nil
}

// DeleteIdea drops any locally cached copy and syncs the deletion.
func (d *Dispatcher) DeleteIdea(ctx context.Context, id string) (string, error) {
	if err := d.store.Delete(ctx, overrides.KindIdea, id); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action: "delete-idea",
		call: func(ctx context.Context) error {
			return d.client.DeleteIdea(ctx, id)
		},
	}), nil
}

// EditIdea syncs an idea patch. Ideas have no field-level local override,
// so this is remote-only.
func (d *Dispatcher) EditIdea(ctx context.Context, req api.IdeaRequest) string {
	return d.enqueue(job{
		action: "edit-idea",
		call: func(ctx context.Context) error {
			_, err := d.client.EditIdea(ctx, req)
			return err
		},
	})
}

// CancelChangeRequest drops any locally cached copy and syncs the
// cancellation.
func (d *Dispatcher) CancelChangeRequest(ctx context.Context, id string) (string, error) {
	if err := d.store.Delete(ctx, overrides.KindChangeRequest, id); err != nil {
		return "", err
	}
	return d.enqueue(job{
		action: "cancel-change-request",
		call: func(ctx context.Context) error {
			return d.client.CancelChangeRequest(ctx, id)
		},
	}), nil
}

// SetReminder is local-only: reminders never leave this machine.
func (d *Dispatcher) SetReminder(ctx context.Context, taskID string, at time.Time) error {
	return d.store.Set(ctx, overrides.KindReminder, taskID, at.UTC().Format(time.RFC3339))
}
