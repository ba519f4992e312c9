package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boardsync/docstore"
	"boardsync/domain"
)

const defaultConflictRetries = 3

// Mutator performs the read-locate-modify-write cycle against the document
// store. Contention is retried a bounded number of times by re-reading and
// reapplying before a Conflict is surfaced to the caller.
type Mutator struct {
	store     docstore.Store
	retries   int
	now       func() time.Time
	broadcast Broadcaster
}

// NewMutator creates a mutator over the given store. retries bounds how many
// times a conflicting write is reapplied; values below zero disable retry.
func NewMutator(store docstore.Store, retries int) *Mutator {
	if retries < 0 {
		retries = 0
	}
	return &Mutator{store: store, retries: retries, now: time.Now}
}

// SetBroadcaster attaches an invalidation broadcaster fired after every
// committed mutation.
func (m *Mutator) SetBroadcaster(b Broadcaster) { m.broadcast = b }

// applyFunc modifies the in-memory document and returns an operation result
// plus the commit message describing the change.
type applyFunc func(doc *domain.Document, now time.Time) (result any, message string, err error)

func (m *Mutator) mutate(ctx context.Context, apply applyFunc) (any, int, error) {
	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		snap, err := m.store.Get(ctx)
		if err != nil {
			return nil, attempt, fmt.Errorf("read document: %w", err)
		}
		doc, err := docstore.Decode(snap)
		if err != nil {
			return nil, attempt, err
		}
		result, message, err := apply(doc, m.now())
		if err != nil {
			return nil, attempt, err
		}
		content, err := docstore.MarshalDocument(doc)
		if err != nil {
			return nil, attempt, err
		}
		err = m.store.Put(ctx, content, snap.Revision, message)
		if err == nil {
			if m.broadcast != nil {
				m.broadcast.Broadcast(ctx)
			}
			return result, attempt, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, attempt, fmt.Errorf("write document: %w", err)
		}
		lastErr = err
	}
	return nil, m.retries, lastErr
}

// AddTask creates a task in the target column, or in the standalone todos
// list when no project is given.
func (m *Mutator) AddTask(ctx context.Context, req AddTaskRequest) (domain.Task, int, error) {
	result, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		task, err := domain.AddTask(doc, req.Task, req.ProjectID, domain.ParseTarget(req.Column), now)
		if err != nil {
			return nil, "", err
		}
		return task, "Add task: " + task.Title, nil
	})
	if err != nil {
		return domain.Task{}, attempts, err
	}
	return result.(domain.Task), attempts, nil
}

// MoveTask relocates a task; non-canonical targets are assignee lanes.
func (m *Mutator) MoveTask(ctx context.Context, req MoveTaskRequest) (MoveTaskResponse, int, error) {
	target := domain.ParseTarget(req.TargetColumn)
	result, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		from, to, err := domain.MoveTask(doc, req.TaskID, req.ProjectID, target, now)
		if err != nil {
			return nil, "", err
		}
		resp := MoveTaskResponse{OK: true, TaskID: req.TaskID, From: string(from), To: string(to)}
		return resp, fmt.Sprintf("Move task %s to %s", req.TaskID, target), nil
	})
	if err != nil {
		return MoveTaskResponse{}, attempts, err
	}
	return result.(MoveTaskResponse), attempts, nil
}

// SetCompletion completes or reopens a task.
func (m *Mutator) SetCompletion(ctx context.Context, req CompleteTaskRequest) (int, error) {
	completed := req.IsCompleted()
	verb := "Complete"
	if !completed {
		verb = "Reopen"
	}
	_, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		if err := domain.SetCompletion(doc, req.TaskID, req.ProjectID, completed, now); err != nil {
			return nil, "", err
		}
		return nil, fmt.Sprintf("%s task: %s", verb, req.TaskID), nil
	})
	return attempts, err
}

// EditTask applies a partial update to a task.
func (m *Mutator) EditTask(ctx context.Context, req EditTaskRequest) (domain.Task, int, error) {
	result, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		task, err := domain.EditTask(doc, req.TaskID, req.ProjectID, req.Updates, now)
		if err != nil {
			return nil, "", err
		}
		return task, "Edit task: " + task.Title, nil
	})
	if err != nil {
		return domain.Task{}, attempts, err
	}
	return result.(domain.Task), attempts, nil
}

// MutateSubtask adds or toggles a subtask.
func (m *Mutator) MutateSubtask(ctx context.Context, req SubtaskRequest) (int, error) {
	_, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		err := domain.MutateSubtask(doc, req.TaskID, req.ProjectID, domain.SubtaskAction(req.SubtaskAction), req.SubtaskID, req.Subtask, now)
		if err != nil {
			return nil, "", err
		}
		return nil, fmt.Sprintf("Subtask %s on task %s", req.SubtaskAction, req.TaskID), nil
	})
	return attempts, err
}

// AddIdea appends an idea.
func (m *Mutator) AddIdea(ctx context.Context, req IdeaRequest) (domain.Idea, int, error) {
	result, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		idea, err := domain.AddIdea(doc, domain.Idea{ID: req.ID, Title: req.Title, Idea: req.Idea, Tags: req.Tags, CreatedAt: req.CreatedAt}, now)
		if err != nil {
			return nil, "", err
		}
		return idea, "Add idea: " + idea.Title, nil
	})
	if err != nil {
		return domain.Idea{}, attempts, err
	}
	return result.(domain.Idea), attempts, nil
}

// DeleteIdea removes an idea by id.
func (m *Mutator) DeleteIdea(ctx context.Context, id string) (int, error) {
	_, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		domain.DeleteIdea(doc, id, now)
		return nil, "Delete idea: " + id, nil
	})
	return attempts, err
}

// EditIdea patches an idea by id.
func (m *Mutator) EditIdea(ctx context.Context, req IdeaRequest) (domain.Idea, int, error) {
	patch := domain.IdeaPatch{Title: req.TitlePatch, Idea: req.IdeaPatch, Tags: req.Tags}
	result, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		idea, err := domain.EditIdea(doc, req.ID, patch, now)
		if err != nil {
			return nil, "", err
		}
		return idea, "Edit idea: " + idea.Title, nil
	})
	if err != nil {
		return domain.Idea{}, attempts, err
	}
	return result.(domain.Idea), attempts, nil
}

// SubmitChangeRequest files a pending change request.
func (m *Mutator) SubmitChangeRequest(ctx context.Context, id, text string) (domain.ChangeRequest, int, error) {
	result, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		req, err := domain.SubmitChangeRequest(doc, id, text, now)
		if err != nil {
			return nil, "", err
		}
		msg := req.Text
		if r := []rune(msg); len(r) > 60 {
			msg = string(r[:60])
		}
		return req, "Change request: " + msg, nil
	})
	if err != nil {
		return domain.ChangeRequest{}, attempts, err
	}
	return result.(domain.ChangeRequest), attempts, nil
}

// CancelChangeRequest marks a change request cancelled.
func (m *Mutator) CancelChangeRequest(ctx context.Context, id string) (int, error) {
	_, attempts, err := m.mutate(ctx, func(doc *domain.Document, now time.Time) (any, string, error) {
		domain.CancelChangeRequest(doc, id, now)
		return nil, "Cancel change request: " + id, nil
	})
	return attempts, err
}
