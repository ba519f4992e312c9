package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operations in this file mutate an in-memory copy of the document. The
// caller owns the read-modify-write cycle against the document store; every
// operation here is deterministic given its inputs.

// NewTaskID derives a fallback id for tasks created without one.
func NewTaskID(now time.Time) string {
	return "u-" + strconv.FormatInt(now.UnixMilli(), 36)
}

// NewIdeaID derives a fallback id for ideas created without one.
func NewIdeaID(now time.Time) string {
	return "idea-" + strconv.FormatInt(now.UnixMilli(), 36)
}

// NewChangeRequestID derives a fallback id for change requests.
func NewChangeRequestID(now time.Time) string {
	return "cr-" + strconv.FormatInt(now.UnixMilli(), 36)
}

func timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// AddTask inserts a new task into the target column of a project, or into
// the standalone todos list when projectID is empty. The task title is
// required; created tasks are tagged user-added.
func AddTask(d *Document, task Task, projectID string, target Target, now time.Time) (Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return Task{}, fmt.Errorf("missing task title: %w", ErrInvalid)
	}
	if task.ID == "" {
		task.ID = NewTaskID(now)
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	task.Description = strings.TrimSpace(task.Description)
	task.Tags = append(task.Tags, "user-added")
	if task.CreatedAt == "" {
		task.CreatedAt = timestamp(now)
	}
	if target.IsAssignee() {
		task.Assignee = target.Assignee
	}

	if projectID == "" {
		d.Todos = append(d.Todos, task)
	} else {
		p := d.ProjectByID(projectID)
		if p == nil {
			return Task{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		p.ensureColumns()
		col := target.Column
		if col == "" {
			col = ColumnTodo
		}
		p.Tasks[col] = append(p.Tasks[col], task)
	}
	d.LastUpdated = timestamp(now)
	return task, nil
}

// MoveTask relocates a task to the target column. Moving to an assignee
// lane places the task in upnext and stamps the assignee field.
func MoveTask(d *Document, taskID, projectID string, target Target, now time.Time) (from, to Column, err error) {
	p := d.ProjectByID(projectID)
	if p == nil {
		return "", "", fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	loc, ok := p.FindTask(taskID)
	if !ok {
		return "", "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	task := loc.Task
	if target.IsAssignee() {
		task.Assignee = target.Assignee
	}
	p.ensureColumns()
	p.RemoveTask(taskID)
	p.Tasks[target.Column] = append(p.Tasks[target.Column], task)
	d.LastUpdated = timestamp(now)
	return loc.Column, target.Column, nil
}

// SetCompletion moves a task into done, or back into todo when completed is
// false. Applying the same completion twice leaves exactly one copy of the
// task in the destination column.
func SetCompletion(d *Document, taskID, projectID string, completed bool, now time.Time) error {
	p, loc, err := locateTask(d, taskID, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		// Standalone todo: completion toggles the timestamp in place.
		for i := range d.Todos {
			if d.Todos[i].ID == taskID {
				if completed {
					d.Todos[i].CompletedAt = timestamp(now)
				} else {
					d.Todos[i].CompletedAt = ""
				}
			}
		}
		d.LastUpdated = timestamp(now)
		return nil
	}
	task := loc.Task
	p.ensureColumns()
	p.RemoveTask(taskID)
	if completed {
		task.CompletedAt = timestamp(now)
		p.Tasks[ColumnDone] = append(p.Tasks[ColumnDone], task)
	} else {
		task.CompletedAt = ""
		p.Tasks[ColumnTodo] = append(p.Tasks[ColumnTodo], task)
	}
	d.LastUpdated = timestamp(now)
	return nil
}

// EditTask shallow-merges the patch into the task in place.
func EditTask(d *Document, taskID, projectID string, patch TaskPatch, now time.Time) (Task, error) {
	p, loc, err := locateTask(d, taskID, projectID)
	if err != nil {
		return Task{}, err
	}
	if p == nil {
		for i := range d.Todos {
			if d.Todos[i].ID == taskID {
				d.Todos[i] = patch.ApplyTo(d.Todos[i])
				d.LastUpdated = timestamp(now)
				return d.Todos[i], nil
			}
		}
		return Task{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	updated := patch.ApplyTo(loc.Task)
	p.Tasks[loc.Column][loc.Index] = updated
	d.LastUpdated = timestamp(now)
	return updated, nil
}

// SubtaskAction names a mutateSubtask sub-operation.
type SubtaskAction string

const (
	SubtaskAdd    SubtaskAction = "add"
	SubtaskToggle SubtaskAction = "toggle"
)

// MutateSubtask adds a subtask or toggles an existing one.
func MutateSubtask(d *Document, taskID, projectID string, action SubtaskAction, subtaskID string, sub *Subtask, now time.Time) error {
	p, loc, err := locateTask(d, taskID, projectID)
	if err != nil {
		return err
	}
	var task *Task
	if p == nil {
		for i := range d.Todos {
			if d.Todos[i].ID == taskID {
				task = &d.Todos[i]
			}
		}
		if task == nil {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
	} else {
		task = &p.Tasks[loc.Column][loc.Index]
	}

	switch action {
	case SubtaskAdd:
		if sub == nil || strings.TrimSpace(sub.Title) == "" {
			return fmt.Errorf("missing subtask title: %w", ErrInvalid)
		}
		s := *sub
		s.Title = strings.TrimSpace(s.Title)
		if s.ID == "" {
			s.ID = "st-" + strconv.FormatInt(now.UnixMilli(), 36)
		}
		task.Subtasks = append(task.Subtasks, s)
	case SubtaskToggle:
		found := false
		for i := range task.Subtasks {
			if task.Subtasks[i].ID == subtaskID {
				task.Subtasks[i].Done = !task.Subtasks[i].Done
				found = true
			}
		}
		if !found {
			return fmt.Errorf("subtask %s: %w", subtaskID, ErrNotFound)
		}
	default:
		return fmt.Errorf("unknown subtask action %q: %w", action, ErrInvalid)
	}
	d.LastUpdated = timestamp(now)
	return nil
}

// locateTask resolves the project and location for a task. An empty
// projectID falls back to scanning every project; a nil project in the
// result means the task lives in the standalone todos list.
func locateTask(d *Document, taskID, projectID string) (*Project, TaskLocation, error) {
	if projectID != "" {
		p := d.ProjectByID(projectID)
		if p == nil {
			return nil, TaskLocation{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		loc, ok := p.FindTask(taskID)
		if !ok {
			return nil, TaskLocation{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return p, loc, nil
	}
	for i := range d.Projects {
		if loc, ok := d.Projects[i].FindTask(taskID); ok {
			return &d.Projects[i], loc, nil
		}
	}
	for _, t := range d.Todos {
		if t.ID == taskID {
			return nil, TaskLocation{}, nil
		}
	}
	return nil, TaskLocation{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
}

// AddIdea appends a new idea.
func AddIdea(d *Document, idea Idea, now time.Time) (Idea, error) {
	idea.Title = strings.TrimSpace(idea.Title)
	if idea.Title == "" {
		return Idea{}, fmt.Errorf("missing idea title: %w", ErrInvalid)
	}
	if idea.ID == "" {
		idea.ID = NewIdeaID(now)
	}
	idea.Idea = strings.TrimSpace(idea.Idea)
	if idea.CreatedAt == "" {
		idea.CreatedAt = timestamp(now)
	}
	d.Ideas = append(d.Ideas, idea)
	d.LastUpdated = timestamp(now)
	return idea, nil
}

// DeleteIdea removes the idea with the given id. Deleting an absent idea is
// not an error; the end state is the same.
func DeleteIdea(d *Document, id string, now time.Time) {
	kept := d.Ideas[:0]
	for _, b := range d.Ideas {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	d.Ideas = kept
	d.LastUpdated = timestamp(now)
}

// IdeaPatch is a partial idea update.
type IdeaPatch struct {
	Title *string  `json:"title,omitempty"`
	Idea  *string  `json:"idea,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// EditIdea merges the patch into the idea with the given id.
func EditIdea(d *Document, id string, patch IdeaPatch, now time.Time) (Idea, error) {
	for i := range d.Ideas {
		if d.Ideas[i].ID != id {
			continue
		}
		if patch.Title != nil {
			d.Ideas[i].Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Idea != nil {
			d.Ideas[i].Idea = strings.TrimSpace(*patch.Idea)
		}
		if patch.Tags != nil {
			d.Ideas[i].Tags = patch.Tags
		}
		d.LastUpdated = timestamp(now)
		return d.Ideas[i], nil
	}
	return Idea{}, fmt.Errorf("idea %s: %w", id, ErrNotFound)
}

// SubmitChangeRequest appends a pending change request.
func SubmitChangeRequest(d *Document, id, text string, now time.Time) (ChangeRequest, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChangeRequest{}, fmt.Errorf("missing text: %w", ErrInvalid)
	}
	if id == "" {
		id = NewChangeRequestID(now)
	}
	req := ChangeRequest{
		ID:        id,
		Text:      text,
		Status:    ChangeRequestPending,
		CreatedAt: timestamp(now),
	}
	d.ChangeRequests = append(d.ChangeRequests, req)
	d.LastUpdated = timestamp(now)
	return req, nil
}

// CancelChangeRequest marks the request cancelled. Cancelling an unknown id
// is a no-op, mirroring submit-then-cancel races from stale views.
func CancelChangeRequest(d *Document, id string, now time.Time) {
	for i := range d.ChangeRequests {
		if d.ChangeRequests[i].ID == id {
			d.ChangeRequests[i].Status = ChangeRequestCancelled
			d.ChangeRequests[i].CancelledAt = timestamp(now)
			d.LastUpdated = timestamp(now)
		}
	}
}
