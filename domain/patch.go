package domain

// TaskPatch is a partial task update. Nil fields are left untouched. It is
// used both by the edit operation on the server and by locally persisted
// field-edit overrides on the client.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Assignee    *string   `json:"assignee,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p TaskPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Tags == nil && p.Assignee == nil && p.DueDate == nil && p.Subtasks == nil
}

// ApplyTo shallow-merges the patch over the task and returns the result.
// An empty or absent subtask list never clobbers existing subtasks: editing
// only the title or description must not lose checklist state.
func (p TaskPatch) ApplyTo(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = p.Tags
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if len(p.Subtasks) > 0 {
		t.Subtasks = p.Subtasks
	}
	return t
}
