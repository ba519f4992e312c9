package domain

// TaskOverride is the locally persisted deviation from the snapshot for one
// task: unsynced or speculative user intent. One record per task id replaces
// the older scattered per-kind maps, so a task's effective state is resolved
// by a single priority rule instead of ad-hoc checks.
type TaskOverride struct {
	// Placement pins the task to a column or assignee lane.
	Placement *Target `json:"placement,omitempty"`
	// Completed marks the task done (true) or reopened (false).
	Completed *bool `json:"completed,omitempty"`
	// Patch carries local field edits.
	Patch TaskPatch `json:"patch,omitempty"`
}

// IsZero reports whether the override changes nothing.
func (o TaskOverride) IsZero() bool {
	return o.Placement == nil && o.Completed == nil && o.Patch.IsZero()
}

// EffectiveColumn resolves the column a task renders under. Priority:
// explicit placement, then completion (true forces done; false pulls a
// canonically-done task back to todo), then the canonical column.
func (o TaskOverride) EffectiveColumn(canonical Column) Column {
	if o.Placement != nil {
		return o.Placement.Column
	}
	if o.Completed != nil {
		if *o.Completed {
			return ColumnDone
		}
		if canonical == ColumnDone {
			return ColumnTodo
		}
	}
	return canonical
}

// OrderKey addresses a manual ordering override for one column of one
// project.
type OrderKey struct {
	ProjectID string `json:"projectId"`
	Column    Column `json:"column"`
}

// LocalTask is a task created locally that has not yet been observed in a
// snapshot. Its id is client-generated and stable, so once a snapshot
// contains the committed task it is matched by id rather than duplicated.
type LocalTask struct {
	Task      Task   `json:"task"`
	ProjectID string `json:"projectId,omitempty"`
	Target    Target `json:"target"`
}

// Overrides is everything the local store knows, as consumed by one
// reconciler pass.
type Overrides struct {
	Tasks      map[string]TaskOverride
	Order      map[OrderKey][]string
	LocalTasks []LocalTask
}
