package domain

// Column names the canonical task arrays of a project board.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnUpnext     Column = "upnext"
	ColumnInProgress Column = "in_progress"
	ColumnDone       Column = "done"
)

// Columns lists every canonical array in scan order.
var Columns = []Column{ColumnTodo, ColumnUpnext, ColumnInProgress, ColumnDone}

// Priority of a task. Unknown values are treated as medium.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for column sorting, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Subtask is a checklist entry owned by a task.
type Subtask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Task is a single board item. IDs are unique across the whole document,
// not just within a column.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	DueDate     string    `json:"dueDate,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty"`
	CompletedAt string    `json:"completedAt,omitempty"`
}

// ProjectStatus reflects the lifecycle of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectComplete ProjectStatus = "complete"
)

// Project groups tasks into per-column arrays.
type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Color       string            `json:"color,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Status      ProjectStatus     `json:"status,omitempty"`
	Tasks       map[Column][]Task `json:"tasks"`
}

// Idea is a captured product/business idea outside any project board.
type Idea struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Idea      string   `json:"idea,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// ChangeRequestStatus tracks the lifecycle of a change request.
type ChangeRequestStatus string

const (
	ChangeRequestPending   ChangeRequestStatus = "pending"
	ChangeRequestCancelled ChangeRequestStatus = "cancelled"
)

// ChangeRequest is a free-form request filed against the board.
type ChangeRequest struct {
	ID          string              `json:"id"`
	Text        string              `json:"text"`
	Status      ChangeRequestStatus `json:"status,omitempty"`
	CreatedAt   string              `json:"createdAt,omitempty"`
	CancelledAt string              `json:"cancelledAt,omitempty"`
}

// TodayPlan is the free-form plan block rendered above the board.
type TodayPlan struct {
	Focus string   `json:"focus,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Document is the full shared state document. It is versioned by an opaque
// revision token issued by the document store on read and required on write.
type Document struct {
	Projects       []Project       `json:"projects,omitempty"`
	Todos          []Task          `json:"todos,omitempty"`
	Ideas          []Idea          `json:"ideas,omitempty"`
	ChangeRequests []ChangeRequest `json:"changeRequests,omitempty"`
	TodayPlan      *TodayPlan      `json:"todayPlan,omitempty"`
	LastUpdated    string          `json:"lastUpdated,omitempty"`
}

// ProjectByID returns the project with the given id, or nil.
func (d *Document) ProjectByID(id string) *Project {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return &d.Projects[i]
		}
	}
	return nil
}

// TaskLocation identifies where a task currently lives in a project.
type TaskLocation struct {
	Column Column
	Index  int
	Task   Task
}

// FindTask scans all columns of the project for the task id.
func (p *Project) FindTask(taskID string) (TaskLocation, bool) {
	for _, col := range Columns {
		for i, t := range p.Tasks[col] {
			if t.ID == taskID {
				return TaskLocation{Column: col, Index: i, Task: t}, true
			}
		}
	}
	return TaskLocation{}, false
}

// RemoveTask deletes every occurrence of the task id from all columns.
func (p *Project) RemoveTask(taskID string) {
	for _, col := range Columns {
		arr := p.Tasks[col]
		if len(arr) == 0 {
			continue
		}
		kept := arr[:0]
		for _, t := range arr {
			if t.ID != taskID {
				kept = append(kept, t)
			}
		}
		p.Tasks[col] = kept
	}
}

func (p *Project) ensureColumns() {
	if p.Tasks == nil {
		p.Tasks = map[Column][]Task{}
	}
}
