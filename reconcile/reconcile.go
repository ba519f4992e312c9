// Package reconcile projects a remote document snapshot and the local
// override set into the view rendered to the user. Projection is pure:
// same snapshot + same overrides = same view, with no clock reads and no
// hidden state, so it can run on every invalidation signal.
package reconcile

import (
	"sort"

	"boardsync/domain"
)

// TaskView is one task as rendered, after overrides.
type TaskView struct {
	domain.Task
	ProjectID string
	Column    domain.Column
	// Local marks a task created here that no snapshot has confirmed yet.
	Local bool
	// Overridden marks a task whose rendered state deviates from the snapshot.
	Overridden bool
}

// ProjectView is one project board after projection. Tasks are grouped into
// the three rendered columns; the in_progress storage array folds into todo.
type ProjectView struct {
	ID          string
	Name        string
	Description string
	Color       string
	Icon        string
	Status      domain.ProjectStatus
	Columns     map[domain.Column][]TaskView
}

// ViewModel is the full projected state.
type ViewModel struct {
	Projects       []ProjectView
	Todos          []TaskView
	Ideas          []domain.Idea
	ChangeRequests []domain.ChangeRequest
	TodayPlan      *domain.TodayPlan
	LastUpdated    string
}

// renderColumns lists the columns a project view renders, in order.
var renderColumns = []domain.Column{domain.ColumnTodo, domain.ColumnUpnext, domain.ColumnDone}

// Project merges overrides over the snapshot.
func Project(doc *domain.Document, ov domain.Overrides) ViewModel {
	vm := ViewModel{
		Ideas:          doc.Ideas,
		ChangeRequests: doc.ChangeRequests,
		TodayPlan:      doc.TodayPlan,
		LastUpdated:    doc.LastUpdated,
	}

	seen := snapshotIDs(doc)

	for i := range doc.Projects {
		p := &doc.Projects[i]
		pv := ProjectView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Color:       p.Color,
			Icon:        p.Icon,
			Status:      p.Status,
			Columns:     map[domain.Column][]TaskView{},
		}
		for _, view := range projectTasks(p, ov) {
			pv.Columns[view.Column] = append(pv.Columns[view.Column], view)
		}
		appendLocalTasks(&pv.Columns, p.ID, ov, seen)
		for _, col := range renderColumns {
			pv.Columns[col] = orderColumn(pv.Columns[col], domain.OrderKey{ProjectID: p.ID, Column: col}, ov)
		}
		vm.Projects = append(vm.Projects, pv)
	}

	vm.Todos = standaloneTodos(doc, ov, seen)
	return vm
}

// snapshotIDs collects every task id the snapshot already contains, so local
// tasks confirmed by a later snapshot are matched by id instead of shown
// twice.
func snapshotIDs(doc *domain.Document) map[string]bool {
	ids := map[string]bool{}
	for i := range doc.Projects {
		for _, col := range domain.Columns {
			for _, t := range doc.Projects[i].Tasks[col] {
				ids[t.ID] = true
			}
		}
	}
	for _, t := range doc.Todos {
		ids[t.ID] = true
	}
	return ids
}

// projectTasks resolves every task of one project to its rendered form.
// Canonical membership precedence is done, then upnext, then everything
// else as todo; a task id appearing in several arrays renders once.
func projectTasks(p *domain.Project, ov domain.Overrides) []TaskView {
	canonical := map[string]domain.Column{}
	order := []domain.Task{}
	claim := func(col domain.Column, rendered domain.Column) {
		for _, t := range p.Tasks[col] {
			if _, taken := canonical[t.ID]; taken {
				continue
			}
			canonical[t.ID] = rendered
			order = append(order, t)
		}
	}
	claim(domain.ColumnDone, domain.ColumnDone)
	claim(domain.ColumnUpnext, domain.ColumnUpnext)
	claim(domain.ColumnTodo, domain.ColumnTodo)
	claim(domain.ColumnInProgress, domain.ColumnTodo)

	views := make([]TaskView, 0, len(order))
	for _, t := range order {
		views = append(views, applyOverride(t, p.ID, canonical[t.ID], ov))
	}
	return views
}

// applyOverride merges the task's single override record: field patch first,
// then the effective-column rule; an assignee placement lands the task in
// upnext with the assignee stamped on it.
func applyOverride(t domain.Task, projectID string, canonical domain.Column, ov domain.Overrides) TaskView {
	rec, has := ov.Tasks[t.ID]
	view := TaskView{Task: t, ProjectID: projectID, Column: canonical}
	if !has || rec.IsZero() {
		return view
	}
	view.Task = rec.Patch.ApplyTo(view.Task)
	view.Column = rec.EffectiveColumn(canonical)
	if rec.Placement != nil && rec.Placement.IsAssignee() {
		view.Task.Assignee = rec.Placement.Assignee
	}
	view.Overridden = true
	return view
}

func appendLocalTasks(columns *map[domain.Column][]TaskView, projectID string, ov domain.Overrides, seen map[string]bool) {
	for _, lt := range ov.LocalTasks {
		if lt.ProjectID != projectID || seen[lt.Task.ID] {
			continue
		}
		view := applyOverride(lt.Task, projectID, lt.Target.Column, ov)
		view.Local = true
		if lt.Target.IsAssignee() && view.Task.Assignee == "" {
			view.Task.Assignee = lt.Target.Assignee
		}
		(*columns)[view.Column] = append((*columns)[view.Column], view)
	}
}

func standaloneTodos(doc *domain.Document, ov domain.Overrides, seen map[string]bool) []TaskView {
	views := make([]TaskView, 0, len(doc.Todos))
	for _, t := range doc.Todos {
		views = append(views, applyOverride(t, "", domain.ColumnTodo, ov))
	}
	for _, lt := range ov.LocalTasks {
		if lt.ProjectID != "" || seen[lt.Task.ID] {
			continue
		}
		view := applyOverride(lt.Task, "", lt.Target.Column, ov)
		view.Local = true
		views = append(views, view)
	}
	return orderColumn(views, domain.OrderKey{ProjectID: "", Column: domain.ColumnTodo}, ov)
}

// orderColumn applies the manual order override when one exists: listed ids
// first in listed order, unlisted tasks after in their original relative
// order. Without an override, tasks sort by priority (high before medium
// before low) except in done, which keeps document order.
func orderColumn(tasks []TaskView, key domain.OrderKey, ov domain.Overrides) []TaskView {
	if len(tasks) < 2 {
		return tasks
	}
	if manual, has := ov.Order[key]; has {
		rank := map[string]int{}
		for i, id := range manual {
			rank[id] = i
		}
		sentinel := len(manual)
		sort.SliceStable(tasks, func(i, j int) bool {
			ri, ok := rank[tasks[i].ID]
			if !ok {
				ri = sentinel
			}
			rj, ok := rank[tasks[j].ID]
			if !ok {
				rj = sentinel
			}
			return ri < rj
		})
		return tasks
	}
	if key.Column == domain.ColumnDone {
		return tasks
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
	})
	return tasks
}
