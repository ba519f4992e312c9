package reconcile

import (
	"reflect"
	"testing"

	"boardsync/domain"
)

func snapshotDoc() *domain.Document {
	return &domain.Document{
		Projects: []domain.Project{{
			ID:   "p1",
			Name: "Launch",
			Tasks: map[domain.Column][]domain.Task{
				domain.ColumnTodo: {
					{ID: "id1", Title: "First", Priority: domain.PriorityLow},
					{ID: "id2", Title: "Second", Priority: domain.PriorityHigh},
					{ID: "id3", Title: "Third"},
				},
				domain.ColumnUpnext: {{ID: "id4", Title: "Fourth"}},
				domain.ColumnDone: {
					{ID: "id5", Title: "Fifth", Priority: domain.PriorityLow},
					{ID: "id6", Title: "Sixth", Priority: domain.PriorityHigh},
				},
			},
		}},
		Todos:       []domain.Task{{ID: "s1", Title: "Standalone"}},
		LastUpdated: "2026-02-01T09:00:00Z",
	}
}

func emptyOverrides() domain.Overrides {
	return domain.Overrides{
		Tasks: map[string]domain.TaskOverride{},
		Order: map[domain.OrderKey][]string{},
	}
}

func columnIDs(pv ProjectView, col domain.Column) []string {
	ids := []string{}
	for _, t := range pv.Columns[col] {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestProjectionIsDeterministic(t *testing.T) {
	ov := emptyOverrides()
	done := true
	ov.Tasks["id1"] = domain.TaskOverride{Completed: &done}
	ov.Order[domain.OrderKey{ProjectID: "p1", Column: domain.ColumnTodo}] = []string{"id3"}

	first := Project(snapshotDoc(), ov)
	second := Project(snapshotDoc(), ov)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same inputs produced different views")
	}
}

func TestPlacementBeatsCompletion(t *testing.T) {
	ov := emptyOverrides()
	done := true
	place := domain.ParseTarget("todo")
	ov.Tasks["id4"] = domain.TaskOverride{Placement: &place, Completed: &done}

	vm := Project(snapshotDoc(), ov)
	got := columnIDs(vm.Projects[0], domain.ColumnTodo)
	found := false
	for _, id := range got {
		if id == "id4" {
			found = true
		}
	}
	if !found {
		t.Fatalf("placement should win over completion, todo=%v", got)
	}
}

func TestCompletionOverrideForcesDone(t *testing.T) {
	ov := emptyOverrides()
	done := true
	ov.Tasks["id2"] = domain.TaskOverride{Completed: &done}

	vm := Project(snapshotDoc(), ov)
	pv := vm.Projects[0]
	for _, id := range columnIDs(pv, domain.ColumnTodo) {
		if id == "id2" {
			t.Fatalf("completed task still rendered in todo")
		}
	}
	found := false
	for _, task := range pv.Columns[domain.ColumnDone] {
		if task.ID == "id2" {
			found = true
			if !task.Overridden {
				t.Fatalf("task should be flagged as overridden")
			}
		}
	}
	if !found {
		t.Fatalf("completed task missing from done")
	}
}

func TestManualOrderSentinelLast(t *testing.T) {
	ov := emptyOverrides()
	ov.Order[domain.OrderKey{ProjectID: "p1", Column: domain.ColumnTodo}] = []string{"id3", "id1"}

	vm := Project(snapshotDoc(), ov)
	got := columnIDs(vm.Projects[0], domain.ColumnTodo)
	want := []string{"id3", "id1", "id2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("manual order mismatch: got %v want %v", got, want)
	}
}

func TestPrioritySortSkipsDone(t *testing.T) {
	vm := Project(snapshotDoc(), emptyOverrides())
	pv := vm.Projects[0]

	todo := columnIDs(pv, domain.ColumnTodo)
	want := []string{"id2", "id3", "id1"}
	if !reflect.DeepEqual(todo, want) {
		t.Fatalf("priority sort mismatch: got %v want %v", todo, want)
	}

	done := columnIDs(pv, domain.ColumnDone)
	if !reflect.DeepEqual(done, []string{"id5", "id6"}) {
		t.Fatalf("done column must keep document order, got %v", done)
	}
}

func TestFieldPatchPreservesSubtasks(t *testing.T) {
	doc := snapshotDoc()
	doc.Projects[0].Tasks[domain.ColumnTodo][0].Subtasks = []domain.Subtask{{ID: "st1", Title: "keep"}}

	ov := emptyOverrides()
	title := "Renamed"
	ov.Tasks["id1"] = domain.TaskOverride{Patch: domain.TaskPatch{Title: &title}}

	vm := Project(doc, ov)
	for _, task := range vm.Projects[0].Columns[domain.ColumnTodo] {
		if task.ID != "id1" {
			continue
		}
		if task.Title != "Renamed" {
			t.Fatalf("patch not applied: %q", task.Title)
		}
		if len(task.Subtasks) != 1 {
			t.Fatalf("subtasks lost on field patch: %#v", task.Subtasks)
		}
		return
	}
	t.Fatalf("patched task not found")
}

func TestAssigneePlacementLandsInUpnext(t *testing.T) {
	ov := emptyOverrides()
	place := domain.ParseTarget("mordy")
	ov.Tasks["id1"] = domain.TaskOverride{Placement: &place}

	vm := Project(snapshotDoc(), ov)
	for _, task := range vm.Projects[0].Columns[domain.ColumnUpnext] {
		if task.ID == "id1" {
			if task.Assignee != "mordy" {
				t.Fatalf("assignee not stamped: %+v", task)
			}
			return
		}
	}
	t.Fatalf("assignee placement should render in upnext")
}

func TestLocalTaskShownUntilSnapshotConfirms(t *testing.T) {
	local := domain.LocalTask{
		Task:      domain.Task{ID: "u-123", Title: "Offline add"},
		ProjectID: "p1",
		Target:    domain.ParseTarget("todo"),
	}
	ov := emptyOverrides()
	ov.LocalTasks = []domain.LocalTask{local}

	vm := Project(snapshotDoc(), ov)
	found := false
	for _, task := range vm.Projects[0].Columns[domain.ColumnTodo] {
		if task.ID == "u-123" {
			found = true
			if !task.Local {
				t.Fatalf("local task not flagged")
			}
		}
	}
	if !found {
		t.Fatalf("local task not rendered before snapshot confirms it")
	}

	// Once the snapshot contains the id the local copy must not duplicate.
	doc := snapshotDoc()
	doc.Projects[0].Tasks[domain.ColumnTodo] = append(doc.Projects[0].Tasks[domain.ColumnTodo],
		domain.Task{ID: "u-123", Title: "Offline add"})
	vm = Project(doc, ov)
	count := 0
	for _, task := range vm.Projects[0].Columns[domain.ColumnTodo] {
		if task.ID == "u-123" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one copy after confirmation, got %d", count)
	}
}

func TestDuplicateMembershipRendersOnce(t *testing.T) {
	doc := snapshotDoc()
	// Same id in done and todo: done wins.
	doc.Projects[0].Tasks[domain.ColumnDone] = append(doc.Projects[0].Tasks[domain.ColumnDone],
		domain.Task{ID: "id1", Title: "First"})

	vm := Project(doc, emptyOverrides())
	pv := vm.Projects[0]
	for _, id := range columnIDs(pv, domain.ColumnTodo) {
		if id == "id1" {
			t.Fatalf("duplicated membership must resolve to done")
		}
	}
	count := 0
	for _, id := range columnIDs(pv, domain.ColumnDone) {
		if id == "id1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one rendering, got %d", count)
	}
}

func TestStandaloneTodosProjectAndOverride(t *testing.T) {
	ov := emptyOverrides()
	done := true
	ov.Tasks["s1"] = domain.TaskOverride{Completed: &done}

	vm := Project(snapshotDoc(), ov)
	if len(vm.Todos) != 1 {
		t.Fatalf("expected one standalone todo, got %d", len(vm.Todos))
	}
	if vm.Todos[0].Column != domain.ColumnDone {
		t.Fatalf("completion override ignored for standalone todo: %+v", vm.Todos[0])
	}
}
