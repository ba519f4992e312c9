package domain

// Target is the destination of a move: either one of the canonical columns
// or an assignee lane. The wire protocol overloads a single string for both,
// so it is parsed exactly once at the system boundary.
type Target struct {
	Column   Column `json:"column"`
	Assignee string `json:"assignee,omitempty"`
}

// ParseTarget maps the three canonical column identifiers directly. Any other
// non-empty string is an assignee name; assignee lanes are stored in the
// upnext array with the assignee field set.
func ParseTarget(s string) Target {
	switch Column(s) {
	case ColumnTodo, ColumnUpnext, ColumnDone:
		return Target{Column: Column(s)}
	}
	if s == "" {
		return Target{Column: ColumnTodo}
	}
	return Target{Column: ColumnUpnext, Assignee: s}
}

// IsAssignee reports whether the target is an assignee lane rather than a
// structural column.
func (t Target) IsAssignee() bool { return t.Assignee != "" }

// String renders the target back into its wire form.
func (t Target) String() string {
	if t.IsAssignee() {
		return t.Assignee
	}
	return string(t.Column)
}
