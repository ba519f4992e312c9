package api

import "boardsync/domain"

const mutationMaxSize = 64 * 1024 // 64 KiB

// Wire types for the mutation endpoints. All endpoints are POST with JSON
// bodies; failures carry errorResponse with a non-2xx status.

type AddTaskRequest struct {
	Action    string      `json:"action,omitempty"`
	Task      domain.Task `json:"task"`
	ProjectID string      `json:"projectId,omitempty"`
	Column    string      `json:"column,omitempty"`
}

type AddTaskResponse struct {
	OK   bool        `json:"ok"`
	Task domain.Task `json:"task"`
}

type MoveTaskRequest struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"taskId"`
	ProjectID    string `json:"projectId"`
	TargetColumn string `json:"targetColumn"`
}

type MoveTaskResponse struct {
	OK     bool   `json:"ok"`
	TaskID string `json:"taskId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type CompleteTaskRequest struct {
	Action    string `json:"action,omitempty"`
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId,omitempty"`
	// Completed defaults to true when omitted; only an explicit false
	// reopens the task.
	Completed *bool `json:"completed,omitempty"`
}

// IsCompleted resolves the tri-state field: absent means complete.
func (r CompleteTaskRequest) IsCompleted() bool {
	return r.Completed == nil || *r.Completed
}

type CompleteTaskResponse struct {
	OK        bool   `json:"ok"`
	TaskID    string `json:"taskId"`
	Completed bool   `json:"completed"`
}

type EditTaskRequest struct {
	Action    string           `json:"action,omitempty"`
	TaskID    string           `json:"taskId"`
	ProjectID string           `json:"projectId,omitempty"`
	Updates   domain.TaskPatch `json:"updates"`
}

type EditTaskResponse struct {
	OK   bool        `json:"ok"`
	Task domain.Task `json:"task"`
}

type SubtaskRequest struct {
	Action        string          `json:"action,omitempty"`
	TaskID        string          `json:"taskId"`
	ProjectID     string          `json:"projectId,omitempty"`
	SubtaskAction string          `json:"subtaskAction"`
	SubtaskID     string          `json:"subtaskId,omitempty"`
	Subtask       *domain.Subtask `json:"subtask,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// IdeaRequest covers add, delete and edit; the action field selects the
// operation. TitlePatch/IdeaPatch distinguish "set to empty" from "leave
// alone" on edit.
type IdeaRequest struct {
	Action     string   `json:"action,omitempty"`
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title,omitempty"`
	Idea       string   `json:"idea,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	TitlePatch *string  `json:"titlePatch,omitempty"`
	IdeaPatch  *string  `json:"ideaPatch,omitempty"`
}

type IdeaResponse struct {
	OK   bool         `json:"ok"`
	Idea *domain.Idea `json:"idea,omitempty"`
}

type ChangeRequestRequest struct {
	Action    string `json:"action,omitempty"`
	ID        string `json:"id,omitempty"`
	Text      string `json:"text,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type ChangeRequestResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
