package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/docstore"
	"boardsync/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, m *Mutator, store docstore.Store, auth Authenticator, notifier Notifier, logger *log.Logger) {
	e.GET("/api/status", getStatus(store, auth, logger))
	e.POST("/api/tasks", postTasks(m, auth, logger))
	e.POST("/api/ideas", postIdeas(m, auth, notifier, logger))
	e.POST("/api/change-request", postChangeRequest(m, auth, notifier, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// httpStatus maps domain sentinel errors onto HTTP statuses.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMisconfigured):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := httpStatus(err)
	resp := errorResponse{Detail: err.Error()}
	switch status {
	case http.StatusBadRequest:
		resp.Error = "Invalid request"
	case http.StatusNotFound:
		resp.Error = "Not found"
	case http.StatusConflict:
		resp.Error = "Conflict"
	default:
		resp.Error = "Internal error"
	}
	return c.JSON(status, resp)
}

func getStatus(store docstore.Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newMutationMetrics(logger, "/api/status", "read")
		defer func() { metrics.Log(c.Response().Status, err) }()

		if _, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Detail: authErr.Error()})
			return err
		}

		snap, getErr := store.Get(c.Request().Context())
		if getErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, getErr)
			return err
		}
		// Every viewer must see the live document, not a deploy-cached copy.
		c.Response().Header().Set("Cache-Control", "no-cache, no-store")
		err = c.Blob(http.StatusOK, echo.MIMEApplicationJSON, snap.Content)
		return err
	}
}

// decodeBody reads the request into raw bytes so the action can be sniffed
// before the body is decoded into its action-specific shape.
func decodeBody(c echo.Context) ([]byte, string, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, mutationMaxSize))
	if err != nil {
		return nil, "", err
	}
	var probe struct {
		Action string `json:"action"`
	}
	if err := sonic.ConfigStd.Unmarshal(body, &probe); err != nil {
		return nil, "", err
	}
	return body, probe.Action, nil
}

func postTasks(m *Mutator, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newMutationMetrics(logger, "/api/tasks", "")
		defer func() { metrics.Log(c.Response().Status, err) }()

		if _, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Detail: authErr.Error()})
			return err
		}

		body, action, decodeErr := decodeBody(c)
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			return err
		}
		if action == "" {
			action = "add"
		}
		metrics.SetAction(action)
		ctx := c.Request().Context()

		switch action {
		case "add":
			var req AddTaskRequest
			if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
				metrics.SetErrorStage("decode")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			}
			task, attempts, opErr := m.AddTask(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusCreated, AddTaskResponse{OK: true, Task: task})
			return err
		case "move":
			var req MoveTaskRequest
			if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
				metrics.SetErrorStage("decode")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			}
			if req.TaskID == "" || req.ProjectID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing taskId or projectId"})
				return err
			}
			resp, attempts, opErr := m.MoveTask(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, resp)
			return err
		case "complete":
			var req CompleteTaskRequest
			if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
				metrics.SetErrorStage("decode")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			}
			if req.TaskID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing taskId"})
				return err
			}
			attempts, opErr := m.SetCompletion(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, CompleteTaskResponse{OK: true, TaskID: req.TaskID, Completed: req.IsCompleted()})
			return err
		case "edit":
			var req EditTaskRequest
			if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
				metrics.SetErrorStage("decode")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			}
			if req.TaskID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing taskId"})
				return err
			}
			task, attempts, opErr := m.EditTask(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, EditTaskResponse{OK: true, Task: task})
			return err
		case "subtask":
			var req SubtaskRequest
			if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
				metrics.SetErrorStage("decode")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			}
			if req.TaskID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing taskId"})
				return err
			}
			attempts, opErr := m.MutateSubtask(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, OKResponse{OK: true})
			return err
		default:
			metrics.SetErrorStage("unknown_action")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Unknown action: " + action})
			return err
		}
	}
}

func postIdeas(m *Mutator, auth Authenticator, notifier Notifier, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newMutationMetrics(logger, "/api/ideas", "")
		defer func() { metrics.Log(c.Response().Status, err) }()

		if _, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Detail: authErr.Error()})
			return err
		}

		body, action, decodeErr := decodeBody(c)
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			return err
		}
		if action == "" {
			action = "add"
		}
		metrics.SetAction(action)

		var req IdeaRequest
		if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		}
		ctx := c.Request().Context()

		switch action {
		case "add":
			idea, attempts, opErr := m.AddIdea(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			if notifier != nil {
				notifier.Notify(ctx, "New idea: \""+idea.Title+"\"")
			}
			err = c.JSON(http.StatusCreated, IdeaResponse{OK: true, Idea: &idea})
			return err
		case "delete":
			if req.ID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing id"})
				return err
			}
			attempts, opErr := m.DeleteIdea(ctx, req.ID)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, OKResponse{OK: true})
			return err
		case "edit":
			if req.ID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing id"})
				return err
			}
			idea, attempts, opErr := m.EditIdea(ctx, req)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, IdeaResponse{OK: true, Idea: &idea})
			return err
		default:
			metrics.SetErrorStage("unknown_action")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Unknown action: " + action})
			return err
		}
	}
}

func postChangeRequest(m *Mutator, auth Authenticator, notifier Notifier, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newMutationMetrics(logger, "/api/change-request", "submit")
		defer func() { metrics.Log(c.Response().Status, err) }()

		if _, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Detail: authErr.Error()})
			return err
		}

		body, action, decodeErr := decodeBody(c)
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			return err
		}
		var req ChangeRequestRequest
		if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		}
		ctx := c.Request().Context()

		if action == "cancel" {
			metrics.SetAction("cancel")
			if req.ID == "" {
				metrics.SetErrorStage("validate")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing id"})
				return err
			}
			attempts, opErr := m.CancelChangeRequest(ctx, req.ID)
			metrics.SetAttempts(attempts)
			if opErr != nil {
				metrics.SetErrorStage("mutate")
				err = writeError(c, opErr)
				return err
			}
			err = c.JSON(http.StatusOK, OKResponse{OK: true})
			return err
		}

		cr, attempts, opErr := m.SubmitChangeRequest(ctx, req.ID, req.Text)
		metrics.SetAttempts(attempts)
		if opErr != nil {
			metrics.SetErrorStage("mutate")
			err = writeError(c, opErr)
			return err
		}
		if notifier != nil {
			text := cr.Text
			if r := []rune(text); len(r) > 120 {
				text = string(r[:120])
			}
			notifier.Notify(ctx, "Change request: "+text)
		}
		err = c.JSON(http.StatusCreated, ChangeRequestResponse{OK: true, ID: cr.ID})
		return err
	}
}
