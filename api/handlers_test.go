package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingNotifier) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.texts))
	copy(out, r.texts)
	return out
}

func newTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestGetStatusServesLiveDocument(t *testing.T) {
	store := seededStore(t)
	c, rec := newTestContext(t, http.MethodGet, "/api/status", "")

	if err := getStatus(store, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("expected no-store cache header, got %q", cc)
	}
	var doc domain.Document
	if err := sonic.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(doc.Projects) != 1 || doc.Projects[0].ID != "p1" {
		t.Fatalf("unexpected document: %#v", doc)
	}
}

func TestGetStatusRequiresAuth(t *testing.T) {
	store := seededStore(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	auth := NewTestAuth([]byte("secret"))
	if err := getStatus(store, auth, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPostTasksAdd(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	body := `{"action":"add","task":{"title":"🧪 test emoji"},"projectId":"p1","column":"upnext"}`
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", body)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AddTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.OK || resp.Task.Title != "🧪 test emoji" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestPostTasksMoveAssigneeOverload(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	body := `{"action":"move","taskId":"t1","projectId":"p1","targetColumn":"mordy"}`
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", body)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp MoveTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.To != "upnext" {
		t.Fatalf("assignee move must land in upnext, got %q", resp.To)
	}
}

func TestPostTasksCompleteWithoutFlagCompletes(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	body := `{"action":"complete","taskId":"t1","projectId":"p1"}`
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", body)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CompleteTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Completed {
		t.Fatalf("omitted completed flag must mean complete: %#v", resp)
	}

	doc := currentDoc(t, store)
	done := doc.Projects[0].Tasks[domain.ColumnDone]
	if len(done) != 1 || done[0].ID != "t1" || done[0].CompletedAt == "" {
		t.Fatalf("task not completed: %#v", done)
	}
}

func TestPostTasksCompleteExplicitFalseReopens(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)

	c, rec := newTestContext(t, http.MethodPost, "/api/tasks",
		`{"action":"complete","taskId":"t1","projectId":"p1"}`)
	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("complete handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	c, rec = newTestContext(t, http.MethodPost, "/api/tasks",
		`{"action":"complete","taskId":"t1","projectId":"p1","completed":false}`)
	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("reopen handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	doc := currentDoc(t, store)
	if n := len(doc.Projects[0].Tasks[domain.ColumnDone]); n != 0 {
		t.Fatalf("expected empty done column after reopen, got %d", n)
	}
	todo := doc.Projects[0].Tasks[domain.ColumnTodo]
	found := false
	for _, task := range todo {
		if task.ID == "t1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected t1 back in todo: %#v", todo)
	}
}

func TestPostTasksMoveMissingFields(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", `{"action":"move","taskId":"t1"}`)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPostTasksUnknownAction(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", `{"action":"explode"}`)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !strings.Contains(resp.Error, "explode") {
		t.Fatalf("expected action echoed in error, got %q", resp.Error)
	}
}

func TestPostTasksInvalidBody(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", `{not json`)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPostTasksNotFound(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	body := `{"action":"move","taskId":"ghost","projectId":"p1","targetColumn":"done"}`
	c, rec := newTestContext(t, http.MethodPost, "/api/tasks", body)

	if err := postTasks(m, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error != "Not found" || resp.Detail == "" {
		t.Fatalf("expected structured error, got %#v", resp)
	}
}

func TestPostIdeasAddNotifies(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	notifier := &recordingNotifier{}
	c, rec := newTestContext(t, http.MethodPost, "/api/ideas", `{"title":"AEO duplication"}`)

	if err := postIdeas(m, mockAuth{}, notifier, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp IdeaResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Idea == nil || resp.Idea.ID == "" {
		t.Fatalf("expected created idea, got %#v", resp)
	}
	if texts := notifier.Texts(); len(texts) != 1 || !strings.Contains(texts[0], "AEO duplication") {
		t.Fatalf("expected notification, got %v", texts)
	}
}

func TestPostIdeasDeleteThenEditMissing(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	ctx := context.Background()
	idea, _, err := m.AddIdea(ctx, IdeaRequest{Title: "throwaway"})
	if err != nil {
		t.Fatalf("seed idea: %v", err)
	}

	c, rec := newTestContext(t, http.MethodPost, "/api/ideas", `{"action":"delete","id":"`+idea.ID+`"}`)
	if err := postIdeas(m, mockAuth{}, nil, log.New())(c); err != nil {
		t.Fatalf("delete handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	c, rec = newTestContext(t, http.MethodPost, "/api/ideas", `{"action":"edit","id":"`+idea.ID+`","titlePatch":"x"}`)
	if err := postIdeas(m, mockAuth{}, nil, log.New())(c); err != nil {
		t.Fatalf("edit handler: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 editing deleted idea, got %d", rec.Code)
	}
}

func TestPostChangeRequestSubmitAndCancel(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	notifier := &recordingNotifier{}

	c, rec := newTestContext(t, http.MethodPost, "/api/change-request", `{"text":"Please add a calendar view"}`)
	if err := postChangeRequest(m, mockAuth{}, notifier, log.New())(c); err != nil {
		t.Fatalf("submit handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChangeRequestResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected generated id")
	}
	if len(notifier.Texts()) != 1 {
		t.Fatalf("expected one notification, got %v", notifier.Texts())
	}

	c, rec = newTestContext(t, http.MethodPost, "/api/change-request", `{"action":"cancel","id":"`+resp.ID+`"}`)
	if err := postChangeRequest(m, mockAuth{}, notifier, log.New())(c); err != nil {
		t.Fatalf("cancel handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	doc := currentDoc(t, store)
	if len(doc.ChangeRequests) != 1 {
		t.Fatalf("expected one change request, got %#v", doc.ChangeRequests)
	}
	cr := doc.ChangeRequests[0]
	if cr.Status != domain.ChangeRequestCancelled || cr.CancelledAt == "" {
		t.Fatalf("expected cancelled request, got %#v", cr)
	}
}

func TestPostChangeRequestMissingText(t *testing.T) {
	store := seededStore(t)
	m := NewMutator(store, 0)
	c, rec := newTestContext(t, http.MethodPost, "/api/change-request", `{}`)

	if err := postChangeRequest(m, mockAuth{}, nil, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
