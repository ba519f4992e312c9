package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/api"
	"boardsync/domain"
	"boardsync/overrides"
)

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

type apiStub struct {
	failures int32 // remaining calls to fail
	status   int   // status for failures
	calls    int32
	lastBody atomic.Value
}

func (s *apiStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		body, _ := io.ReadAll(r.Body)
		s.lastBody.Store(string(body))
		if atomic.AddInt32(&s.failures, -1) >= 0 {
			w.WriteHeader(s.status)
			w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}
}

func newDispatcher(t *testing.T, stub *apiStub) (*Dispatcher, *overrides.Store) {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	store, err := overrides.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	d := NewDispatcher(NewClient(srv.URL, "test-token"), store, quietLogger(),
		WithRetry(3, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d, store
}

func awaitResult(t *testing.T, d *Dispatcher) Result {
	t.Helper()
	select {
	case res := <-d.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("no result delivered")
		return Result{}
	}
}

func TestToggleCompletionWritesOverrideAndSyncs(t *testing.T) {
	stub := &apiStub{}
	d, store := newDispatcher(t, stub)
	ctx := context.Background()

	id, err := d.ToggleCompletion(ctx, "t1", "p1", true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if id == "" {
		t.Fatalf("expected dispatch id")
	}

	// The override is visible before the remote call resolves.
	var rec domain.TaskOverride
	found, err := store.Get(ctx, overrides.KindTask, "t1", &rec)
	if err != nil || !found {
		t.Fatalf("override not written: found=%v err=%v", found, err)
	}
	if rec.Completed == nil || !*rec.Completed {
		t.Fatalf("unexpected override: %+v", rec)
	}

	res := awaitResult(t, d)
	if res.Err != nil || res.Action != "complete" || res.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var sent api.CompleteTaskRequest
	if err := sonic.ConfigStd.Unmarshal([]byte(stub.lastBody.Load().(string)), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.Action != "complete" || sent.TaskID != "t1" || !sent.IsCompleted() {
		t.Fatalf("unexpected wire request: %+v", sent)
	}
	if sent.Completed == nil {
		t.Fatalf("completed must be explicit on the wire")
	}
}

func TestTransientFailureRetriesWithBackoff(t *testing.T) {
	stub := &apiStub{failures: 1, status: http.StatusInternalServerError}
	d, _ := newDispatcher(t, stub)

	if _, err := d.Move(context.Background(), "t1", "p1", "mordy"); err != nil {
		t.Fatalf("move: %v", err)
	}
	res := awaitResult(t, d)
	if res.Err != nil {
		t.Fatalf("expected eventual success, got %v", res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestDeterministicFailureIsNotRetried(t *testing.T) {
	stub := &apiStub{failures: 10, status: http.StatusNotFound}
	d, _ := newDispatcher(t, stub)

	if _, err := d.ToggleCompletion(context.Background(), "ghost", "", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	res := awaitResult(t, d)
	if !errors.Is(res.Err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", res.Err)
	}
	if res.Attempts != 1 {
		t.Fatalf("deterministic failure must not retry, got %d attempts", res.Attempts)
	}
}

func TestAddTaskFailureStaysPendingLocally(t *testing.T) {
	stub := &apiStub{failures: 10, status: http.StatusInternalServerError}
	d, store := newDispatcher(t, stub)
	ctx := context.Background()

	if _, err := d.AddTask(ctx, domain.Task{Title: "Offline add"}, "p1", "todo"); err != nil {
		t.Fatalf("add: %v", err)
	}
	res := awaitResult(t, d)
	if res.Err == nil || !res.Pending {
		t.Fatalf("expected pending failure, got %+v", res)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected retry budget spent, got %d attempts", res.Attempts)
	}

	ov, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(ov.LocalTasks) != 1 || ov.LocalTasks[0].Task.Title != "Offline add" {
		t.Fatalf("local task not preserved: %+v", ov.LocalTasks)
	}
}

func TestAddIdeaClearsCacheOnAck(t *testing.T) {
	stub := &apiStub{}
	d, store := newDispatcher(t, stub)
	ctx := context.Background()

	if _, err := d.AddIdea(ctx, domain.Idea{ID: "i-test", Title: "Big plan"}); err != nil {
		t.Fatalf("add idea: %v", err)
	}
	res := awaitResult(t, d)
	if res.Err != nil {
		t.Fatalf("unexpected failure: %+v", res)
	}

	// The cached copy is gone once the server acknowledged.
	var cached domain.Idea
	found, err := store.Get(ctx, overrides.KindIdea, "i-test", &cached)
	if err != nil {
		t.Fatalf("get cached idea: %v", err)
	}
	if found {
		t.Fatalf("idea cache not cleared: %+v", cached)
	}
}

func TestDeleteIdeaClearsCacheAndSyncs(t *testing.T) {
	stub := &apiStub{}
	d, store := newDispatcher(t, stub)
	ctx := context.Background()

	if err := store.Set(ctx, overrides.KindIdea, "i-old", domain.Idea{ID: "i-old", Title: "Stale plan"}); err != nil {
		t.Fatalf("seed idea cache: %v", err)
	}
	if _, err := d.DeleteIdea(ctx, "i-old"); err != nil {
		t.Fatalf("delete idea: %v", err)
	}

	// The cached copy is dropped before the remote call resolves.
	var cached domain.Idea
	found, err := store.Get(ctx, overrides.KindIdea, "i-old", &cached)
	if err != nil {
		t.Fatalf("get cached idea: %v", err)
	}
	if found {
		t.Fatalf("idea cache not cleared: %+v", cached)
	}

	res := awaitResult(t, d)
	if res.Err != nil || res.Action != "delete-idea" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var sent api.IdeaRequest
	if err := sonic.ConfigStd.Unmarshal([]byte(stub.lastBody.Load().(string)), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.Action != "delete" || sent.ID != "i-old" {
		t.Fatalf("unexpected wire request: %+v", sent)
	}
}

func TestEditIdeaSendsPatch(t *testing.T) {
	stub := &apiStub{}
	d, _ := newDispatcher(t, stub)

	title := "Sharper plan"
	d.EditIdea(context.Background(), api.IdeaRequest{ID: "i-1", TitlePatch: &title})

	res := awaitResult(t, d)
	if res.Err != nil || res.Action != "edit-idea" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var sent api.IdeaRequest
	if err := sonic.ConfigStd.Unmarshal([]byte(stub.lastBody.Load().(string)), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.Action != "edit" || sent.ID != "i-1" {
		t.Fatalf("unexpected wire request: %+v", sent)
	}
	if sent.TitlePatch == nil || *sent.TitlePatch != "Sharper plan" {
		t.Fatalf("title patch lost on the wire: %+v", sent)
	}
}

func TestCancelChangeRequestClearsCacheAndSyncs(t *testing.T) {
	stub := &apiStub{}
	d, store := newDispatcher(t, stub)
	ctx := context.Background()

	cached := domain.ChangeRequest{ID: "cr-1", Text: "Rename the board", Status: domain.ChangeRequestPending}
	if err := store.Set(ctx, overrides.KindChangeRequest, "cr-1", cached); err != nil {
		t.Fatalf("seed change request cache: %v", err)
	}
	if _, err := d.CancelChangeRequest(ctx, "cr-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	found, err := store.Get(ctx, overrides.KindChangeRequest, "cr-1", &cached)
	if err != nil {
		t.Fatalf("get cached request: %v", err)
	}
	if found {
		t.Fatalf("change request cache not cleared: %+v", cached)
	}

	res := awaitResult(t, d)
	if res.Err != nil || res.Action != "cancel-change-request" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var sent api.ChangeRequestRequest
	if err := sonic.ConfigStd.Unmarshal([]byte(stub.lastBody.Load().(string)), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.Action != "cancel" || sent.ID != "cr-1" {
		t.Fatalf("unexpected wire request: %+v", sent)
	}
}

func TestConflictMapsToSentinel(t *testing.T) {
	stub := &apiStub{failures: 10, status: http.StatusConflict}
	d, _ := newDispatcher(t, stub)

	if _, err := d.Move(context.Background(), "t1", "p1", "done"); err != nil {
		t.Fatalf("move: %v", err)
	}
	res := awaitResult(t, d)
	if !errors.Is(res.Err, domain.ErrConflict) {
		t.Fatalf("expected conflict sentinel, got %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Fatalf("conflicts are retryable, expected 3 attempts, got %d", res.Attempts)
	}
}
