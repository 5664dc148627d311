package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	clsmem "github.com/SilentInt/HamsterWallet/internal/classifier/memory"
	"github.com/SilentInt/HamsterWallet/internal/recat"
	"github.com/SilentInt/HamsterWallet/internal/storage"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	tax := taxonomy.NewService(repo)
	rc := recat.NewService(recat.NewTaskState(), repo, tax, clsmem.New(), nil, recat.Config{})

	srv := NewServer(":0", rc, tax, repo)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestTaskStatusStartsIdle(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/batch-category/task", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"status":"IDLE"`) {
		t.Fatalf("expected IDLE status, got %s", rr.Body.String())
	}
}

func TestTaskStartWithNoEligibleItems(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/api/batch-category/task", "{}")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty item set, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"success":false`) {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
}

func TestTaskResultsBeforeRun(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/batch-category/task/results", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before any run, got %d", rr.Code)
	}
}

func TestTaskStopWithoutRun(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/api/batch-category/task/stop", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 stopping an idle task, got %d", rr.Code)
	}
}

func TestTaskEventsEmptyLog(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/batch-category/task/events", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty event list, got %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/batch-category/task/events?limit=abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// Create a root category
	rr := do(t, srv, http.MethodPost, "/api/categories", `{"name":"Food","level":1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"name":"Food"`) {
		t.Fatalf("expected created category in body, got %s", rr.Body.String())
	}

	// Duplicate sibling is rejected
	rr = do(t, srv, http.MethodPost, "/api/categories", `{"name":"Food","level":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate name, got %d", rr.Code)
	}

	// Child with mismatched level is rejected
	rr = do(t, srv, http.MethodPost, "/api/categories", `{"name":"Snacks","level":3,"parent_id":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for level mismatch, got %d", rr.Code)
	}

	// Rename
	rr = do(t, srv, http.MethodPut, "/api/categories/1", `{"name":"Groceries"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("rename status=%d body=%s", rr.Code, rr.Body.String())
	}

	// Tree reflects the rename
	rr = do(t, srv, http.MethodGet, "/api/categories/tree", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Groceries") {
		t.Fatalf("tree status=%d body=%s", rr.Code, rr.Body.String())
	}

	// Statistics
	rr = do(t, srv, http.MethodGet, "/api/categories/statistics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("statistics status=%d body=%s", rr.Code, rr.Body.String())
	}

	// Delete
	rr = do(t, srv, http.MethodDelete, "/api/categories/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}

	// Gone now
	rr = do(t, srv, http.MethodPut, "/api/categories/1", `{"name":"X"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestCategoryPathValidation(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPut, "/api/categories/abc", `{"name":"X"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/api/categories/merge", `{"source_id":1,"target_id":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self merge, got %d", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/batch-category/task", "")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
