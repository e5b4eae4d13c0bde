package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	router, err := NewRouter()
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestGetJobStatus(t *testing.T) {
	router := testRouter(t)

	t.Run("unknown job", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/jobs/nope", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("known job", func(t *testing.T) {
		id := jobRegistry.Create(5)
		jobRegistry.Update(id, func(st *models.JobStatus) {
			st.Status = "running"
			st.CompletedGames = 2
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var st models.JobStatus
		if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if st.ID != id || st.Status != "running" || st.CompletedGames != 2 || st.TotalGames != 5 {
			t.Fatalf("status = %+v", st)
		}
	})
}

func TestStartAnalysisRejectsBadRequests(t *testing.T) {
	router := testRouter(t)

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"depth": 12}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestStopJob(t *testing.T) {
	router := testRouter(t)

	t.Run("unknown job", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/nope/stop", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("finished job", func(t *testing.T) {
		id := jobRegistry.Create(1)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/stop", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409 for a job with no cancel hook", w.Code)
		}
	})

	t.Run("running job", func(t *testing.T) {
		id := jobRegistry.Create(2)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		jobRegistry.Attach(id, cancel)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/stop", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", w.Code)
		}

		select {
		case <-ctx.Done():
		default:
			t.Fatal("stop did not cancel the job's context")
		}
		if st, _ := jobRegistry.Get(id); st.Status != "stopping" {
			t.Fatalf("status = %q, want stopping", st.Status)
		}

		// A second stop finds no cancel hook left.
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/stop", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Fatalf("second stop status = %d, want 409", w.Code)
		}
	})
}

func TestJobRegistry(t *testing.T) {
	reg := NewJobRegistry()
	id := reg.Create(3)

	st, ok := reg.Get(id)
	if !ok || st.Status != "queued" || st.TotalGames != 3 {
		t.Fatalf("fresh job = %+v ok=%v", st, ok)
	}

	reg.Update(id, func(st *models.JobStatus) { st.Status = "done" })
	st, _ = reg.Get(id)
	if st.Status != "done" {
		t.Fatalf("update lost: %+v", st)
	}

	// Updating a job that does not exist is a no-op.
	reg.Update("ghost", func(st *models.JobStatus) { st.Status = "boom" })
	if _, ok := reg.Get("ghost"); ok {
		t.Fatal("phantom job created")
	}
}
