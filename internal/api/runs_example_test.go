package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/store"
)

type exampleRunRepo struct {
	runs []store.Run
}

func (e *exampleRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return e.runs[0], nil
}

func (e *exampleRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return e.runs, nil
}

// ExampleRunHandler_ListRuns shows how to serve the /api/runs endpoint.
func ExampleRunHandler_ListRuns() {
	runID := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	repo := &exampleRunRepo{
		runs: []store.Run{{
			ID:        runID,
			Status:    store.RunSuccess,
			StartedAt: time.Unix(0, 0),
		}},
	}
	r := chi.NewRouter()
	NewRunHandler(repo, zap.NewNop()).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d\n", len(payload.Runs))
	// Output:
	// returned runs: 1
}
