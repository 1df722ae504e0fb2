package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"batchd/internal/store"
	"batchd/pkg/types"
)

type mockService struct {
	models  []types.Model
	status  types.RunStatus
	running bool
	runs    map[string]types.RunResult
	listErr error
}

func (m *mockService) Status() (types.RunStatus, bool) { return m.status, m.running }
func (m *mockService) ListModels() []types.Model      { return append([]types.Model(nil), m.models...) }

func (m *mockService) ListRuns(context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var ids []string
	for id := range m.runs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockService) LoadRun(_ context.Context, id string) (types.RunResult, error) {
	res, ok := m.runs[id]
	if !ok {
		return types.RunResult{}, store.ErrNotFound
	}
	return res, nil
}

type teapot struct{}

func (teapot) Error() string   { return "short and stout" }
func (teapot) StatusCode() int { return http.StatusTeapot }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc)
	if w := get(t, r, "/status"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before run=%d", w.Code)
	}
	if w := get(t, r, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before run=%d", w.Code)
	}

	svc.running = true
	svc.status = types.RunStatus{RunID: "r1", Round: 2, Records: []types.RecordStatus{{ID: 0, State: "GatherNotes"}, {ID: 1, State: "WriteFirstDraft"}}}
	w := get(t, r, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var st types.RunStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.RunID != "r1" || st.Round != 2 || len(st.Records) != 2 {
		t.Fatalf("unexpected body %+v", st)
	}
	if w := get(t, r, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("readyz=%d", w.Code)
	}
}

func TestRecordHandler(t *testing.T) {
	svc := &mockService{running: true, status: types.RunStatus{Records: []types.RecordStatus{{ID: 3, State: "Error", LastError: "no kv slot"}}}}
	r := NewMux(svc)
	w := get(t, r, "/status/records/3")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "no kv slot") {
		t.Fatalf("record: %d %s", w.Code, w.Body.String())
	}
	if w := get(t, r, "/status/records/4"); w.Code != http.StatusNotFound {
		t.Fatalf("missing record=%d", w.Code)
	}
	if w := get(t, r, "/status/records/x"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id=%d", w.Code)
	}
}

func TestRunsHandlers(t *testing.T) {
	svc := &mockService{runs: map[string]types.RunResult{"r1": {Status: types.RunStatus{RunID: "r1"}, SavedUnix: 42}}}
	r := NewMux(svc)

	w := get(t, r, "/runs")
	var list map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list["runs"]) != 1 {
		t.Fatalf("runs: %v %s", err, w.Body.String())
	}
	w = get(t, r, "/runs/r1")
	var res types.RunResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.SavedUnix != 42 {
		t.Fatalf("run: %v %s", err, w.Body.String())
	}

	w = get(t, r, "/runs/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run=%d", w.Code)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.Code != http.StatusNotFound {
		t.Fatalf("error body: %v %s", err, w.Body.String())
	}

	svc.listErr = errors.New("redis down")
	if w := get(t, r, "/runs"); w.Code != http.StatusInternalServerError {
		t.Fatalf("list error=%d", w.Code)
	}
	svc.listErr = teapot{}
	if w := get(t, r, "/runs"); w.Code != http.StatusTeapot {
		t.Fatalf("HTTPError mapping=%d", w.Code)
	}
}

func TestModelsHandler(t *testing.T) {
	r := NewMux(&mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}})
	w := get(t, r, "/models")
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestHealthAndHeaders(t *testing.T) {
	w := get(t, NewMux(&mockService{}), "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestCORS(t *testing.T) {
	r := NewMux(&mockService{}, WithCORS("http://example.test"))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://example.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.test" {
		t.Fatalf("allow-origin=%q", got)
	}
}
