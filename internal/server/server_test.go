package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/trailgraph/internal/collect"
	"github.com/OFFIS-RIT/trailgraph/internal/queue"
	mid "github.com/OFFIS-RIT/trailgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"
	"github.com/OFFIS-RIT/trailgraph/pkg/store/memory"

	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (f *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp091.Table) error {
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = map[string][][]byte{}
	}
	f.published[key] = append(f.published[key], msg.Body)
	return nil
}

type testServer struct {
	t   *testing.T
	e   *echo.Echo
	app *mid.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{})
	if err != nil {
		t.Fatalf("NewGraphClient() error = %v", err)
	}
	m := graph.NewManager(client, memory.New(0))
	t.Cleanup(m.CloseAll)

	app := &mid.App{Manager: m, Collectors: &collect.Factory{}}
	return &testServer{t: t, e: New(app), app: app}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) decode(rec *httptest.ResponseRecorder, out any) {
	s.t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		s.t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func (s *testServer) openSession(query string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/sessions", `{"query":"`+query+`"}`)
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("POST /api/sessions = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var state common.SessionState
	s.decode(rec, &state)
	if state.ID == "" || state.Query != query {
		s.t.Fatalf("created session = %+v", state)
	}
	return state.ID
}

const corroborated = `{"evidence":[
	{"id":"e1","url":"https://news.example.com/a","excerpt":"X funds Y."},
	{"id":"e2","url":"https://wire.example.org/b","excerpt":"Y supplies Z."}
]}`

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(http.MethodGet, "/health", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession("Who funds Y?")
	base := "/api/sessions/" + id

	rec := s.do(http.MethodPost, base+"/evidence", corroborated)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST evidence = %d: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Version        int      `json:"version"`
		PathCount      int      `json:"path_count"`
		NewPaths       []string `json:"new_paths"`
		FailedEvidence []string `json:"failed_evidence"`
	}
	s.decode(rec, &report)
	if report.Version != 1 || report.PathCount != 1 || len(report.NewPaths) != 1 || len(report.FailedEvidence) != 0 {
		t.Errorf("batch report = %+v", report)
	}

	rec = s.do(http.MethodGet, base+"/paths", "")
	var paths struct {
		Paths                []common.Path `json:"paths"`
		InsufficientEvidence bool          `json:"insufficient_evidence"`
	}
	s.decode(rec, &paths)
	if len(paths.Paths) != 1 || paths.InsufficientEvidence {
		t.Fatalf("GET paths = %+v", paths)
	}
	if p := paths.Paths[0]; p.Confidence != 60 || p.Status != common.StatusActive {
		t.Errorf("path = %v %v, want 60 active", p.Confidence, p.Status)
	}

	rec = s.do(http.MethodGet, base+"/paths/"+paths.Paths[0].ID, "")
	var sel graph.SelectionResult
	s.decode(rec, &sel)
	if rec.Code != http.StatusOK || len(sel.Nodes) != 5 {
		t.Errorf("GET path = %d with %d nodes, want 200 and 5", rec.Code, len(sel.Nodes))
	}

	rec = s.do(http.MethodGet, base, "")
	var state common.SessionState
	s.decode(rec, &state)
	var nodeY string
	for _, n := range state.Graph.Nodes {
		if n.Label == "Y" {
			nodeY = n.ID
		}
	}
	if nodeY == "" {
		t.Fatalf("node Y missing from %+v", state.Graph.Nodes)
	}

	rec = s.do(http.MethodGet, base+"/nodes/"+nodeY, "")
	var node struct {
		Node  common.Node   `json:"node"`
		Edges []common.Edge `json:"edges"`
	}
	s.decode(rec, &node)
	if node.Node.Label != "Y" || len(node.Edges) != 4 {
		t.Errorf("GET node = %s with %d edges, want Y with 4", node.Node.Label, len(node.Edges))
	}

	edgeID := node.Edges[0].ID
	if rec := s.do(http.MethodGet, base+"/edge?ref="+edgeID, ""); rec.Code != http.StatusOK {
		t.Errorf("GET edge = %d, want 200", rec.Code)
	}

	rec = s.do(http.MethodPost, base+"/selection", `{"kind":"node","ref":"`+nodeY+`"}`)
	s.decode(rec, &sel)
	if rec.Code != http.StatusOK || sel.Node == nil || len(sel.Edges) != 4 {
		t.Errorf("POST selection = %d %+v", rec.Code, sel)
	}

	rec = s.do(http.MethodGet, base+"/briefing", "")
	var b common.Briefing
	s.decode(rec, &b)
	if b.LowConfidence || len(b.PathReferences) == 0 {
		t.Errorf("briefing = %+v, want path references", b)
	}

	rec = s.do(http.MethodGet, base+"/sources", "")
	var sources struct {
		Sources []graph.SourceEntry `json:"sources"`
	}
	s.decode(rec, &sources)
	if len(sources.Sources) != 2 {
		t.Errorf("GET sources = %d entries, want 2", len(sources.Sources))
	}

	if rec := s.do(http.MethodGet, base+"/timeline", ""); rec.Code != http.StatusOK {
		t.Errorf("GET timeline = %d, want 200", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/sessions", "")
	var list struct {
		Sessions []string `json:"sessions"`
	}
	s.decode(rec, &list)
	if len(list.Sessions) != 1 || list.Sessions[0] != id {
		t.Errorf("GET sessions = %v, want [%s]", list.Sessions, id)
	}

	if rec := s.do(http.MethodDelete, base, ""); rec.Code != http.StatusOK {
		t.Fatalf("DELETE session = %d, want 200", rec.Code)
	}
	if rec := s.do(http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted session = %d, want 404", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession("q")
	base := "/api/sessions/" + id

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"missing query", http.MethodPost, "/api/sessions", `{}`, http.StatusBadRequest},
		{"empty evidence", http.MethodPost, base + "/evidence", `{"evidence":[]}`, http.StatusBadRequest},
		{"evidence without id", http.MethodPost, base + "/evidence", `{"evidence":[{"excerpt":"X funds Y."}]}`, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/nope/paths", "", http.StatusNotFound},
		{"unknown node", http.MethodGet, base + "/nodes/nope", "", http.StatusNotFound},
		{"unknown path", http.MethodGet, base + "/paths/path-9", "", http.StatusNotFound},
		{"edge without ref", http.MethodGet, base + "/edge", "", http.StatusBadRequest},
		{"bad selection kind", http.MethodPost, base + "/selection", `{"kind":"cluster","ref":"x"}`, http.StatusBadRequest},
		{"selection without ref", http.MethodPost, base + "/selection", `{"kind":"node"}`, http.StatusBadRequest},
		{"merge without drop", http.MethodPost, base + "/merge", `{"keep":"a"}`, http.StatusBadRequest},
		{"merge unknown node", http.MethodPost, base + "/merge", `{"keep":"a","drop":["b"]}`, http.StatusNotFound},
		{"unknown collector", http.MethodPost, base + "/run", `{"collector":{"kind":"ftp"}}`, http.StatusBadRequest},
		{"bad collect timeout", http.MethodPost, base + "/run", `{"collector":{"kind":"demo"},"collect_timeout":"soon"}`, http.StatusBadRequest},
		{"s3 without bucket", http.MethodPost, base + "/run", `{"collector":{"kind":"s3"}}`, http.StatusServiceUnavailable},
		{"async without queue", http.MethodPost, base + "/evidence", `{"evidence":[{"id":"e1","excerpt":"X funds Y."}],"async":true}`, http.StatusServiceUnavailable},
		{"export without s3", http.MethodPost, base + "/export", "", http.StatusServiceUnavailable},
		{"close unknown", http.MethodPost, "/api/sessions/nope/close", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d: %s", tt.method, tt.target, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestClosedSessionRejectsChanges(t *testing.T) {
	s := newTestServer(t)
	s.app.Queue = &fakeChannel{}
	id := s.openSession("Who funds Y?")
	base := "/api/sessions/" + id

	if rec := s.do(http.MethodPost, base+"/close", ""); rec.Code != http.StatusOK {
		t.Fatalf("POST close = %d: %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"evidence", base + "/evidence", corroborated},
		{"queued evidence", base + "/evidence", `{"evidence":[{"id":"e1","excerpt":"X funds Y."}],"async":true}`},
		{"run", base + "/run", `{"collector":{"kind":"demo"}}`},
		{"queued run", base + "/run", `{"collector":{"kind":"demo"},"async":true}`},
		{"merge", base + "/merge", `{"keep":"a","drop":["b"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(http.MethodPost, tt.target, tt.body); rec.Code != http.StatusConflict {
				t.Errorf("POST %s = %d, want %d: %s", tt.target, rec.Code, http.StatusConflict, rec.Body.String())
			}
		})
	}

	rec := s.do(http.MethodGet, base, "")
	var state common.SessionState
	s.decode(rec, &state)
	if rec.Code != http.StatusOK || !state.Closed || state.Version != 1 {
		t.Errorf("GET closed session = %d, closed %v, version %d", rec.Code, state.Closed, state.Version)
	}
	if rec := s.do(http.MethodGet, base+"/paths", ""); rec.Code != http.StatusOK {
		t.Errorf("GET paths = %d, want 200", rec.Code)
	}
}

func TestRunDemoCollector(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession("Who is behind Harbor Line?")

	rec := s.do(http.MethodPost, "/api/sessions/"+id+"/run", `{"collector":{"kind":"demo","batch_size":2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST run = %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Version         int                  `json:"version"`
		Batches         []*graph.BatchReport `json:"batches"`
		CollectTimedOut bool                 `json:"collect_timed_out"`
	}
	s.decode(rec, &res)
	if len(res.Batches) == 0 || res.Version != len(res.Batches) || res.CollectTimedOut {
		t.Errorf("run = version %d, %d batches, timed out %v", res.Version, len(res.Batches), res.CollectTimedOut)
	}

	rec = s.do(http.MethodGet, "/api/sessions/"+id+"/paths?show_dead=true", "")
	var paths struct {
		Paths []common.Path `json:"paths"`
	}
	s.decode(rec, &paths)
	if len(paths.Paths) != 2 {
		t.Errorf("GET paths = %d, want 2", len(paths.Paths))
	}
}

func TestAsyncRequestsAreQueued(t *testing.T) {
	s := newTestServer(t)
	ch := &fakeChannel{}
	s.app.Queue = ch
	id := s.openSession("q")

	rec := s.do(http.MethodPost, "/api/sessions/"+id+"/evidence", `{"evidence":[{"id":"e1","excerpt":"X funds Y."}],"async":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST evidence = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var queued struct {
		CorrelationID string `json:"correlation_id"`
	}
	s.decode(rec, &queued)

	rec = s.do(http.MethodPost, "/api/sessions/"+id+"/run", `{"collector":{"kind":"demo"},"async":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST run = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	if len(ch.published[queue.EvidenceQueue]) != 1 || len(ch.published[queue.CollectQueue]) != 1 {
		t.Fatalf("published = %v", ch.published)
	}
	var msg queue.EvidenceMsg
	if err := json.Unmarshal(ch.published[queue.EvidenceQueue][0], &msg); err != nil {
		t.Fatalf("failed to decode queued message: %v", err)
	}
	if msg.SessionID != id || msg.CorrelationID != queued.CorrelationID || len(msg.Evidence) != 1 {
		t.Errorf("queued message = %+v", msg)
	}

	// queued work is not applied inline
	rec = s.do(http.MethodGet, "/api/sessions/"+id, "")
	var state common.SessionState
	s.decode(rec, &state)
	if state.Version != 0 {
		t.Errorf("version = %d, want 0", state.Version)
	}
}
