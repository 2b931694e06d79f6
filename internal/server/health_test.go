package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/54b3r/raggate-go/internal/embedder"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// fakeHealth is a provider.HealthChecker double.
type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer(&fakeAsker{})
	s.pingers = pingers
	return s
}

func decodeReady(t *testing.T, w *httptest.ResponseRecorder) readyResponse {
	t.Helper()
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAsker{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	before := time.Now().UTC().Add(-time.Second)
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status: expected %q, got %q", "healthy", body.Status)
	}
	if body.Timestamp.Before(before) {
		t.Errorf("timestamp %v is stale", body.Timestamp)
	}
}

func TestHandleRoot(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAsker{})
	s.cfg.Version = "1.2.3"
	w := httptest.NewRecorder()

	s.handleRoot(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body rootResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "RAG LLM Microservice" || body.Version != "1.2.3" {
		t.Errorf("unexpected root body %+v", body)
	}
}

func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer()
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	resp := decodeReady(t, w)
	if !resp.Ready {
		t.Errorf("expected ready:true with no pingers")
	}
	if len(resp.Checks) != 0 {
		t.Errorf("expected 0 checks, got %d", len(resp.Checks))
	}
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "ollama"},
		&fakePinger{name: "qdrant"},
		&fakePinger{name: "audit-db"},
	)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	resp := decodeReady(t, w)
	if !resp.Ready {
		t.Errorf("expected ready:true")
	}
	want := []string{"ollama", "qdrant", "audit-db"}
	if len(resp.Checks) != len(want) {
		t.Fatalf("expected %d checks, got %d", len(want), len(resp.Checks))
	}
	for i, c := range resp.Checks {
		if c.Name != want[i] {
			t.Errorf("check %d: expected %q, got %q", i, want[i], c.Name)
		}
		if !c.OK || c.Error != "" {
			t.Errorf("check %q: expected ok with no error, got %+v", c.Name, c)
		}
	}
}

func TestHandleReady_OneFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "ollama"},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	resp := decodeReady(t, w)
	if resp.Ready {
		t.Errorf("expected ready:false")
	}
	if !resp.Checks[0].OK {
		t.Errorf("ollama check: expected ok:true")
	}
	if resp.Checks[1].OK || resp.Checks[1].Error == "" {
		t.Errorf("qdrant check: expected failure with error, got %+v", resp.Checks[1])
	}
}

func TestLLMPinger(t *testing.T) {
	t.Parallel()

	ok := NewLLMPinger(fakeHealth{}, "ollama")
	if ok.Name() != "ollama" {
		t.Errorf("name: got %q", ok.Name())
	}
	if err := ok.Ping(t.Context()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	down := errors.New("connection refused")
	bad := NewLLMPinger(fakeHealth{err: down}, "ollama")
	if err := bad.Ping(t.Context()); !errors.Is(err, down) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestEmbedderPinger(t *testing.T) {
	t.Parallel()

	hash, err := embedder.NewHashEmbedder(16)
	if err != nil {
		t.Fatalf("hash embedder: %v", err)
	}
	emb := embedder.NewChecked(hash, 16)
	p := NewEmbedderPinger(emb, emb.Name())
	if err := p.Ping(t.Context()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	wrongDim := embedder.NewChecked(hash, 32)
	if err := NewEmbedderPinger(wrongDim, "hash").Ping(t.Context()); !errors.Is(err, embedder.ErrDimension) {
		t.Errorf("expected ErrDimension, got %v", err)
	}
}
