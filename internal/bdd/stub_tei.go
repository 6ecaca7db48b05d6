// Package bdd runs the godog feature files against an in-process agent memory server.
package bdd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/misteriosai/agent-memory/internal/plugin/embed/local"
)

// StubTEI is a text-embeddings-inference stand-in. It embeds with the local
// hashing embedder so similarity is deterministic, and can be switched off.
type StubTEI struct {
	Server   *httptest.Server
	calls    atomic.Int64
	down     atomic.Bool
	embedder *local.LocalEmbedder
}

// NewStubTEI starts a stub producing vectors of the given dimension.
func NewStubTEI(t *testing.T, dimension int) *StubTEI {
	t.Helper()
	stub := &StubTEI{embedder: local.New(dimension)}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.Server.Close)
	return stub
}

// SetDown makes every following request fail with 503 when down is true.
func (s *StubTEI) SetDown(down bool) { s.down.Store(down) }

// Calls returns the number of /embed requests served since the last Reset.
func (s *StubTEI) Calls() int64 { return s.calls.Load() }

// Reset brings the stub back up and zeroes the call counter.
func (s *StubTEI) Reset() {
	s.down.Store(false)
	s.calls.Store(0)
}

func (s *StubTEI) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/embed" {
		http.NotFound(w, r)
		return
	}
	s.calls.Add(1)
	if s.down.Load() {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Inputs []string `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	vectors, err := s.embedder.EmbedTexts(r.Context(), req.Inputs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": vectors})
}
