// Package testutil provides shared test doubles for external services.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockLogServer mocks a justlog-compatible log server. Register canned
// bodies per URL path; unregistered paths return 404, which clients map to
// the no-data outcome.
type MockLogServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockLogServer creates a new mock log server tied to the test lifecycle.
func NewMockLogServer(t *testing.T) *MockLogServer {
	t.Helper()
	m := &MockLogServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockDay serves a raw log body for one channel day path, e.g.
// "/channel/somechannel/2024/3/10".
func (m *MockLogServer) MockDay(path, raw string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(raw))
	}
}

// MockError serves a fixed status code for one path.
func (m *MockLogServer) MockError(path string, status int) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(status), status)
	}
}
