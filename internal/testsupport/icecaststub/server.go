package icecaststub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Options describes how the fake streaming server should behave.
type Options struct {
	// ServerID is returned in the status document.
	ServerID string

	// Sources are the mounted streams reported as live.
	Sources []Source

	// FailProbes causes the first N status requests to return HTTP 503.
	// Subsequent requests succeed.
	FailProbes int
}

// Source mirrors one entry of the icestats source listing.
type Source struct {
	Mount     string `json:"listenurl"`
	Listeners int    `json:"listeners"`
}

// Server hosts a single httptest.Server answering status-json.xsl requests.
type Server struct {
	server *httptest.Server
	opts   Options

	mu       sync.Mutex
	requests int
	failures int
}

// Start spins up a new status stub using the provided options.
func Start(opts Options) *Server {
	if opts.ServerID == "" {
		opts.ServerID = "Icecast 2.4.4"
	}
	s := &Server{opts: opts}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close shuts down the underlying HTTP server.
func (s *Server) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// URL returns the base URL of the stub.
func (s *Server) URL() string {
	return s.server.URL
}

// StatusURL returns the full status-json.xsl endpoint.
func (s *Server) StatusURL() string {
	return s.server.URL + "/status-json.xsl"
}

// Requests reports how many status requests the stub has served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	fail := s.failures < s.opts.FailProbes
	if fail {
		s.failures++
	}
	s.mu.Unlock()

	if fail {
		http.Error(w, "starting up", http.StatusServiceUnavailable)
		return
	}

	sources := make([]map[string]interface{}, 0, len(s.opts.Sources))
	for _, source := range s.opts.Sources {
		sources = append(sources, map[string]interface{}{
			"listenurl": source.Mount,
			"listeners": source.Listeners,
		})
	}
	payload := map[string]interface{}{
		"icestats": map[string]interface{}{
			"server_id": s.opts.ServerID,
			"source":    sources,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
