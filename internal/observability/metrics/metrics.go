package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// FeedJobLabel identifies an encoder feed event by kind and outcome.
type FeedJobLabel struct {
	Kind   string
	Status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, playback lifecycle events, encoder feed jobs, catalog lookups,
// and streaming-server health. It coordinates concurrent writers via a
// RWMutex while exposing a thread-safe gauge for the live feed.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	playbackEvents  map[string]uint64
	icecastValue    map[string]float64
	icecastState    map[string]string
	catalogAttempts map[string]uint64
	catalogFailures map[string]uint64
	feedEvents      map[FeedJobLabel]uint64
	activeFeeds     atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		playbackEvents:  make(map[string]uint64),
		icecastValue:    make(map[string]float64),
		icecastState:    make(map[string]string),
		catalogAttempts: make(map[string]uint64),
		catalogFailures: make(map[string]uint64),
		feedEvents:      make(map[FeedJobLabel]uint64),
	}
}

// Default returns the singleton Recorder shared across packages that do not
// require a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// PlaybackStarted records a play lifecycle event and increments the active
// feed gauge atomically.
func (r *Recorder) PlaybackStarted() {
	r.incrementPlaybackEvent("play")
	r.activeFeeds.Add(1)
}

// PlaybackStopped records a stop lifecycle event and decrements the active
// feed gauge, guarding against negative counts when concurrent updates race.
func (r *Recorder) PlaybackStopped() {
	r.incrementPlaybackEvent("stop")
	r.decrementGauge(&r.activeFeeds)
}

func (r *Recorder) incrementPlaybackEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.playbackEvents[normalized]++
	r.mu.Unlock()
}

// ObserveCatalogAttempt records a catalog operation attempt keyed by
// operation name (e.g., "search", "resolve").
func (r *Recorder) ObserveCatalogAttempt(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.catalogAttempts[op]++
	r.mu.Unlock()
}

// ObserveCatalogFailure records a failed catalog operation keyed by operation
// name. The caller should also record the attempt separately.
func (r *Recorder) ObserveCatalogFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.catalogFailures[op]++
	r.mu.Unlock()
}

// SetIcecastHealth normalizes the component identifier, maps status strings
// to numeric health values, and stores both representations for export.
func (r *Recorder) SetIcecastHealth(component, status string) {
	normalizedComponent := normalizeName(component)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.icecastValue[normalizedComponent] = value
	r.icecastState[normalizedComponent] = normalizedStatus
	r.mu.Unlock()
}

// FeedStarted records the beginning of an encoder feed of the provided kind
// (e.g., "live" or "fallback").
func (r *Recorder) FeedStarted(kind string) {
	r.recordFeedEvent(kind, "start")
}

// FeedCompleted records a feed that exited cleanly.
func (r *Recorder) FeedCompleted(kind string) {
	r.recordFeedEvent(kind, "complete")
}

// FeedFailed records a feed that exited with an error.
func (r *Recorder) FeedFailed(kind string) {
	r.recordFeedEvent(kind, "fail")
}

func (r *Recorder) recordFeedEvent(kind, status string) {
	label := FeedJobLabel{
		Kind:   normalizeName(kind),
		Status: normalizeName(status),
	}
	r.mu.Lock()
	r.feedEvents[label]++
	r.mu.Unlock()
}

// ActiveFeeds exposes the current gauge of concurrently active feeds.
func (r *Recorder) ActiveFeeds() int64 {
	return r.activeFeeds.Load()
}

// CatalogCounts returns copies of catalog attempt and failure counters for
// testing and reporting purposes.
func (r *Recorder) CatalogCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.catalogAttempts))
	for k, v := range r.catalogAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.catalogFailures))
	for k, v := range r.catalogFailures {
		failures[k] = v
	}
	return attempts, failures
}

// FeedCounts returns copies of feed event counters.
func (r *Recorder) FeedCounts() map[FeedJobLabel]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make(map[FeedJobLabel]uint64, len(r.feedEvents))
	for k, v := range r.feedEvents {
		events[k] = v
	}
	return events
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.playbackEvents = make(map[string]uint64)
	r.icecastValue = make(map[string]float64)
	r.icecastState = make(map[string]string)
	r.catalogAttempts = make(map[string]uint64)
	r.catalogFailures = make(map[string]uint64)
	r.feedEvents = make(map[FeedJobLabel]uint64)
	r.activeFeeds.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	playbackEvents := sortedKeys(r.playbackEvents)
	icecastComponents := sortedFloatKeys(r.icecastValue)
	catalogOperations := sortedKeys(r.catalogAttempts)
	feedLabels := r.sortedFeedLabels()

	fmt.Fprintln(w, "# HELP radiowave_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE radiowave_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "radiowave_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP radiowave_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE radiowave_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "radiowave_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP radiowave_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE radiowave_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "radiowave_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP radiowave_playback_events_total Playback lifecycle events by type")
	fmt.Fprintln(w, "# TYPE radiowave_playback_events_total counter")
	for _, event := range playbackEvents {
		value := r.playbackEvents[event]
		fmt.Fprintf(w, "radiowave_playback_events_total{event=\"%s\"} %d\n", event, value)
	}

	fmt.Fprintln(w, "# HELP radiowave_active_feeds Current number of feeds pushing audio to the streaming server")
	fmt.Fprintln(w, "# TYPE radiowave_active_feeds gauge")
	fmt.Fprintf(w, "radiowave_active_feeds %d\n", r.activeFeeds.Load())

	fmt.Fprintln(w, "# HELP radiowave_icecast_health Health reported by streaming-server dependencies (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE radiowave_icecast_health gauge")
	for _, component := range icecastComponents {
		value := r.icecastValue[component]
		status := r.icecastState[component]
		fmt.Fprintf(w, "radiowave_icecast_health{component=\"%s\",status=\"%s\"} %f\n", component, status, value)
	}

	fmt.Fprintln(w, "# HELP radiowave_catalog_attempts_total Total catalog operations attempted by action")
	fmt.Fprintln(w, "# TYPE radiowave_catalog_attempts_total counter")
	for _, op := range catalogOperations {
		count := r.catalogAttempts[op]
		fmt.Fprintf(w, "radiowave_catalog_attempts_total{operation=\"%s\"} %d\n", op, count)
	}

	fmt.Fprintln(w, "# HELP radiowave_catalog_failures_total Total catalog operation failures by action")
	fmt.Fprintln(w, "# TYPE radiowave_catalog_failures_total counter")
	for _, op := range catalogOperations {
		count := r.catalogFailures[op]
		fmt.Fprintf(w, "radiowave_catalog_failures_total{operation=\"%s\"} %d\n", op, count)
	}

	fmt.Fprintln(w, "# HELP radiowave_feed_jobs_total Encoder feed events by kind and status")
	fmt.Fprintln(w, "# TYPE radiowave_feed_jobs_total counter")
	for _, label := range feedLabels {
		count := r.feedEvents[label]
		fmt.Fprintf(w, "radiowave_feed_jobs_total{kind=\"%s\",status=\"%s\"} %d\n", label.Kind, label.Status, count)
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedFeedLabels() []FeedJobLabel {
	labels := make([]FeedJobLabel, 0, len(r.feedEvents))
	for label := range r.feedEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
		if trimmed == "" {
			trimmed = "/"
		}
	}
	return trimmed
}
