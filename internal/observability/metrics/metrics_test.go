package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestExposition(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/status/", http.StatusOK, 50*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/status", http.StatusOK, 25*time.Millisecond)

	var out strings.Builder
	recorder.Write(&out)
	body := out.String()

	if !strings.Contains(body, `radiowave_http_requests_total{method="GET",path="/api/status",status="200"} 2`) {
		t.Fatalf("expected normalized request counter, got:\n%s", body)
	}
	if !strings.Contains(body, "radiowave_http_request_duration_seconds_sum") {
		t.Fatalf("missing duration metric:\n%s", body)
	}
}

func TestPlaybackGauge(t *testing.T) {
	recorder := New()
	recorder.PlaybackStarted()
	recorder.PlaybackStarted()
	recorder.PlaybackStopped()

	if got := recorder.ActiveFeeds(); got != 1 {
		t.Fatalf("expected 1 active feed, got %d", got)
	}

	// The gauge never goes negative even with unbalanced stops.
	recorder.PlaybackStopped()
	recorder.PlaybackStopped()
	if got := recorder.ActiveFeeds(); got != 0 {
		t.Fatalf("expected 0 active feeds, got %d", got)
	}
}

func TestIcecastHealthValues(t *testing.T) {
	recorder := New()
	recorder.SetIcecastHealth("Icecast", "OK")
	recorder.SetIcecastHealth("encoder", "error")
	recorder.SetIcecastHealth("store", "disabled")

	var out strings.Builder
	recorder.Write(&out)
	body := out.String()

	for _, want := range []string{
		`radiowave_icecast_health{component="icecast",status="ok"} 1`,
		`radiowave_icecast_health{component="encoder",status="error"} -1`,
		`radiowave_icecast_health{component="store",status="disabled"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestCatalogCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveCatalogAttempt("search")
	recorder.ObserveCatalogAttempt("search")
	recorder.ObserveCatalogFailure("search")

	attempts, failures := recorder.CatalogCounts()
	if attempts["search"] != 2 || failures["search"] != 1 {
		t.Fatalf("unexpected counts attempts=%v failures=%v", attempts, failures)
	}
}

func TestFeedCounters(t *testing.T) {
	recorder := New()
	recorder.FeedStarted("live")
	recorder.FeedCompleted("live")
	recorder.FeedFailed("live")

	events := recorder.FeedCounts()
	if events[FeedJobLabel{Kind: "live", Status: "start"}] != 1 {
		t.Fatalf("unexpected feed events %v", events)
	}
	if events[FeedJobLabel{Kind: "live", Status: "fail"}] != 1 {
		t.Fatalf("unexpected feed events %v", events)
	}
}

func TestHandlerContentType(t *testing.T) {
	recorder := New()
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "radiowave_active_feeds") {
		t.Fatalf("missing gauge in response:\n%s", rec.Body.String())
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/play", nil))

	var out strings.Builder
	recorder.Write(&out)
	if !strings.Contains(out.String(), `status="409"`) {
		t.Fatalf("expected 409 recorded:\n%s", out.String())
	}
}
