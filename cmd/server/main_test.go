package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"radiowave/internal/nowplaying"
)

func TestResolveListenAddr(t *testing.T) {
	t.Setenv("RADIOWAVE_ADDR", "")
	os.Unsetenv("RADIOWAVE_ADDR")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	if got := resolveListenAddr(""); got != ":8000" {
		t.Fatalf("expected default :8000, got %q", got)
	}

	t.Setenv("PORT", "5050")
	if got := resolveListenAddr(""); got != ":5050" {
		t.Fatalf("expected PORT to win, got %q", got)
	}

	t.Setenv("RADIOWAVE_ADDR", "0.0.0.0:9090")
	if got := resolveListenAddr(""); got != "0.0.0.0:9090" {
		t.Fatalf("expected RADIOWAVE_ADDR to override PORT, got %q", got)
	}

	if got := resolveListenAddr("127.0.0.1:3000"); got != "127.0.0.1:3000" {
		t.Fatalf("expected flag to win, got %q", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "value", "other"); got != "value" {
		t.Fatalf("unexpected result %q", got)
	}
	if got := firstNonEmpty("", "  "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example.com , ,https://b.example.com ")
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected result %v", got)
	}
	if got := splitAndTrim("  "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestResolveDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "")
	os.Unsetenv("TEST_DURATION")

	if got := resolveDuration(5*time.Second, "TEST_DURATION", time.Minute); got != 5*time.Second {
		t.Fatalf("expected flag value, got %s", got)
	}
	if got := resolveDuration(0, "TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	t.Setenv("TEST_DURATION", "30s")
	if got := resolveDuration(0, "TEST_DURATION", time.Minute); got != 30*time.Second {
		t.Fatalf("expected env value, got %s", got)
	}
}

func TestOpenStoreDefaultsToJSON(t *testing.T) {
	t.Setenv("RADIOWAVE_POSTGRES_DSN", "")
	os.Unsetenv("RADIOWAVE_POSTGRES_DSN")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	store, err := openStore(storeSettings{dataPath: filepath.Join(t.TempDir(), "radiowave.json")})
	if err != nil {
		t.Fatalf("openStore returned error: %v", err)
	}
	if store == nil {
		t.Fatal("expected store instance")
	}
}

func TestOpenStoreRejectsPostgresWithoutDSN(t *testing.T) {
	t.Setenv("RADIOWAVE_POSTGRES_DSN", "")
	os.Unsetenv("RADIOWAVE_POSTGRES_DSN")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	if _, err := openStore(storeSettings{driver: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without DSN")
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := openStore(storeSettings{driver: "sqlite"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestConfigureEventQueue(t *testing.T) {
	queue, err := configureEventQueue("", nowplaying.RedisQueueConfig{})
	if err != nil {
		t.Fatalf("configureEventQueue returned error: %v", err)
	}
	if queue == nil {
		t.Fatal("expected memory queue by default")
	}

	if _, err := configureEventQueue("kafka", nowplaying.RedisQueueConfig{}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
