package updates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	cases := []struct {
		latest, current string
		want            bool
	}{
		{"1.0.1", "1.0.0", true},
		{"1.1", "1.0.9", true},
		{"2.0.0", "1.9.9", true},
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "1.0.1", false},
		{"1.0", "1.0.0", false},
		{"1.0.0", "1.0", false},
		{"1.0.0", "1.0.0-rc1", true},
		{"1.0.0-rc2", "1.0.0", false},
		{"1.0.1-rc1", "1.0.0", true},
		{"", "1.0.0", false},
		{"1.0.0", "", true},
	}
	for _, tc := range cases {
		if got := IsNewerVersion(tc.latest, tc.current); got != tc.want {
			t.Errorf("IsNewerVersion(%q, %q) = %v, want %v", tc.latest, tc.current, got, tc.want)
		}
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v1.2.0"}`))
	}))
	defer srv.Close()

	c := NewChecker("1.0.0")
	c.apiURL = srv.URL

	if got := c.Check(context.Background()); got != "1.2.0" {
		t.Fatalf("Check = %q, want 1.2.0", got)
	}

	// second check within the cache window must not hit the API again
	if got := c.Check(context.Background()); got != "1.2.0" {
		t.Fatalf("cached Check = %q, want 1.2.0", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("API hits = %d, want 1", hits.Load())
	}
}

func TestCheckUpToDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v1.0.0"}`))
	}))
	defer srv.Close()

	c := NewChecker("1.0.0")
	c.apiURL = srv.URL
	if got := c.Check(context.Background()); got != "" {
		t.Fatalf("Check = %q, want empty when current", got)
	}
}

func TestCheckSwallowsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewChecker("1.0.0")
	c.apiURL = srv.URL
	if got := c.Check(context.Background()); got != "" {
		t.Fatalf("Check = %q, want empty on API failure", got)
	}
}

func TestRunRejectsBadCron(t *testing.T) {
	c := NewChecker("1.0.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, "not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
