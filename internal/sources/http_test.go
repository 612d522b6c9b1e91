package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func newTestTransport(t *testing.T, handler http.HandlerFunc, retries int) (*httpJSON, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	h, err := newHTTPJSON("test", config.SourceConfig{
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("newHTTPJSON: %v", err)
	}
	rec := &sleepRecorder{}
	h.sleep = rec.sleep
	return h, rec
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	h, rec := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, 3)

	var out struct{ OK bool }
	if err := h.getJSON(context.Background(), "/x", nil, &out); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if !out.OK {
		t.Error("expected decoded body")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(rec.calls) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(rec.calls))
	}
	// Second backoff doubles the first, within jitter.
	if rec.calls[0] < 80*time.Millisecond || rec.calls[0] > 120*time.Millisecond {
		t.Errorf("first backoff = %v", rec.calls[0])
	}
	if rec.calls[1] < 160*time.Millisecond || rec.calls[1] > 240*time.Millisecond {
		t.Errorf("second backoff = %v", rec.calls[1])
	}
}

func TestGetJSONGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	h, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 2)

	err := h.getJSON(context.Background(), "/x", nil, &struct{}{})
	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway || se.Permanent {
		t.Errorf("unexpected error %+v", se)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGetJSONPermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name:    "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "bad", http.StatusBadRequest) },
			check:   func(err error) bool { return !errors.Is(err, models.ErrNotFound) },
		},
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			check:   func(err error) bool { return errors.Is(err, models.ErrNotFound) },
		},
		{
			name:    "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"total":`)) },
			check:   func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			h, rec := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}, 3)

			err := h.getJSON(context.Background(), "/x", nil, &struct{}{})
			var se *SourceError
			if !errors.As(err, &se) || !se.Permanent {
				t.Fatalf("expected permanent SourceError, got %v", err)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error chain: %v", err)
			}
			if calls.Load() != 1 || len(rec.calls) != 0 {
				t.Errorf("calls = %d sleeps = %d, want 1 and 0", calls.Load(), len(rec.calls))
			}
		})
	}
}

func TestGetJSONHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	h, rec := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}, 1)
	h.cfg.MaxBackoff = 10 * time.Second

	if err := h.getJSON(context.Background(), "/x", nil, &struct{}{}); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("sleeps = %d, want 1", len(rec.calls))
	}
	if rec.calls[0] < 800*time.Millisecond || rec.calls[0] > 1200*time.Millisecond {
		t.Errorf("sleep = %v, want about 1s", rec.calls[0])
	}
}

func TestGetJSONDoesNotRetryCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	h, rec := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 3)

	err := h.getJSON(ctx, "/x", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 || len(rec.calls) != 0 {
		t.Errorf("calls = %d sleeps = %d, want 1 and 0", calls.Load(), len(rec.calls))
	}
}

func TestNewHTTPJSONRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := newHTTPJSON("x", config.SourceConfig{BaseURL: raw}, nil); err == nil {
			t.Errorf("base_url %q: expected error", raw)
		}
	}
}

func TestParseUpstreamDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2021-03-15", "2021-03-15", true},
		{"15.03.2021", "2021-03-15", true},
		{"2021-03-15T10:00:00Z", "2021-03-15", true},
		{"March 2021", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := parseUpstreamDate(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseUpstreamDate(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && models.FormatDate(got) != tt.want {
			t.Errorf("parseUpstreamDate(%q) = %s, want %s", tt.in, models.FormatDate(got), tt.want)
		}
	}
}

func TestNativeID(t *testing.T) {
	if got, err := nativeID("BG", "BG-6B_1/2021"); err != nil || got != "6B_1/2021" {
		t.Errorf("nativeID = %q, %v", got, err)
	}
	for _, id := range []string{"ZH-1", "BG-", "BG"} {
		if _, err := nativeID("BG", id); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("nativeID(%q) err = %v, want invalid input", id, err)
		}
	}
}
