package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

const maxResponseBytes = 16 << 20

// httpJSON is the retrying JSON-over-HTTP transport shared by all sources.
type httpJSON struct {
	source  string
	baseURL string
	client  *http.Client
	cfg     config.SourceConfig
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func newHTTPJSON(source string, cfg config.SourceConfig, log *zap.Logger) (*httpJSON, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source %s: invalid base_url %q", source, cfg.BaseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &httpJSON{
		source:  source,
		baseURL: strings.TrimRight(u.String(), "/"),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cfg:     cfg,
		log:     log.With(zap.String("source", source)),
		sleep:   sleepCtx,
	}, nil
}

// getJSON issues GET base+path?params and decodes the body into out. Transient
// failures are retried with exponential backoff and jitter, honouring Retry-After,
// up to cfg.MaxRetries extra attempts. Cancellation of ctx is never retried.
func (h *httpJSON) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	target := h.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	backoff := h.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &SourceError{Source: h.source, Err: err}
		}

		retryAfter, err := h.doOnce(ctx, target, out)
		if err == nil {
			return nil
		}
		if !isRetryable(ctx, err) || attempt >= h.cfg.MaxRetries {
			return err
		}

		sleepFor := backoff
		if retryAfter > 0 {
			sleepFor = retryAfter
		}
		if h.cfg.MaxBackoff > 0 && sleepFor > h.cfg.MaxBackoff {
			sleepFor = h.cfg.MaxBackoff
		}
		sleepFor = jitter(sleepFor)

		h.log.Warn("source request retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", h.cfg.MaxRetries),
			zap.Duration("sleep", sleepFor),
			zap.Error(err),
		)
		if err := h.sleep(ctx, sleepFor); err != nil {
			return &SourceError{Source: h.source, Err: err}
		}
		backoff *= 2
	}
}

// doOnce performs a single attempt bounded by the per-attempt timeout. It returns
// the server's Retry-After hint, if any, alongside the error.
func (h *httpJSON) doOnce(ctx context.Context, target string, out any) (time.Duration, error) {
	attemptCtx := ctx
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, &SourceError{Source: h.source, Permanent: true, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, &SourceError{Source: h.source, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, &SourceError{Source: h.source, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512] + "..."
		}
		var cause error = errors.New(msg)
		if resp.StatusCode == http.StatusNotFound {
			cause = fmt.Errorf("%s: %w", msg, models.ErrNotFound)
		}
		return retryAfterDuration(resp), &SourceError{
			Source:     h.source,
			StatusCode: resp.StatusCode,
			Permanent:  !isRetryableStatus(resp.StatusCode),
			Err:        cause,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return 0, &SourceError{
			Source:     h.source,
			StatusCode: resp.StatusCode,
			Permanent:  true,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	return 0, nil
}

func isRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// isRetryable reports whether err is transient. Errors caused by the caller's own
// context are not, even when they surface as timeouts.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *SourceError
	if errors.As(err, &se) {
		return !se.Permanent
	}
	return false
}

func retryAfterDuration(resp *http.Response) time.Duration {
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// jitter spreads d by ±20%.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := float64(d) * 0.2
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nativeID strips the source prefix from a canonical id.
func nativeID(prefix, id string) (string, error) {
	native, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || native == "" {
		return "", models.NewValidationError("decision_id", "%q does not belong to source %s", id, prefix)
	}
	return native, nil
}

// parseUpstreamDate accepts ISO dates and the Swiss DD.MM.YYYY form.
func parseUpstreamDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{models.DateLayout, "02.01.2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// upstreamLanguage maps a source language tag, falling back to the configured default.
func upstreamLanguage(tag, fallback string) models.Language {
	if l, err := models.ParseLanguage(tag); err == nil {
		return l
	}
	if l, err := models.ParseLanguage(fallback); err == nil {
		return l
	}
	return ""
}
