package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/tools"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"tools": tools.Tools()})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	s.callTool(w, r, chi.URLParam(r, "name"))
}

// handleSearch is search_decisions with the filters as the request body.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.callTool(w, r, tools.ToolSearchDecisions)
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request, name string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) > maxBodyBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	s.logger.Debug("tool request", zap.String("tool", name), zap.Int("bytes", len(body)))
	out, err := s.tools.Call(r.Context(), name, json.RawMessage(body))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleDecision serves /decisions/{id} and /decisions/{id}/related. Ids contain
// slashes ("BG-4A_12/2023") and may be sent escaped or verbatim.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	rest := chi.URLParam(r, "*")
	related := false
	if trimmed, ok := strings.CutSuffix(rest, "/related"); ok {
		rest, related = trimmed, true
	}
	id, err := url.PathUnescape(rest)
	if err != nil || strings.TrimSpace(id) == "" {
		s.respondError(w, http.StatusBadRequest, "invalid decision id")
		return
	}

	if !related {
		out, err := s.tools.DecisionDetails(r.Context(), tools.DecisionDetailsInput{DecisionID: id})
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, out)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	out, err := s.tools.RelatedDecisions(r.Context(), tools.RelatedDecisionsInput{DecisionID: id, Limit: limit})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	top, err := s.cache.MostAccessed(ctx, 10)
	if err != nil {
		s.logger.Error("cache most accessed failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	entries := make([]cacheEntryView, 0, len(top))
	for _, e := range top {
		entries = append(entries, cacheEntryView{
			Key:       e.Key,
			Type:      e.Type,
			HitCount:  e.HitCount,
			ExpiresAt: e.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"stats":         stats,
		"most_accessed": entries,
	})
}

type cacheEntryView struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	HitCount  int64  `json:"hit_count"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.Cleanup(r.Context())
	if err != nil {
		s.logger.Error("cache cleanup failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.logger.Info("Cache cleanup", zap.Int64("removed", n))
	s.respondJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.logger.Info("Cache cleared")
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleQueryStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := queryInt(r, "limit")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if n == 0 {
		n = 10
	}
	popular, err := s.queryLog.PopularQueries(ctx, n)
	if err != nil {
		s.logger.Error("popular queries failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	byType, err := s.queryLog.QueryCountsByType(ctx)
	if err != nil {
		s.logger.Error("query counts failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	avg := make(map[string]float64, len(byType))
	for typ := range byType {
		ms, err := s.queryLog.AverageExecutionTime(ctx, typ)
		if err != nil {
			s.logger.Error("average execution time failed", zap.String("type", typ), zap.Error(err))
			s.respondErr(w, err)
			return
		}
		avg[typ] = ms
	}
	if popular == nil {
		popular = []models.PopularQuery{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"popular":          popular,
		"by_type":          byType,
		"avg_execution_ms": avg,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.decisions.CountAll(ctx)
	if err != nil {
		s.logger.Error("status: count decisions failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		s.logger.Error("status: cache stats failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := map[string]any{
		"decisions":     count,
		"cache_entries": stats.Total,
		"sources":       s.sourceNames(),
		"tools":         len(tools.Tools()),
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			resp["indexed_decisions"] = n
		} else {
			s.logger.Warn("status: index doc count failed", zap.Error(err))
		}
	}
	if s.diskUsage != nil {
		if u, err := s.diskUsage(); err == nil {
			resp["disk_usage_bytes"] = u.Total()
			resp["disk_usage"] = u
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) sourceNames() []string {
	if s.sources == nil {
		return []string{}
	}
	return s.sources
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, models.NewValidationError(name, "%q is not an integer", v)
	}
	if n < 0 {
		return 0, models.NewValidationError(name, "must not be negative")
	}
	return n, nil
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, tools.ErrUnknownTool), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrAllSourcesFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
