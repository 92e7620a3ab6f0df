package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/middleware"
)

const maxQueryBytes = 64 << 10

// QueryService is the surface of pipeline.Pipeline served over HTTP.
type QueryService interface {
	Run(ctx context.Context, query string) (*pipeline.Answer, error)
	Retrieve(ctx context.Context, query string) (*pipeline.Retrieval, error)
	RetrieveForEvaluation(ctx context.Context, query string, k int) ([]chunk.Scored, error)
	Rebuild(ctx context.Context) error
	Snapshot() (version uint64, chunks int)
}

type Tracker interface {
	Track(event any)
}

type Handler struct {
	pipeline     QueryService
	cache        *cache.Cache
	tracker      Tracker
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New wires the HTTP handlers. queryCache and tracker may be nil.
func New(svc QueryService, queryCache *cache.Cache, tracker Tracker, defaultLimit, maxResults int) *Handler {
	return &Handler{
		pipeline:     svc,
		cache:        queryCache,
		tracker:      tracker,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "query-handler"),
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	*pipeline.Answer
	CacheHit bool `json:"cache_hit"`
}

// Query serves POST /api/v1/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		ans      *pipeline.Answer
		cacheHit bool
		err      error
	)
	version, _ := h.pipeline.Snapshot()
	if h.cache != nil && strings.TrimSpace(req.Query) != "" {
		key := cache.Key{Kind: "answer", Snapshot: version, Query: req.Query}
		ans, cacheHit, err = cache.GetOrCompute(ctx, h.cache, key,
			func() (*pipeline.Answer, error) { return h.pipeline.Run(ctx, req.Query) },
			func(a *pipeline.Answer) bool { return !a.Degraded && a.Snapshot == version },
		)
		if err == nil {
			// Callers sharing a computation or a cache entry each get their
			// own query ID.
			own := *ans
			if id := middleware.GetRequestID(ctx); id != "" {
				own.QueryID = id
			}
			ans = &own
		}
	} else {
		ans, err = h.pipeline.Run(ctx, req.Query)
	}

	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("query failed", "error", err, "status_code", statusCode)
		h.track(analytics.QueryEvent{
			Type:       analytics.EventFailed,
			Query:      req.Query,
			LatencyMs:  latencyMs,
			Snapshot:   version,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
			ErrMessage: err.Error(),
		})
		h.writeAppError(w, err)
		return
	}

	log.Info("query served",
		"query_id", ans.QueryID,
		"sources", ans.NumSources,
		"degraded", ans.Degraded,
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.track(analytics.QueryEvent{
		Type:      analytics.QueryEventType(ans.NumSources, ans.Degraded),
		QueryID:   ans.QueryID,
		Query:     ans.Query,
		Variants:  len(ans.Queries),
		Sources:   ans.NumSources,
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Snapshot:  ans.Snapshot,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, queryResponse{Answer: ans, CacheHit: cacheHit})
}

type retrieveResponse struct {
	Query    string         `json:"query"`
	Queries  []string       `json:"queries"`
	Results  []chunk.Scored `json:"results"`
	Snapshot uint64         `json:"snapshot_version"`
	CacheHit bool           `json:"cache_hit"`
}

// Retrieve serves GET /api/v1/retrieve?q=...&k=...&expand=true. With
// expand=false only the query itself is retrieved, exactly as the
// evaluation harness does. A blank q yields an empty result.
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}
	expand := true
	if raw := r.URL.Query().Get("expand"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "expand must be a boolean")
			return
		}
		expand = parsed
	}

	version, _ := h.pipeline.Snapshot()
	if query == "" {
		h.writeJSON(w, http.StatusOK, retrieveResponse{Queries: []string{}, Results: []chunk.Scored{}, Snapshot: version})
		return
	}
	compute := func() (retrieveResponse, error) {
		if !expand {
			results, err := h.pipeline.RetrieveForEvaluation(ctx, query, limit)
			if err != nil {
				return retrieveResponse{}, err
			}
			return retrieveResponse{Query: query, Queries: []string{query}, Results: results, Snapshot: version}, nil
		}
		pool, err := h.pipeline.Retrieve(ctx, query)
		if err != nil {
			return retrieveResponse{}, err
		}
		results := pool.Candidates[:min(limit, len(pool.Candidates))]
		return retrieveResponse{Query: query, Queries: pool.Queries, Results: results, Snapshot: pool.Snapshot}, nil
	}

	var (
		resp retrieveResponse
		hit  bool
		err  error
	)
	if h.cache != nil {
		key := cache.Key{Kind: "retrieve", Snapshot: version, Query: query, Params: fmt.Sprintf("k=%d,expand=%t", limit, expand)}
		resp, hit, err = cache.GetOrCompute(ctx, h.cache, key, compute,
			func(rr retrieveResponse) bool { return rr.Snapshot == version })
	} else {
		resp, err = compute()
	}
	if err != nil {
		logger.FromContext(ctx).Error("retrieval failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	resp.CacheHit = hit
	h.writeJSON(w, http.StatusOK, resp)
}

// Rebuild serves POST /api/v1/index/rebuild. It blocks until the new
// snapshot is active.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	if err := h.pipeline.Rebuild(ctx); err != nil {
		logger.FromContext(ctx).Error("rebuild failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	version, chunks := h.pipeline.Snapshot()
	if h.cache != nil {
		if _, err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation failed after rebuild", "error", err)
		}
	}
	h.track(analytics.IndexEvent{
		Type:      analytics.EventRebuild,
		Chunks:    chunks,
		Snapshot:  version,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"snapshot_version": version,
		"chunks":           chunks,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) track(event any) {
	if h.tracker != nil {
		h.tracker.Track(event)
	}
}

// writeAppError reports err with its mapped status. Only client errors
// echo the error text.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		h.writeError(w, status, appErr.Message)
	case status == http.StatusBadRequest:
		h.writeError(w, status, err.Error())
	case errors.Is(err, apperrors.ErrTimeout):
		h.writeError(w, status, "query timed out")
	case errors.Is(err, apperrors.ErrNotReady):
		h.writeError(w, status, "index is not ready, retry shortly")
	case errors.Is(err, apperrors.ErrCollaborator):
		h.writeError(w, status, "a dependency of the query pipeline is unavailable")
	default:
		h.writeError(w, status, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
