package aggregator

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	defaultHistory = 60
	maxHistory     = 1440
)

// HistoryHandler serves GET /api/v1/analytics/history?limit=N.
func (s *Store) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistory
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxHistory)
		}
		points, err := s.ListSnapshots(r.Context(), limit)
		if err != nil {
			s.logger.Error("listing snapshot history failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot history unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": points, "count": len(points)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
