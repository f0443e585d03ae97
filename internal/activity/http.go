package activity

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Handler serves GET ?limit=N with the newest buffered entries, oldest first.
func Handler(ring *RingSink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ring.Recent(limit))
	})
}
