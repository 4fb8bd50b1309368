package httpapi

import (
	"net/http"
)

// handleAgentAnalytics returns the per-agent leaderboard. The result is
// cached; see analytics.Leaderboard.
func (r *Router) handleAgentAnalytics(w http.ResponseWriter, req *http.Request) {
	stats, err := r.leaderboard.Agents(req.Context())
	if err != nil {
		r.logger.Printf("analytics: leaderboard failed: %v", err)
		captureError(req, err, "analytics: leaderboard failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"agents": stats})
}
