package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"studio-intake/internal/audit"
	"studio-intake/internal/observability"
	"studio-intake/internal/ratelimit"
)

// StatsHandler exposes limiter and audit-queue gauges for the cron probe.
// Login attempts and audit rows are append-only, so there is nothing to
// clean up here.
type StatsHandler struct {
	limiter    *ratelimit.Limiter
	recorder   *audit.Recorder
	logger     *observability.Logger
	cronSecret string
	startedAt  time.Time
}

func NewStatsHandler(limiter *ratelimit.Limiter, recorder *audit.Recorder, logger *observability.Logger, cronSecret string) *StatsHandler {
	return &StatsHandler{
		limiter:    limiter,
		recorder:   recorder,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		startedAt:  time.Now().UTC(),
	}
}

func (h *StatsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	stats := map[string]any{
		"status":            "ok",
		"uptime_seconds":    int(time.Since(h.startedAt).Seconds()),
		"rate_limit_keys":   h.limiter.Stats(),
		"audit_queue_depth": h.recorder.QueueDepth(),
	}
	h.logger.Info("maintenance_stats", stats)
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
