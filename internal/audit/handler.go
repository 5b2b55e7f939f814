package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"studio-intake/internal/ratelimit"
)

type Handler struct {
	store    Store
	recorder *Recorder
	actor    func(r *http.Request) string
}

func NewHandler(store Store, recorder *Recorder, actor func(r *http.Request) string) *Handler {
	return &Handler{store: store, recorder: recorder, actor: actor}
}

// List serves the audit query surface: by actor, action, target or time
// range, newest first. Reading the trail is itself an audited action.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to query audit trail")
		return
	}

	h.recorder.Record(h.actor(r), ActionViewAuditTrail, "AuditTrail", nil, nil, nil,
		ratelimit.ClientIP(r), r.UserAgent())

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	q := r.URL.Query()
	filter := Filter{
		Actor:        strings.TrimSpace(q.Get("actor")),
		TargetEntity: strings.TrimSpace(q.Get("entity")),
		Limit:        50,
	}

	if raw := strings.TrimSpace(q.Get("action")); raw != "" {
		action := Action(strings.ToUpper(raw))
		if !action.Valid() {
			writeError(w, http.StatusBadRequest, "unknown audit action")
			return Filter{}, false
		}
		filter.Action = action
	}
	if raw := strings.TrimSpace(q.Get("target_id")); raw != "" {
		filter.TargetID = &raw
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return Filter{}, false
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return Filter{}, false
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return Filter{}, false
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be >= 0")
			return Filter{}, false
		}
		filter.Offset = offset
	}

	return filter, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
