package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"studio-intake/internal/observability"
	"studio-intake/internal/ratelimit"
	"studio-intake/internal/risk"
)

const maxJSONBodyBytes = 1 << 20

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
var phoneRegex = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)

type Handler struct {
	service *Service
	logger  *observability.Logger
	actor   func(*http.Request) string
}

func NewHandler(service *Service, logger *observability.Logger, actor func(*http.Request) string) *Handler {
	return &Handler{service: service, logger: logger, actor: actor}
}

type submitRequest struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	ProjectType string `json:"project_type"`
	Description string `json:"description"`
	RiskToken   string `json:"risk_token"`
}

func (req *submitRequest) validate() error {
	req.FullName = strings.TrimSpace(req.FullName)
	if len(req.FullName) < 2 || len(req.FullName) > 100 {
		return errors.New("full_name must be 2-100 characters")
	}
	if !emailRegex.MatchString(strings.TrimSpace(req.Email)) {
		return errors.New("email is invalid")
	}
	if !phoneRegex.MatchString(strings.TrimSpace(req.Phone)) {
		return errors.New("phone is invalid")
	}
	if !ValidProjectType(req.ProjectType) {
		return fmt.Errorf("project_type must be one of %s, %s, %s", ProjectTypeAndroid, ProjectTypeIOS, ProjectTypeWebsite)
	}
	req.Description = strings.TrimSpace(req.Description)
	if len(req.Description) < 10 || len(req.Description) > 5000 {
		return errors.New("description must be 10-5000 characters")
	}
	return nil
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.service.Submit(r.Context(), SubmitInput{
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		ProjectType: req.ProjectType,
		Description: req.Description,
		RiskToken:   req.RiskToken,
		IP:          ratelimit.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		var cooldown CooldownError
		var lowScore risk.LowScoreError
		switch {
		case errors.As(err, &cooldown):
			w.Header().Set("Retry-After", strconv.Itoa(int(cooldown.Wait.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "a similar request was submitted recently")
		case errors.Is(err, ErrDuplicateRequest):
			writeError(w, http.StatusConflict, "a request with these contact details already exists")
		case errors.As(err, &lowScore), errors.Is(err, risk.ErrMissingToken):
			writeError(w, http.StatusForbidden, "request could not be verified")
		default:
			sentry.CaptureException(err)
			h.logger.Error("submit_failed", map[string]any{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         request.ID,
		"status":     request.Status,
		"created_at": request.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	request, email, phone, err := h.service.Get(r.Context(), h.actor(r), id, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			writeError(w, http.StatusNotFound, "project request not found")
			return
		}
		sentry.CaptureException(err)
		h.logger.Error("get_request_failed", map[string]any{"request_id": id, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request": request,
		"email":   email,
		"phone":   phone,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	requests, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentry.CaptureException(err)
		h.logger.Error("list_requests_failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req statusRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.ChangeStatus(r.Context(), h.actor(r), id, req.Status, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "project request not found")
		case errors.Is(err, ErrUnknownStatus):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			sentry.CaptureException(err)
			h.logger.Error("update_status_failed", map[string]any{"request_id": id, "error": err.Error()})
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.service.SoftDelete(r.Context(), h.actor(r), id, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			writeError(w, http.StatusNotFound, "project request not found")
			return
		}
		sentry.CaptureException(err)
		h.logger.Error("delete_request_failed", map[string]any{"request_id": id, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	data, err := h.service.ExportCSV(r.Context(), h.actor(r), status, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentry.CaptureException(err)
		h.logger.Error("export_failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="project_requests.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
