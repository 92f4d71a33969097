// Package httpapi exposes the CRM service over a JSON HTTP surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crmcore/internal/blob"
	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

// Handler routes /api/v1 requests to the CRM service. Avatars may be nil, in
// which case avatar endpoints respond 404.
type Handler struct {
	Service *core.Service
	Avatars blob.Store
}

// NewHandler constructs an HTTP handler over the service.
func NewHandler(svc *core.Service, avatars blob.Store) *Handler {
	return &Handler{Service: svc, Avatars: avatars}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/leads":
		h.handleLeads(w, r)
	case strings.HasPrefix(path, "/api/v1/leads/"):
		h.handleLead(w, r, strings.TrimPrefix(path, "/api/v1/leads/"))
	case path == "/api/v1/users":
		h.handleUsers(w, r)
	case strings.HasPrefix(path, "/api/v1/users/"):
		h.handleUser(w, r, strings.TrimPrefix(path, "/api/v1/users/"))
	case path == "/api/v1/activity":
		h.handleActivity(w, r)
	case path == "/api/v1/stats":
		h.handleStats(w, r)
	case path == "/api/v1/stats/followups":
		h.handleFollowUps(w, r)
	case path == "/api/v1/stats/converted":
		h.handleConverted(w, r)
	case path == "/api/v1/session":
		h.handleSession(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleLeads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if term := r.URL.Query().Get("q"); term != "" {
			writeJSON(w, http.StatusOK, map[string]any{"leads": h.Service.SearchLeads(term)})
			return
		}
		var statuses []domain.LeadStatus
		for _, raw := range r.URL.Query()["status"] {
			statuses = append(statuses, domain.LeadStatus(raw))
		}
		writeJSON(w, http.StatusOK, map[string]any{"leads": h.Service.LeadsByStatus(statuses...)})
	case http.MethodPost:
		var req createLeadRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		lead, res, err := h.Service.CreateLead(r.Context(), core.CreateLeadInput{
			Name:       req.Name,
			Email:      req.Email,
			Phone:      req.Phone,
			Company:    req.Company,
			Source:     req.Source,
			Priority:   req.Priority,
			AssignedTo: req.AssignedTo,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"lead": lead, "violations": res.Violations})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createLeadRequest struct {
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone,omitempty"`
	Company    string            `json:"company,omitempty"`
	Source     domain.LeadSource `json:"source,omitempty"`
	Priority   domain.Priority   `json:"priority,omitempty"`
	AssignedTo string            `json:"assigned_to"`
}

type statusChangeRequest struct {
	Status      domain.LeadStatus      `json:"status"`
	QuoteAmount *float64               `json:"quote_amount,omitempty"`
	Failure     *domain.FailureDetails `json:"failure,omitempty"`
}

type noteRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleLead(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		lead, ok := h.Service.GetLead(id)
		if !ok {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lead": lead})
		return
	}

	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}
	switch segments[1] {
	case "status":
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req statusChangeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		lead, res, err := h.Service.UpdateLeadStatus(r.Context(), id, req.Status, req.QuoteAmount, req.Failure)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lead": lead, "violations": res.Violations})
	case "notes":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req noteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		lead, _, err := h.Service.AddNoteToLead(r.Context(), id, req.Text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"lead": lead})
	default:
		http.NotFound(w, r)
	}
}

type createUserRequest struct {
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Password    string              `json:"password"`
	Role        domain.Role         `json:"role"`
	StartDate   *time.Time          `json:"start_date"`
	Department  *string             `json:"department,omitempty"`
	Phone       *string             `json:"phone,omitempty"`
	Manager     *string             `json:"manager,omitempty"`
	Permissions *domain.Permissions `json:"permissions,omitempty"`
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		role := domain.Role(r.URL.Query().Get("role"))
		users := h.Service.UsersByRole(role)
		for i := range users {
			users[i].Password = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		user, _, err := h.Service.CreateUser(r.Context(), core.CreateUserInput{
			Name:        req.Name,
			Email:       req.Email,
			Password:    req.Password,
			Role:        req.Role,
			StartDate:   req.StartDate,
			Department:  req.Department,
			Phone:       req.Phone,
			Manager:     req.Manager,
			Permissions: req.Permissions,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		user.Password = ""
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		user, ok := h.Service.GetUser(id)
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		user.Password = ""
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
		return
	}

	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}
	switch segments[1] {
	case "login":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		user, _, err := h.Service.RecordLogin(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		user.Password = ""
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case "avatar":
		h.handleAvatar(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request, id int64) {
	if h.Avatars == nil {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		key := fmt.Sprintf("avatars/%d-%d", id, time.Now().UnixNano())
		info, err := h.Avatars.Put(r.Context(), key, r.Body, blob.PutOptions{
			ContentType: r.Header.Get("Content-Type"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		user, _, err := h.Service.SetUserAvatar(r.Context(), id, key)
		if err != nil {
			_, _ = h.Avatars.Delete(r.Context(), key)
			writeServiceError(w, err)
			return
		}
		user.Password = ""
		writeJSON(w, http.StatusCreated, map[string]any{"user": user, "blob": info})
	case http.MethodGet:
		user, ok := h.Service.GetUser(id)
		if !ok || user.Avatar == "" {
			writeError(w, http.StatusNotFound, "avatar not found")
			return
		}
		info, body, err := h.Avatars.Get(r.Context(), user.Avatar)
		if err != nil {
			writeError(w, http.StatusNotFound, "avatar not found")
			return
		}
		defer func() { _ = body.Close() }()
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	filter := core.ActivityFilter{
		Type:   domain.ActivityType(q.Get("type")),
		Actor:  q.Get("user"),
		Search: q.Get("q"),
	}
	if raw := q.Get("lead_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lead_id")
			return
		}
		filter.LeadID = &id
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": h.Service.FilterActivity(filter)})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": h.Service.PipelineStats()})
}

func (h *Handler) handleFollowUps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.Service.FollowUpAging())
}

func (h *Handler) handleConverted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}
	leads := h.Service.ConvertedLeadsInMonth(year, time.Month(month))
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

type sessionRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, ok := h.Service.CurrentUser()
		if !ok {
			writeError(w, http.StatusNotFound, "no current user")
			return
		}
		user.Password = ""
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case http.MethodPut, http.MethodPost:
		var req sessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.Service.SetCurrentUser(r.Context(), req.UserID); err != nil {
			writeServiceError(w, err)
			return
		}
		user, _ := h.Service.CurrentUser()
		user.Password = ""
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr domain.ValidationError
		notFoundErr   domain.NotFoundError
		ruleErr       domain.RuleViolationError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, validationErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &ruleErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      ruleErr.Error(),
			"violations": ruleErr.Result.Violations,
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
