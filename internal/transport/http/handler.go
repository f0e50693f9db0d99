package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vinocount/session-service/internal/coordinator"
	"github.com/vinocount/session-service/internal/domain"
	"github.com/vinocount/session-service/internal/permission"
	"github.com/vinocount/session-service/internal/postgres"
	"github.com/vinocount/session-service/internal/realtime"
	"github.com/vinocount/session-service/internal/service"
	httpmw "github.com/vinocount/session-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	sessionSvc *service.SessionService
	auditSvc   *service.AuditService
	roleSvc    *service.RoleService
	coord      *coordinator.Coordinator
	engine     *permission.Engine
	hub        *realtime.Hub
}

func NewHandler(
	session *service.SessionService,
	audit *service.AuditService,
	role *service.RoleService,
	coord *coordinator.Coordinator,
	engine *permission.Engine,
	hub *realtime.Hub,
) *Handler {
	return &Handler{
		sessionSvc: session,
		auditSvc:   audit,
		roleSvc:    role,
		coord:      coord,
		engine:     engine,
		hub:        hub,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func identityFromCtx(ctx context.Context) (coordinator.Identity, bool) {
	claims := httpmw.ClaimsFromCtx(ctx)
	if claims == nil {
		return coordinator.Identity{}, false
	}
	return coordinator.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, true
}

// POST /sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := identityFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
		return
	}
	// создание сессии — привилегированное действие
	if !h.engine.Evaluate(actor.Role, domain.ModuleInventorySession, permission.ActionCreate) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "permission denied"})
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	session, err := h.sessionSvc.Create(r.Context(), req.Title, req.ExpectedItems, actor.UserID)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error()})
			return
		}
		slog.Error("handler.CreateSession:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, sessionItem(session))
}

// GET /sessions?limit=&cursor=
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	cursor := r.URL.Query().Get("cursor")

	sessions, next, err := h.sessionSvc.List(r.Context(), limit, cursor)
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
			return
		}
		slog.Error("handler.ListSessions:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := SessionsListResponse{Items: make([]SessionItem, 0, len(sessions)), NextCursor: next}
	for _, s := range sessions {
		resp.Items = append(resp.Items, sessionItem(&s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.sessionSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
			return
		}
		slog.Error("handler.GetSession:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sessionItem(session))
}

// POST /sessions/{id}/actions
func (h *Handler) PerformAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := identityFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	sessionID := chi.URLParam(r, "id")
	entry, err := h.coord.PerformAction(r.Context(), sessionID, domain.ActionKind(req.Action), actor, req.Note)
	if err != nil {
		var (
			ve *domain.ValidationError
			pe *domain.PartialActionError
		)
		switch {
		case errors.Is(err, domain.ErrPermissionDenied):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "permission denied"})
		case errors.As(err, &ve):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error()})
		case errors.Is(err, domain.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
		case errors.Is(err, domain.ErrInvalidTransition):
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "invalid status transition"})
		case errors.As(err, &pe):
			writeJSON(w, http.StatusInternalServerError, PartialActionResponse{
				Error:         "action applied partially",
				StatusApplied: pe.StatusApplied,
				AuditWritten:  pe.AuditWritten,
			})
		default:
			slog.Error("handler.PerformAction:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, ActionResponse{
		AuditID:   entry.ID,
		Action:    string(entry.Action),
		CreatedAt: entry.CreatedAt,
	})
}

// GET /sessions/{id}/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	entries, err := h.auditSvc.ForSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("handler.GetAudit:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := AuditListResponse{Items: make([]AuditEntryItem, 0, len(entries))}
	for _, e := range entries {
		resp.Items = append(resp.Items, AuditEntryItem{
			ID:        e.ID,
			SessionID: e.SessionID,
			Action:    string(e.Action),
			ActorID:   e.ActorID,
			ActorName: e.ActorName,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /sessions/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	parts := h.hub.Snapshot(sessionID)

	resp := ParticipantsResponse{Items: make([]ParticipantItem, 0, len(parts))}
	for _, p := range parts {
		resp.Items = append(resp.Items, ParticipantItem{
			UserID:       p.UserID,
			DisplayName:  p.DisplayName,
			Role:         string(p.Role),
			LastActivity: p.LastActivity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	if !h.gateSettings(w, r, permission.ActionRead) {
		return
	}
	roles, err := h.roleSvc.List(r.Context())
	if err != nil {
		slog.Error("handler.ListRoles:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := RolesListResponse{Items: make([]RoleItem, 0, len(roles))}
	for _, role := range roles {
		resp.Items = append(resp.Items, RoleItem{
			Name:    string(role.Name),
			BuiltIn: role.BuiltIn || role.Name.BuiltIn(),
			Grants:  grantsOut(role.Grants),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// PUT /roles/{name}
func (h *Handler) SaveRole(w http.ResponseWriter, r *http.Request) {
	if !h.gateSettings(w, r, permission.ActionWrite) {
		return
	}
	var req SaveRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	def := domain.RoleDefinition{
		Name:   domain.RoleName(chi.URLParam(r, "name")),
		Grants: grantsIn(req.Grants),
	}
	if err := h.roleSvc.Save(r.Context(), def); err != nil {
		switch {
		case errors.Is(err, domain.ErrBuiltInRole):
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "built-in role cannot be modified"})
		default:
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error()})
				return
			}
			slog.Error("handler.SaveRole:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// DELETE /roles/{name}
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if !h.gateSettings(w, r, permission.ActionWrite) {
		return
	}
	name := domain.RoleName(chi.URLParam(r, "name"))
	if err := h.roleSvc.Delete(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "role not found"})
			return
		}
		slog.Error("handler.DeleteRole:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	// удаление встроенной роли — no-op, но ответ одинаковый
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) gateSettings(w http.ResponseWriter, r *http.Request, action string) bool {
	actor, ok := identityFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
		return false
	}
	if !h.engine.Evaluate(actor.Role, domain.ModuleSettings, action) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "permission denied"})
		return false
	}
	return true
}

func sessionItem(s *domain.Session) SessionItem {
	return SessionItem{
		ID:            s.ID,
		Title:         s.Title,
		Status:        string(s.Status),
		ExpectedItems: s.ExpectedItems,
		OwnerID:       s.OwnerID,
		CreatedAt:     s.CreatedAt,
	}
}

func grantsOut(g map[domain.Module]map[string]domain.Capability) map[string]map[string]string {
	if g == nil {
		return nil
	}
	out := make(map[string]map[string]string, len(g))
	for m, actions := range g {
		inner := make(map[string]string, len(actions))
		for a, lvl := range actions {
			inner[a] = string(lvl)
		}
		out[string(m)] = inner
	}
	return out
}

func grantsIn(g map[string]map[string]string) map[domain.Module]map[string]domain.Capability {
	out := make(map[domain.Module]map[string]domain.Capability, len(g))
	for m, actions := range g {
		inner := make(map[string]domain.Capability, len(actions))
		for a, lvl := range actions {
			inner[a] = domain.Capability(lvl)
		}
		out[domain.Module(m)] = inner
	}
	return out
}
