package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stewardhq/steward/internal/audit"
	"github.com/stewardhq/steward/internal/catalog"
	"github.com/stewardhq/steward/internal/platform/httpx"
	"github.com/stewardhq/steward/internal/shared"
)

// Handler exposes the permission engine as a JSON API. Rendering is left to
// the presentation layer; this surface only speaks the logical contract.
type Handler struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	service   *Service
	engine    *Engine
	validator *validator.Validate
	rbac      Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, cat *catalog.Catalog, service *Service, engine *Engine, rbac Middleware) *Handler {
	return &Handler{
		logger:    logger,
		catalog:   cat,
		service:   service,
		engine:    engine,
		validator: validator.New(),
		rbac:      rbac,
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(catalog.PermPermissionsView))
		r.Get("/catalog", h.listCatalog)
		r.Get("/users/{userID}", h.getEffectivePermissions)
		r.Get("/users/{userID}/check", h.checkPermission)
		r.Get("/users/{userID}/explain", h.explainPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(CapManagePermissions))
		r.Post("/users/{userID}/grant", h.grant)
		r.Post("/users/{userID}/revoke", h.revoke)
		r.Post("/users/{userID}/reset", h.reset)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(CapAssignRoles))
		r.Post("/users/{userID}/role", h.changeRole)
	})
}

type catalogResponse struct {
	Categories            []string                        `json:"categories"`
	PermissionsByCategory map[string][]catalog.Permission `json:"permissions_by_category"`
	RoleDefaults          map[string][]string             `json:"role_defaults"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{
		Categories:            h.catalog.Categories(),
		PermissionsByCategory: make(map[string][]catalog.Permission),
		RoleDefaults:          make(map[string][]string),
	}
	for _, category := range resp.Categories {
		perms, err := h.catalog.Permissions(category)
		if err != nil {
			h.respondError(w, err)
			return
		}
		resp.PermissionsByCategory[category] = perms
	}
	for _, role := range []Role{RoleUser, RoleAdmin, RoleSuperadmin} {
		resp.RoleDefaults[string(role)] = h.catalog.DefaultsForRole(string(role))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type effectiveResponse struct {
	UserID      int64    `json:"user_id"`
	Role        string   `json:"role"`
	Effective   []string `json:"effective"`
	Grants      []string `json:"direct_grants"`
	Revocations []string `json:"direct_revocations"`
}

func (h *Handler) getEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUserID(w, r)
	if !ok {
		return
	}
	state, err := h.service.State(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	effective, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, effectiveResponse{
		UserID:      userID,
		Role:        string(state.Role),
		Effective:   effective,
		Grants:      state.GrantList(),
		Revocations: state.RevocationList(),
	})
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUserID(w, r)
	if !ok {
		return
	}
	code := r.URL.Query().Get("code")
	if !h.catalog.Has(code) {
		h.respondError(w, ErrUnknownPermission)
		return
	}
	granted, err := h.service.HasPermission(r.Context(), userID, code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "code": code, "granted": granted})
}

func (h *Handler) explainPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUserID(w, r)
	if !ok {
		return
	}
	code := r.URL.Query().Get("code")
	if !h.catalog.Has(code) {
		h.respondError(w, ErrUnknownPermission)
		return
	}
	explanation, err := h.service.Explain(r.Context(), userID, code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, explanation)
}

type permissionMutationRequest struct {
	Code   string `json:"code" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type roleChangeRequest struct {
	Role   string `json:"role" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.permissionMutation(w, r, h.engine.Grant)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.permissionMutation(w, r, h.engine.Revoke)
}

func (h *Handler) permissionMutation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor Actor, userID int64, code, reason string) (audit.Entry, error)) {
	userID, ok := h.targetUserID(w, r)
	if !ok {
		return
	}
	actor, ok := h.currentActor(w, r)
	if !ok {
		return
	}
	var req permissionMutationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := op(r.Context(), actor, userID, req.Code, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUserID(w, r)
	if !ok {
		return
	}
	actor, ok := h.currentActor(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := h.engine.Reset(r.Context(), actor, userID, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.targetUserID(w, r)
	if !ok {
		return
	}
	actor, ok := h.currentActor(w, r)
	if !ok {
		return
	}
	var req roleChangeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	newRole, err := ParseRole(req.Role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	entry, err := h.engine.ChangeRole(r.Context(), actor, userID, newRole, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) targetUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) currentActor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return Actor{}, false
	}
	actorID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session identity")
		return Actor{}, false
	}
	actor, err := h.service.ActorFor(r.Context(), actorID)
	if err != nil {
		// The actor, not the target, is missing state: that reads as an
		// authorization failure, not a missing resource.
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "no permission state for this account")
			return Actor{}, false
		}
		h.respondError(w, err)
		return Actor{}, false
	}
	return actor, true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		detail := "invalid request"
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			detail = "invalid field " + fieldErrs[0].Field()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return false
	}
	return true
}

// respondError maps the engine's error taxonomy onto problem responses.
// Callers must be able to tell "not authorized" from "invalid target" from
// "transient conflict".
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "superadmin authority required")
	case errors.Is(err, ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Permission", "permission code is not in the catalog")
	case errors.Is(err, ErrInvalidRole):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role", "role must be one of user, admin, superadmin")
	case errors.Is(err, ErrSelfDemotionForbidden):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Self Demotion Forbidden", "you cannot lower the role of your own account")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "target user has no permission state")
	case errors.Is(err, ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrency Conflict", "another mutation for this user is in progress, retry")
	case errors.Is(err, catalog.ErrUnknownCategory):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Category", "category is not in the catalog")
	default:
		if h.logger != nil {
			h.logger.Error("permissions handler", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
