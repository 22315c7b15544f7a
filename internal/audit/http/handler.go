package http

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stewardhq/steward/internal/audit"
	"github.com/stewardhq/steward/internal/catalog"
	"github.com/stewardhq/steward/internal/platform/httpx"
	"github.com/stewardhq/steward/internal/rbac"
)

// Handler exposes audit history over JSON.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
	rbac    rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *audit.Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(catalog.PermAuditView))
		r.Get("/users/{userID}", h.historyByUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapExportAudit))
		r.Get("/users/{userID}/export", h.exportByUser)
	})
}

func (h *Handler) historyByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.service.HistoryByUser(r.Context(), userID, page, pageSize)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no audit history for user")
			return
		}
		h.logger.Error("audit history", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) exportByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	entries, err := h.service.ExportByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		`attachment; filename="audit-user-`+strconv.FormatInt(userID, 10)+`.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "user_id", "action", "permission_code", "previous_role", "new_role", "performed_by", "reason", "at"})
	for _, e := range entries {
		_ = cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.UserID, 10),
			string(e.Action),
			e.PermissionCode,
			e.PreviousRole,
			e.NewRole,
			strconv.FormatInt(e.PerformedBy, 10),
			e.Reason,
			e.At.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("audit export write", slog.Any("error", err))
	}
}
