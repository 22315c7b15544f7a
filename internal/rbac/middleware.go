package rbac

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/stewardhq/steward/internal/platform/httpx"
	"github.com/stewardhq/steward/internal/shared"
)

// Middleware wires authorization gates for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(func(r *http.Request, userID int64) (bool, error) {
		if len(normalized) == 0 {
			return true, nil
		}
		return m.Service.HasAny(r.Context(), userID, normalized...)
	})
}

// RequireAll ensures the current user holds every one of the permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(func(r *http.Request, userID int64) (bool, error) {
		if len(normalized) == 0 {
			return true, nil
		}
		return m.Service.HasAll(r.Context(), userID, normalized...)
	})
}

// RequireCapability gates a route on a named capability from the table.
func (m Middleware) RequireCapability(cap Capability) func(http.Handler) http.Handler {
	return m.require(func(r *http.Request, userID int64) (bool, error) {
		return m.Service.Can(r.Context(), userID, cap)
	})
}

func (m Middleware) require(check func(r *http.Request, userID int64) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			allowed, err := check(r, userID)
			if err != nil {
				// A session identity without permission state holds nothing.
				if errors.Is(err, ErrNotFound) {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "no permission state for this account")
					return
				}
				if m.Logger != nil {
					m.Logger.Error("rbac authorization check", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
