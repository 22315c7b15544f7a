package rbac

import (
	"context"
	"strings"
)

// Service is the read side of the engine: it answers permission queries
// through the per-user cache and falls back to the resolver on misses.
type Service struct {
	store    Store
	resolver *Resolver
	cache    *Cache
}

// NewService wires the query service.
func NewService(store Store, resolver *Resolver, cache *Cache) *Service {
	return &Service{store: store, resolver: resolver, cache: cache}
}

// Resolver exposes the underlying pure resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// State loads the raw permission state for one user.
func (s *Service) State(ctx context.Context, userID int64) (PermissionState, error) {
	return s.store.GetState(ctx, userID)
}

// EffectivePermissions returns the resolved permission set for a user,
// serving from cache when possible.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.cache.Effective(ctx, userID, func(ctx context.Context) ([]string, error) {
		state, err := s.store.GetState(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.resolver.EffectivePermissions(state), nil
	})
}

// HasPermission answers a point query against the cached effective set.
func (s *Service) HasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	code = normalizeCode(code)
	effective, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range effective {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

// HasAny reports whether at least one of codes is effective for the user.
func (s *Service) HasAny(ctx context.Context, userID int64, codes ...string) (bool, error) {
	effective, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	set := toSet(effective)
	for _, code := range codes {
		if _, ok := set[normalizeCode(code)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether every one of codes is effective for the user.
func (s *Service) HasAll(ctx context.Context, userID int64, codes ...string) (bool, error) {
	if len(codes) == 0 {
		return false, nil
	}
	effective, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	set := toSet(effective)
	for _, code := range codes {
		if _, ok := set[normalizeCode(code)]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Can evaluates a named capability for the user.
func (s *Service) Can(ctx context.Context, userID int64, cap Capability) (bool, error) {
	codes := cap.Codes()
	if len(codes) == 0 {
		return false, nil
	}
	return s.HasAll(ctx, userID, codes...)
}

// Explain reports which layer decides a permission for the user. It always
// reads the current state; diagnostics must not be served stale.
func (s *Service) Explain(ctx context.Context, userID int64, code string) (Explanation, error) {
	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		return Explanation{}, err
	}
	return s.resolver.Explain(state, code), nil
}

// ActorFor builds the explicit actor identity for a user id, as established
// by the session collaborator.
func (s *Service) ActorFor(ctx context.Context, userID int64) (Actor, error) {
	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: state.UserID, Role: state.Role}, nil
}

// normalizeCode is the single spelling rule for permission codes. The
// effective set, the catalog and the mutation engine all store lowercase;
// query inputs must match before comparison.
func normalizeCode(code string) string {
	return strings.TrimSpace(strings.ToLower(code))
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}
