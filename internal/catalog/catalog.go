package catalog

import (
	"errors"
	"sort"
	"strings"
)

// ErrUnknownCategory indicates the requested category is not registered.
var ErrUnknownCategory = errors.New("catalog: unknown category")

// ErrUnknownPermission indicates the requested permission code is not registered.
var ErrUnknownPermission = errors.New("catalog: unknown permission")

// Permission represents an atomic capability.
type Permission struct {
	Code        string
	Category    string
	Description string
}

// Catalog is the process-wide registry of permission codes and role defaults.
// It is assembled once at startup and never mutated afterwards.
type Catalog struct {
	categories []string
	byCategory map[string][]Permission
	byCode     map[string]Permission
	defaults   map[string]map[string]struct{}
}

// Definition declares a category with its permissions in stable order.
type Definition struct {
	Category    string
	Permissions []Permission
}

// New builds a Catalog from category definitions and per-role default codes.
// Category order follows the declared order; it carries no authorization
// meaning and exists only for stable UI listings.
func New(defs []Definition, roleDefaults map[string][]string) (*Catalog, error) {
	c := &Catalog{
		byCategory: make(map[string][]Permission, len(defs)),
		byCode:     make(map[string]Permission),
		defaults:   make(map[string]map[string]struct{}, len(roleDefaults)),
	}
	for _, def := range defs {
		name := strings.TrimSpace(def.Category)
		if name == "" {
			return nil, errors.New("catalog: category name required")
		}
		if _, ok := c.byCategory[name]; ok {
			return nil, errors.New("catalog: duplicate category " + name)
		}
		c.categories = append(c.categories, name)
		perms := make([]Permission, 0, len(def.Permissions))
		for _, p := range def.Permissions {
			p.Code = strings.TrimSpace(strings.ToLower(p.Code))
			p.Category = name
			if p.Code == "" {
				return nil, errors.New("catalog: permission code required in category " + name)
			}
			if _, ok := c.byCode[p.Code]; ok {
				return nil, errors.New("catalog: duplicate permission " + p.Code)
			}
			c.byCode[p.Code] = p
			perms = append(perms, p)
		}
		c.byCategory[name] = perms
	}
	for role, codes := range roleDefaults {
		set := make(map[string]struct{}, len(codes))
		for _, code := range codes {
			code = strings.TrimSpace(strings.ToLower(code))
			if _, ok := c.byCode[code]; !ok {
				return nil, errors.New("catalog: role default references unknown permission " + code)
			}
			set[code] = struct{}{}
		}
		c.defaults[role] = set
	}
	return c, nil
}

// Categories returns category names in their declared order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// Permissions returns the permissions of one category in declared order.
func (c *Catalog) Permissions(category string) ([]Permission, error) {
	perms, ok := c.byCategory[category]
	if !ok {
		return nil, ErrUnknownCategory
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out, nil
}

// All returns every registered permission grouped by category, following the
// declared category order.
func (c *Catalog) All() []Permission {
	var out []Permission
	for _, category := range c.categories {
		out = append(out, c.byCategory[category]...)
	}
	return out
}

// Has reports whether a permission code is registered.
func (c *Catalog) Has(code string) bool {
	_, ok := c.byCode[strings.ToLower(code)]
	return ok
}

// Lookup fetches a permission by code.
func (c *Catalog) Lookup(code string) (Permission, error) {
	p, ok := c.byCode[strings.ToLower(code)]
	if !ok {
		return Permission{}, ErrUnknownPermission
	}
	return p, nil
}

// DefaultsForRole returns the default permission codes for a role, sorted.
// Roles without an explicit entry default to no permissions; the hierarchy
// never implies inheritance between role defaults.
func (c *Catalog) DefaultsForRole(role string) []string {
	set := c.defaults[role]
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
