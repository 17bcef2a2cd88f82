package rbac

import (
	"fmt"
	"sort"

	"github.com/salesdesk/salesdesk/internal/shared"
)

// Scope is everything a principal may see and change.
type Scope struct {
	Principal     shared.Principal
	Role          Role
	Read          Visibility
	Search        Visibility
	StatusOrder   []int64
	CanCreate     bool
	CanPrioritize bool

	fields  map[string]struct{}
	targets map[int64]struct{}
}

// Resolver turns principals into scopes using a Policy.
type Resolver struct {
	policy *Policy
}

// NewResolver constructs a Resolver.
func NewResolver(policy *Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Resolve computes the scope of p. It has no side effects.
func (r *Resolver) Resolve(p *shared.Principal) (Scope, error) {
	if p == nil || p.UserID <= 0 {
		return Scope{}, shared.ErrUnauthorized
	}
	role := Role(p.RoleID)
	c, ok := r.policy.Capability(role)
	if !ok {
		return Scope{}, fmt.Errorf("%w: unknown role %d", shared.ErrForbidden, p.RoleID)
	}
	targets := make(map[int64]struct{}, len(c.TargetStatuses))
	for _, s := range c.TargetStatuses {
		targets[s] = struct{}{}
	}
	return Scope{
		Principal:     *p,
		Role:          role,
		Read:          c.Visibility,
		Search:        c.Search,
		StatusOrder:   append([]int64(nil), c.StatusOrder...),
		CanCreate:     c.CanCreate,
		CanPrioritize: c.CanPrioritize,
		fields:        r.policy.whitelist(c),
		targets:       targets,
	}, nil
}

// AllowsField reports whether a write may touch field.
func (s Scope) AllowsField(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// FieldWhitelist returns the writable fields, sorted.
func (s Scope) FieldWhitelist() []string {
	out := make([]string, 0, len(s.fields))
	for f := range s.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// AllowedTargetStatuses returns the statuses the principal may set, sorted.
func (s Scope) AllowedTargetStatuses() []int64 {
	out := make([]int64, 0, len(s.targets))
	for st := range s.targets {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermitStatus returns ErrForbidden unless status is an allowed target.
func (s Scope) PermitStatus(status int64) error {
	if _, ok := s.targets[status]; !ok {
		return fmt.Errorf("%w: role %s may not set status %d", shared.ErrForbidden, s.Role, status)
	}
	return nil
}

// FilterFields returns the subset of updates inside the whitelist.
// Fields outside it are dropped silently.
func (s Scope) FilterFields(updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates))
	for k, v := range updates {
		if s.AllowsField(k) {
			out[k] = v
		}
	}
	return out
}

// Owns reports whether a record with the given company and executive falls
// inside the principal's ownership constraint. Status filters are not considered.
func (s Scope) Owns(companyID int64, executiveID *int64) bool {
	switch s.Read.Ownership {
	case OwnershipCompany:
		return companyID == s.Principal.CompanyID
	case OwnershipExecutive:
		return executiveID != nil && *executiveID == s.Principal.UserID
	}
	return true
}

// Sees reports whether a single record is readable. Records reachable from
// either the listing or the search filter qualify.
func (s Scope) Sees(companyID int64, executiveID *int64, status int64) bool {
	return s.Read.admits(s.Principal, companyID, executiveID, status) ||
		s.Search.admits(s.Principal, companyID, executiveID, status)
}

func (v Visibility) admits(p shared.Principal, companyID int64, executiveID *int64, status int64) bool {
	switch v.Ownership {
	case OwnershipCompany:
		if companyID != p.CompanyID {
			return false
		}
	case OwnershipExecutive:
		if executiveID == nil || *executiveID != p.UserID {
			return false
		}
	}
	if len(v.Statuses) == 0 {
		return true
	}
	for _, st := range v.Statuses {
		if st == status {
			return true
		}
	}
	return false
}
