package rbac

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Policy maps every role to its capability record.
type Policy struct {
	Statuses    []int64             `yaml:"statuses"`
	FieldGroups map[string][]string `yaml:"field_groups"`
	Roles       []Capability        `yaml:"roles"`

	byRole map[Role]Capability
	fields map[string]struct{}
}

// DefaultPolicy returns the embedded policy.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicy)
}

// LoadPolicy reads the policy from path, or the embedded default when path is empty.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("rbac: decode policy: %w", err)
	}
	if err := p.index(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) index() error {
	known := make(map[int64]struct{}, len(p.Statuses))
	for _, s := range p.Statuses {
		known[s] = struct{}{}
	}
	p.fields = make(map[string]struct{})
	for _, group := range p.FieldGroups {
		for _, f := range group {
			p.fields[f] = struct{}{}
		}
	}
	p.byRole = make(map[Role]Capability, len(p.Roles))
	for _, c := range p.Roles {
		role := Role(c.RoleID)
		if !role.Valid() {
			return fmt.Errorf("rbac: policy references unknown role %d", c.RoleID)
		}
		if _, dup := p.byRole[role]; dup {
			return fmt.Errorf("rbac: role %d defined twice", c.RoleID)
		}
		for _, g := range c.FieldGroups {
			if _, ok := p.FieldGroups[g]; !ok {
				return fmt.Errorf("rbac: role %d uses unknown field group %q", c.RoleID, g)
			}
		}
		for _, f := range c.ExcludeFields {
			if _, ok := p.fields[f]; !ok {
				return fmt.Errorf("rbac: role %d excludes unknown field %q", c.RoleID, f)
			}
		}
		lists := [][]int64{c.TargetStatuses, c.StatusOrder, c.Visibility.Statuses, c.Search.Statuses}
		for _, list := range lists {
			for _, s := range list {
				if _, ok := known[s]; !ok {
					return fmt.Errorf("rbac: role %d references unknown status %d", c.RoleID, s)
				}
			}
		}
		for _, v := range []Visibility{c.Visibility, c.Search} {
			switch v.Ownership {
			case OwnershipNone, OwnershipCompany, OwnershipExecutive:
			default:
				return fmt.Errorf("rbac: role %d has unknown ownership %q", c.RoleID, v.Ownership)
			}
		}
		p.byRole[role] = c
	}
	for r := range roleNames {
		if _, ok := p.byRole[r]; !ok {
			return fmt.Errorf("rbac: policy missing role %d", r)
		}
	}
	return nil
}

// Capability returns the record for role.
func (p *Policy) Capability(role Role) (Capability, bool) {
	c, ok := p.byRole[role]
	return c, ok
}

// Fields lists every field name a policy group covers.
func (p *Policy) Fields() []string {
	out := make([]string, 0, len(p.fields))
	for f := range p.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (p *Policy) whitelist(c Capability) map[string]struct{} {
	excluded := make(map[string]struct{}, len(c.ExcludeFields))
	for _, f := range c.ExcludeFields {
		excluded[f] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, g := range c.FieldGroups {
		for _, f := range p.FieldGroups[g] {
			if _, skip := excluded[f]; skip {
				continue
			}
			out[f] = struct{}{}
		}
	}
	return out
}
