package authz

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Built-in role names. The registry is static: adding a role means
// shipping a new definition file, never a runtime API.
const (
	RoleSuperAdmin = "super_admin"
	RoleKBAdmin    = "kb_admin"
	RoleKBEditor   = "kb_editor"
	RoleKBViewer   = "kb_viewer"
)

// Registry is the static mapping of role name to capability set,
// loaded once at startup. It is immutable after construction.
type Registry struct {
	roles map[string]map[Capability]bool
}

// BuiltinRoles returns the role definitions every deployment carries.
func BuiltinRoles() map[string][]Capability {
	return map[string][]Capability{
		RoleSuperAdmin: AllCapabilities(),
		RoleKBAdmin: {
			CapabilityRead,
			CapabilityWrite,
			CapabilityDelete,
			CapabilityShare,
			CapabilityAdmin,
		},
		RoleKBEditor: {CapabilityRead, CapabilityWrite},
		RoleKBViewer: {CapabilityRead},
	}
}

// NewRegistry builds a registry from role definitions. Every
// capability name is validated against the closed vocabulary; an
// unrecognized name fails construction rather than silently granting
// nothing.
func NewRegistry(defs map[string][]Capability) (*Registry, error) {
	r := &Registry{roles: make(map[string]map[Capability]bool, len(defs))}
	for name, caps := range defs {
		if name == "" {
			return nil, fmt.Errorf("role with empty name")
		}
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			parsed, err := ParseCapability(string(c))
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", name, err)
			}
			set[parsed] = true
		}
		r.roles[name] = set
	}
	return r, nil
}

// DefaultRegistry returns a registry holding only the built-in roles.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinRoles())
	if err != nil {
		// Built-in definitions only use vocabulary capabilities.
		panic(err)
	}
	return r
}

// registryFile is the on-disk YAML shape of a role definition file.
type registryFile struct {
	Version int                 `yaml:"version"`
	Roles   map[string][]string `yaml:"roles"`
}

// LoadRegistryFile loads a versioned role definition file and merges
// it over the built-in roles. File-defined roles may extend built-ins
// with new names but cannot remove a built-in role.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role definitions: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse role definitions: %w", err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported role definition version: %d", f.Version)
	}

	defs := BuiltinRoles()
	for name, caps := range f.Roles {
		parsed := make([]Capability, 0, len(caps))
		for _, c := range caps {
			parsedCap, err := ParseCapability(c)
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", name, err)
			}
			parsed = append(parsed, parsedCap)
		}
		defs[name] = parsed
	}

	return NewRegistry(defs)
}

// Capabilities returns the capability set of a role, sorted for
// stable output, and whether the role is known.
func (r *Registry) Capabilities(role string) ([]Capability, bool) {
	set, ok := r.roles[role]
	if !ok {
		return nil, false
	}
	caps := make([]Capability, 0, len(set))
	for c := range set {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps, true
}

// Grants reports whether any of the given roles carries the action.
// Unknown role names contribute nothing; capability sets are unioned,
// never subtracted.
func (r *Registry) Grants(roles []string, action Capability) (string, bool) {
	for _, role := range roles {
		if set, ok := r.roles[role]; ok && set[action] {
			return role, true
		}
	}
	return "", false
}

// KnownRole reports whether a role name is defined.
func (r *Registry) KnownRole(role string) bool {
	_, ok := r.roles[role]
	return ok
}

// RoleNames returns all defined role names, sorted.
func (r *Registry) RoleNames() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
