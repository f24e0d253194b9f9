package authz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	caps, ok := r.Capabilities(RoleSuperAdmin)
	require.True(t, ok)
	assert.ElementsMatch(t, AllCapabilities(), caps)

	caps, ok = r.Capabilities(RoleKBEditor)
	require.True(t, ok)
	assert.ElementsMatch(t, []Capability{CapabilityRead, CapabilityWrite}, caps)

	caps, ok = r.Capabilities(RoleKBViewer)
	require.True(t, ok)
	assert.Equal(t, []Capability{CapabilityRead}, caps)

	_, ok = r.Capabilities("no_such_role")
	assert.False(t, ok)
}

func TestNewRegistryRejectsUnknownCapability(t *testing.T) {
	_, err := NewRegistry(map[string][]Capability{
		"broken": {"read", "wriet"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown capability")
}

func TestRegistryGrants(t *testing.T) {
	r := DefaultRegistry()

	role, ok := r.Grants([]string{RoleKBViewer, RoleKBEditor}, CapabilityWrite)
	require.True(t, ok)
	assert.Equal(t, RoleKBEditor, role)

	// Unknown role names contribute nothing rather than failing.
	_, ok = r.Grants([]string{"retired_role", RoleKBViewer}, CapabilityWrite)
	assert.False(t, ok)

	_, ok = r.Grants(nil, CapabilityRead)
	assert.False(t, ok)
}

func TestLoadRegistryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
roles:
  kb_contributor:
    - read
    - write
    - share
  kb_viewer:
    - read
`), 0o644))

	r, err := LoadRegistryFile(path)
	require.NoError(t, err)

	// File roles merge over built-ins.
	caps, ok := r.Capabilities("kb_contributor")
	require.True(t, ok)
	assert.ElementsMatch(t, []Capability{CapabilityRead, CapabilityWrite, CapabilityShare}, caps)

	// Built-ins survive the merge.
	assert.True(t, r.KnownRole(RoleSuperAdmin))
	assert.True(t, r.KnownRole(RoleKBAdmin))
}

func TestLoadRegistryFileRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 2\nroles: {}\n"), 0o644))

	_, err := LoadRegistryFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported role definition version")
}

func TestLoadRegistryFileRejectsUnknownCapability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
roles:
  typo_role: [raed]
`), 0o644))

	_, err := LoadRegistryFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown capability")
}
