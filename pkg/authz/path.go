package authz

import (
	"fmt"
	"strings"
)

// NamespaceKind partitions the resource tree by its second path
// segment: /{type}/users/..., /{type}/teams/..., /{type}/shared/...,
// /{type}/public/....
type NamespaceKind string

const (
	NamespaceUser   NamespaceKind = "users"
	NamespaceTeam   NamespaceKind = "teams"
	NamespaceShared NamespaceKind = "shared"
	NamespacePublic NamespaceKind = "public"
	// NamespaceOther covers paths outside the four conventions. They
	// are reachable only through explicit grants.
	NamespaceOther NamespaceKind = ""
)

// Namespace is the derived (never stored) partition a path falls in.
type Namespace struct {
	ResourceType string
	Kind         NamespaceKind
	// OwnerID is the user ID for NamespaceUser paths and the team ID
	// for NamespaceTeam paths; empty otherwise.
	OwnerID string
}

// NormalizePath canonicalizes a resource path for prefix comparison:
// duplicate separators are collapsed and a trailing separator is
// appended. Relative segments, NUL bytes, and paths not rooted at "/"
// are rejected; callers translate the error into a fail-closed deny.
func NormalizePath(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", fmt.Errorf("path must be absolute: %q", p)
	}
	if strings.ContainsRune(p, '\x00') {
		return "", fmt.Errorf("path contains NUL byte")
	}

	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, seg := range parts {
		switch seg {
		case "":
			// Collapsed duplicate separator.
		case ".", "..":
			return "", fmt.Errorf("path contains relative segment: %q", p)
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/") + "/", nil
}

// SplitNamespace classifies a normalized path against the namespace
// layout convention. It never fails: paths that do not follow the
// convention come back as NamespaceOther.
func SplitNamespace(normalized string) Namespace {
	segs := strings.Split(strings.Trim(normalized, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return Namespace{}
	}

	ns := Namespace{ResourceType: segs[0]}
	if len(segs) < 2 {
		return ns
	}

	switch NamespaceKind(segs[1]) {
	case NamespaceUser:
		ns.Kind = NamespaceUser
		if len(segs) >= 3 {
			ns.OwnerID = segs[2]
		}
	case NamespaceTeam:
		ns.Kind = NamespaceTeam
		if len(segs) >= 3 {
			ns.OwnerID = segs[2]
		}
	case NamespaceShared:
		ns.Kind = NamespaceShared
	case NamespacePublic:
		ns.Kind = NamespacePublic
	}
	return ns
}

// HasPathPrefix reports whether a normalized path falls under a
// normalized, slash-terminated prefix.
func HasPathPrefix(normalized, prefix string) bool {
	return strings.HasPrefix(normalized, prefix)
}
