// Package cli implements the gaia-authz administration commands.
package cli
