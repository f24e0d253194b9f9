// Package api exposes the authorization service over HTTP: the
// decision endpoint and the administrative surface for role
// assignments, resource permissions, and teams.
package api
