// Package audit records authorization decisions and grant mutations
// to pluggable sinks (JSON-lines file, database, or both).
package audit
