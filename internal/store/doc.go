// Package store defines interfaces for persistence dependencies (run
// repositories and the API-facing run store). Implementations live in
// other packages; this package must not import database drivers or
// concrete clients.
package store
