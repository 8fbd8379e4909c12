// Package store defines interfaces for persistence dependencies that sit
// beside the core ingest stores (e.g. per-source run statistics).
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
