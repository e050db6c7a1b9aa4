// Package storage persists published report pointers, monitored service
// records and the operator audit log.
//
// Drivers:
//   - "memory" (also "none" or empty): process-local, nothing survives a restart
//   - "file": JSON snapshot replaced atomically, plus an append-only audit JSONL
//   - "sqlite": single database file (modernc.org/sqlite, pure Go)
package storage
