package db

import (
	"context"

	"gorm.io/gorm"
)

// RowLockClause returns the FOR UPDATE suffix for the connected dialect.
// SQLite has no row locks; its writer lock already serializes transactions.
func RowLockClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}

// SkipLockedClause returns the FOR UPDATE SKIP LOCKED suffix for the
// connected dialect, used by harvest queries that must never pick rows a
// concurrent transaction already claimed.
func SkipLockedClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE SKIP LOCKED"
	default:
		return ""
	}
}

// AdvisoryXactLock takes a transaction-scoped advisory lock on key. The lock
// is released automatically at commit or rollback. Only PostgreSQL exposes
// advisory locks; on other dialects callers must serialize in-process.
func AdvisoryXactLock(ctx context.Context, tx *gorm.DB, key int64) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.WithContext(ctx).Exec(`SELECT pg_advisory_xact_lock(?)`, key).Error
}
