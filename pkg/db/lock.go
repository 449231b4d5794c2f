package db

import "gorm.io/gorm"

// RowLock returns the row-locking suffix for raw SELECT statements.
// SQLite serializes writers per connection and rejects FOR UPDATE syntax,
// so the suffix is empty there.
func RowLock(tx *gorm.DB) string {
	if tx == nil || tx.Dialector == nil {
		return ""
	}
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
