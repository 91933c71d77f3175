package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row lock to the next SELECT. SQLite ignores the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// VersionedUpdate applies updates only when the row still carries expectedVersion and
// bumps the version. It returns the number of affected rows; zero means a concurrent
// writer got there first.
func VersionedUpdate(tx *gorm.DB, model any, id any, expectedVersion int64, updates map[string]any) (int64, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := tx.Model(model).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(values)
	return res.RowsAffected, res.Error
}
