package utils

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WithRowLock -> SELECT ... FOR UPDATE pada dialek yang mendukungnya.
// SQLite (dipakai di test) menyerialkan writer per koneksi, jadi clause dilewati.
func WithRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
