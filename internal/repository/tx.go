package repository

import "gorm.io/gorm"

// conn picks the transaction handle when the caller runs inside one.
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
