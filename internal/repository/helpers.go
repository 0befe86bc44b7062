package repository

import (
	"edu_practice_backend/internal/util"

	"gorm.io/gorm"
)

// updateWithVersion 乐观锁更新：WHERE id = ? AND version = ?，未命中返回 util.ErrConcurrentModification
func updateWithVersion(db *gorm.DB, m interface{}, id uint, version int, fields map[string]interface{}) error {
	fields["version"] = version + 1
	result := db.Model(m).Where("id = ? AND version = ?", id, version).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return util.ErrConcurrentModification
	}
	return nil
}
