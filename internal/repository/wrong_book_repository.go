package repository

import (
	"context"
	"edu_practice_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WrongBookRepository struct {
	DB *gorm.DB
}

func NewWrongBookRepository(db *gorm.DB) *WrongBookRepository {
	return &WrongBookRepository{DB: db}
}

func (r *WrongBookRepository) Find(ctx context.Context, studentID, questionID uint) (*model.WrongBook, error) {
	var wb model.WrongBook
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND question_id = ?", studentID, questionID).
		First(&wb).Error
	return &wb, err
}

func (r *WrongBookRepository) FindByID(ctx context.Context, id uint) (*model.WrongBook, error) {
	var wb model.WrongBook
	err := r.DB.WithContext(ctx).First(&wb, id).Error
	return &wb, err
}

// CreateIfAbsent 依赖 (student_id, question_id) 唯一索引，已存在时返回 false
func (r *WrongBookRepository) CreateIfAbsent(ctx context.Context, wb *model.WrongBook) (bool, error) {
	result := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(wb)
	return result.RowsAffected > 0, result.Error
}

func (r *WrongBookRepository) Update(ctx context.Context, wb *model.WrongBook, fields map[string]interface{}) error {
	return updateWithVersion(r.DB.WithContext(ctx), &model.WrongBook{}, wb.ID, wb.Version, fields)
}

// ListDueForStudent 学生到期未掌握的错题，按到期时间排序
func (r *WrongBookRepository) ListDueForStudent(ctx context.Context, studentID uint, asOf time.Time, limit int) ([]model.WrongBook, error) {
	var list []model.WrongBook
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND is_mastered = ? AND next_review_at IS NOT NULL AND next_review_at <= ?", studentID, false, asOf).
		Order("next_review_at ASC, id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// ListDue 全量到期错题的游标分页，用于生成每日任务
func (r *WrongBookRepository) ListDue(ctx context.Context, before time.Time, afterID uint, limit int) ([]model.WrongBook, error) {
	var list []model.WrongBook
	err := r.DB.WithContext(ctx).
		Where("is_mastered = ? AND next_review_at IS NOT NULL AND next_review_at < ? AND id > ?", false, before, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
