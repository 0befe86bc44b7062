package repository

import (
	"context"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/util"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewTaskRepository struct {
	DB *gorm.DB
}

func NewReviewTaskRepository(db *gorm.DB) *ReviewTaskRepository {
	return &ReviewTaskRepository{DB: db}
}

// UpsertDailyTasks 按 (run_date, student_id, wrong_book_id) 去重写入，返回新插入的条数。
// 同一事务内核对来源错题本的版本，与生成时读到的不一致则回滚并返回 util.ErrConcurrentModification。
func (r *ReviewTaskRepository) UpsertDailyTasks(ctx context.Context, tasks []model.ReviewDailyTask) (int64, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	var inserted int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_date"}, {Name: "student_id"}, {Name: "wrong_book_id"}},
			DoNothing: true,
		}).Create(&tasks)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected
		return checkWrongBookVersions(tx, tasks)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func checkWrongBookVersions(tx *gorm.DB, tasks []model.ReviewDailyTask) error {
	ids := make([]uint, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.WrongBookID)
	}

	var rows []struct {
		ID      uint
		Version int
	}
	if err := tx.Model(&model.WrongBook{}).
		Select("id, version").
		Where("id IN ?", ids).
		Scan(&rows).Error; err != nil {
		return err
	}

	current := make(map[uint]int, len(rows))
	for _, row := range rows {
		current[row.ID] = row.Version
	}
	for _, t := range tasks {
		if v, ok := current[t.WrongBookID]; !ok || v != t.WrongBookVersion {
			return fmt.Errorf("%w: wrong book %d changed during generation", util.ErrConcurrentModification, t.WrongBookID)
		}
	}
	return nil
}

// Complete 将当天对应的待复习任务标记完成，不存在或已完成时返回 false
func (r *ReviewTaskRepository) Complete(ctx context.Context, runDate string, studentID, wrongBookID uint, at time.Time) (bool, error) {
	result := r.DB.WithContext(ctx).Model(&model.ReviewDailyTask{}).
		Where("run_date = ? AND student_id = ? AND wrong_book_id = ? AND status = ?", runDate, studentID, wrongBookID, model.ReviewTaskPending).
		Updates(map[string]interface{}{
			"status":       model.ReviewTaskDone,
			"completed_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

// ListByDate studentID 为 0 时返回当天全部任务
func (r *ReviewTaskRepository) ListByDate(ctx context.Context, runDate string, studentID uint) ([]model.ReviewDailyTask, error) {
	var tasks []model.ReviewDailyTask
	query := r.DB.WithContext(ctx).Where("run_date = ?", runDate)
	if studentID != 0 {
		query = query.Where("student_id = ?", studentID)
	}
	err := query.Order("student_id ASC, due_at ASC, id ASC").Find(&tasks).Error
	return tasks, err
}
