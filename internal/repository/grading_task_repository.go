package repository

import (
	"context"
	"edu_practice_backend/internal/model"

	"gorm.io/gorm"
)

type GradingTaskRepository struct {
	DB *gorm.DB
}

func NewGradingTaskRepository(db *gorm.DB) *GradingTaskRepository {
	return &GradingTaskRepository{DB: db}
}

func (r *GradingTaskRepository) Create(ctx context.Context, task *model.ManualGradingTask) error {
	return r.DB.WithContext(ctx).Create(task).Error
}

func (r *GradingTaskRepository) FindByID(ctx context.Context, id uint) (*model.ManualGradingTask, error) {
	var task model.ManualGradingTask
	err := r.DB.WithContext(ctx).First(&task, id).Error
	return &task, err
}

// List 按创建顺序返回任务，status 为空时不过滤
func (r *GradingTaskRepository) List(ctx context.Context, status model.GradingTaskStatus, limit int) ([]model.ManualGradingTask, error) {
	var tasks []model.ManualGradingTask
	query := r.DB.WithContext(ctx).Order("id ASC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&tasks).Error
	return tasks, err
}

// Update 以任务读取时的状态与版本号为前提写入变更
func (r *GradingTaskRepository) Update(ctx context.Context, task *model.ManualGradingTask, from model.GradingTaskStatus, fields map[string]interface{}) error {
	return updateWithVersion(r.DB.WithContext(ctx).Where("status = ?", from),
		&model.ManualGradingTask{}, task.ID, task.Version, fields)
}
