package repository

import (
	"context"
	"edu_practice_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) CreatePaper(ctx context.Context, paper *model.ExamPaper) error {
	return r.DB.WithContext(ctx).Create(paper).Error
}

func (r *ExamRepository) FindPaperWithItems(ctx context.Context, id uint) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&paper, id).Error
	return &paper, err
}

func (r *ExamRepository) FindPaper(ctx context.Context, id uint) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	err := r.DB.WithContext(ctx).First(&paper, id).Error
	return &paper, err
}

// FindActiveAttempt 学生在该试卷上未结束的作答，不存在时返回 gorm.ErrRecordNotFound
func (r *ExamRepository) FindActiveAttempt(ctx context.Context, studentID, paperID uint) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND paper_id = ? AND status = ?", studentID, paperID, model.ExamAttemptActive).
		Order("id DESC").
		First(&attempt).Error
	return &attempt, err
}

func (r *ExamRepository) CreateAttempt(ctx context.Context, attempt *model.ExamAttempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *ExamRepository) FindAttempt(ctx context.Context, id uint) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.WithContext(ctx).First(&attempt, id).Error
	return &attempt, err
}

func (r *ExamRepository) FindAttemptWithItems(ctx context.Context, id uint) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&attempt, id).Error
	return &attempt, err
}

func (r *ExamRepository) FindAttemptItem(ctx context.Context, attemptID, paperItemID uint) (*model.ExamAttemptItem, error) {
	var item model.ExamAttemptItem
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND paper_item_id = ?", attemptID, paperItemID).
		First(&item).Error
	return &item, err
}

func (r *ExamRepository) FindAttemptItemByID(ctx context.Context, id uint) (*model.ExamAttemptItem, error) {
	var item model.ExamAttemptItem
	err := r.DB.WithContext(ctx).First(&item, id).Error
	return &item, err
}

// SubmitItem 写入作答，仅在未提交过时生效，返回是否命中
func (r *ExamRepository) SubmitItem(ctx context.Context, item *model.ExamAttemptItem) (bool, error) {
	fields := map[string]interface{}{
		"submitted_answer":     item.SubmittedAnswer,
		"is_correct":           item.IsCorrect,
		"score":                item.Score,
		"needs_manual_grading": item.NeedsManualGrading,
		"duration_seconds":     item.DurationSeconds,
		"submitted_at":         item.SubmittedAt,
	}
	result := r.DB.WithContext(ctx).Model(&model.ExamAttemptItem{}).
		Where("id = ? AND submitted_at IS NULL", item.ID).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// ApplyItemSubmission 作答计入考试：客观分累加，主观题标记待批改
func (r *ExamRepository) ApplyItemSubmission(ctx context.Context, attempt *model.ExamAttempt, objectiveDelta float64, needsManual bool) error {
	fields := map[string]interface{}{}
	if objectiveDelta != 0 {
		fields["objective_score"] = gorm.Expr("objective_score + ?", objectiveDelta)
	}
	if needsManual {
		fields["needs_manual_grading"] = true
	}
	return updateWithVersion(r.DB.WithContext(ctx).Where("status = ?", model.ExamAttemptActive),
		&model.ExamAttempt{}, attempt.ID, attempt.Version, fields)
}

// GradingSummary 主观题批改汇总
type GradingSummary struct {
	SubjectiveScore float64
	Ungraded        int64
}

func (r *ExamRepository) SummarizeGrading(ctx context.Context, attemptID uint) (GradingSummary, error) {
	var summary GradingSummary
	db := r.DB.WithContext(ctx)

	if err := db.Model(&model.ExamAttemptItem{}).
		Where("attempt_id = ? AND needs_manual_grading = ? AND score IS NOT NULL", attemptID, true).
		Select("COALESCE(SUM(score), 0)").
		Scan(&summary.SubjectiveScore).Error; err != nil {
		return summary, err
	}

	if err := db.Model(&model.ExamAttemptItem{}).
		Where("attempt_id = ? AND needs_manual_grading = ? AND score IS NULL", attemptID, true).
		Count(&summary.Ungraded).Error; err != nil {
		return summary, err
	}
	return summary, nil
}

// FinishAttempt 结束作答，status 条件保证同一作答只会被结束一次
func (r *ExamRepository) FinishAttempt(ctx context.Context, attempt *model.ExamAttempt) error {
	return updateWithVersion(r.DB.WithContext(ctx).Where("status = ?", model.ExamAttemptActive),
		&model.ExamAttempt{}, attempt.ID, attempt.Version, map[string]interface{}{
			"status":               attempt.Status,
			"finished_at":          attempt.FinishedAt,
			"duration_seconds":     attempt.DurationSeconds,
			"subjective_score":     attempt.SubjectiveScore,
			"total_score":          attempt.TotalScore,
			"needs_manual_grading": attempt.NeedsManualGrading,
		})
}

// GradeItem 写入人工评分，允许对已评分项重新评分
func (r *ExamRepository) GradeItem(ctx context.Context, itemID uint, score float64, isCorrect bool, gradedAt time.Time) error {
	result := r.DB.WithContext(ctx).Model(&model.ExamAttemptItem{}).
		Where("id = ? AND needs_manual_grading = ?", itemID, true).
		Updates(map[string]interface{}{
			"score":      score,
			"is_correct": isCorrect,
			"graded_at":  gradedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateGradingState 批改后刷新作答的主观分与总分
func (r *ExamRepository) UpdateGradingState(ctx context.Context, attempt *model.ExamAttempt) error {
	return updateWithVersion(r.DB.WithContext(ctx), &model.ExamAttempt{}, attempt.ID, attempt.Version, map[string]interface{}{
		"subjective_score":     attempt.SubjectiveScore,
		"total_score":          attempt.TotalScore,
		"needs_manual_grading": attempt.NeedsManualGrading,
	})
}

// ActiveAttemptRow 超时扫描用，带上试卷时长
type ActiveAttemptRow struct {
	ID              uint
	StartedAt       time.Time
	DurationMinutes int
}

// ListActiveAttempts 按 id 游标分页读取进行中的作答
func (r *ExamRepository) ListActiveAttempts(ctx context.Context, afterID uint, limit int) ([]ActiveAttemptRow, error) {
	var rows []ActiveAttemptRow
	err := r.DB.WithContext(ctx).
		Table("exam_attempts").
		Select("exam_attempts.id, exam_attempts.started_at, exam_papers.duration_minutes").
		Joins("JOIN exam_papers ON exam_papers.id = exam_attempts.paper_id").
		Where("exam_attempts.status = ? AND exam_attempts.id > ? AND exam_attempts.deleted_at IS NULL", model.ExamAttemptActive, afterID).
		Order("exam_attempts.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
