package repository

import (
	"context"
	"edu_practice_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type PracticeRepository struct {
	DB *gorm.DB
}

func NewPracticeRepository(db *gorm.DB) *PracticeRepository {
	return &PracticeRepository{DB: db}
}

// CreateSession 会话与题目一起写入
func (r *PracticeRepository) CreateSession(ctx context.Context, session *model.PracticeSession) error {
	return r.DB.WithContext(ctx).Create(session).Error
}

func (r *PracticeRepository) FindSession(ctx context.Context, id uint) (*model.PracticeSession, error) {
	var session model.PracticeSession
	err := r.DB.WithContext(ctx).First(&session, id).Error
	return &session, err
}

func (r *PracticeRepository) FindSessionWithItems(ctx context.Context, id uint) (*model.PracticeSession, error) {
	var session model.PracticeSession
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&session, id).Error
	return &session, err
}

func (r *PracticeRepository) FindItem(ctx context.Context, sessionID uint, seq int) (*model.PracticeSessionItem, error) {
	var item model.PracticeSessionItem
	err := r.DB.WithContext(ctx).Where("session_id = ? AND seq = ?", sessionID, seq).First(&item).Error
	return &item, err
}

// TransitionItem 仅当题目仍处于 pending 时才会更新，返回是否命中
func (r *PracticeRepository) TransitionItem(ctx context.Context, itemID uint, to model.PracticeItemStatus, at time.Time) (bool, error) {
	fields := map[string]interface{}{"status": to}
	if to == model.PracticeItemAnswered {
		fields["answered_at"] = at
	}
	result := r.DB.WithContext(ctx).Model(&model.PracticeSessionItem{}).
		Where("id = ? AND status = ?", itemID, model.PracticeItemPending).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// RecordAnswer 计数器自增，要求会话仍为 active 且版本号一致
func (r *PracticeRepository) RecordAnswer(ctx context.Context, s *model.PracticeSession, correct bool) error {
	fields := map[string]interface{}{
		"answered_count": gorm.Expr("answered_count + ?", 1),
	}
	if correct {
		fields["correct_count"] = gorm.Expr("correct_count + ?", 1)
	}
	return updateWithVersion(r.DB.WithContext(ctx).Where("status = ?", model.PracticeSessionActive),
		&model.PracticeSession{}, s.ID, s.Version, fields)
}

// TouchSession 仅推进版本号，用于跳过题目等不改变计数的操作
func (r *PracticeRepository) TouchSession(ctx context.Context, s *model.PracticeSession) error {
	return updateWithVersion(r.DB.WithContext(ctx).Where("status = ?", model.PracticeSessionActive),
		&model.PracticeSession{}, s.ID, s.Version, map[string]interface{}{})
}

func (r *PracticeRepository) FinishSession(ctx context.Context, s *model.PracticeSession, status model.PracticeSessionStatus, endedAt time.Time) error {
	return updateWithVersion(r.DB.WithContext(ctx).Where("status = ?", model.PracticeSessionActive),
		&model.PracticeSession{}, s.ID, s.Version, map[string]interface{}{
			"status":   status,
			"ended_at": endedAt,
		})
}

func (r *PracticeRepository) CountItemsByStatus(ctx context.Context, sessionID uint, status model.PracticeItemStatus) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.PracticeSessionItem{}).
		Where("session_id = ? AND status = ?", sessionID, status).
		Count(&count).Error
	return count, err
}

func (r *PracticeRepository) CreateRecord(ctx context.Context, record *model.PracticeRecord) error {
	return r.DB.WithContext(ctx).Create(record).Error
}

func (r *PracticeRepository) FindRecord(ctx context.Context, id uint) (*model.PracticeRecord, error) {
	var record model.PracticeRecord
	err := r.DB.WithContext(ctx).First(&record, id).Error
	return &record, err
}

func (r *PracticeRepository) FindRecordByItem(ctx context.Context, itemID uint) (*model.PracticeRecord, error) {
	var record model.PracticeRecord
	err := r.DB.WithContext(ctx).Where("item_id = ?", itemID).First(&record).Error
	return &record, err
}

// ApplyGrade 人工批改结果回写练习记录，重复批改会覆盖上一次的结果
func (r *PracticeRepository) ApplyGrade(ctx context.Context, recordID uint, score float64, isPassed bool, feedback string) error {
	result := r.DB.WithContext(ctx).Model(&model.PracticeRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"score":            score,
			"is_passed":        isPassed,
			"is_correct":       isPassed,
			"grading_feedback": feedback,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
