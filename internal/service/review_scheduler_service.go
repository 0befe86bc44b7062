package service

import (
	"context"
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/util"
	"edu_practice_backend/pkg/logger"
	"edu_practice_backend/pkg/monitoring"
	"edu_practice_backend/pkg/tracing"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultReviewIntervals 复习间隔（天），下标即复习等级
var DefaultReviewIntervals = []int{1, 2, 4, 7, 15, 30}

// ReviewTaskStore 每日复习任务存储
type ReviewTaskStore interface {
	UpsertDailyTasks(ctx context.Context, tasks []model.ReviewDailyTask) (int64, error)
	Complete(ctx context.Context, runDate string, studentID, wrongBookID uint, at time.Time) (bool, error)
	ListByDate(ctx context.Context, runDate string, studentID uint) ([]model.ReviewDailyTask, error)
}

type ReviewSchedulerService struct {
	WrongBooks  *repository.WrongBookRepository
	Tasks       ReviewTaskStore
	Intervals   []int
	BatchSize   int
	MaxAttempts int
	Now         func() time.Time
}

func NewReviewSchedulerService(wrongBooks *repository.WrongBookRepository, tasks ReviewTaskStore, cfg config.ReviewConfig) *ReviewSchedulerService {
	intervals := cfg.IntervalsDays
	if len(intervals) == 0 {
		intervals = DefaultReviewIntervals
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &ReviewSchedulerService{
		WrongBooks:  wrongBooks,
		Tasks:       tasks,
		Intervals:   intervals,
		BatchSize:   batch,
		MaxAttempts: cfg.MaxAttempts,
		Now:         time.Now,
	}
}

// DailyGenerationResult 每日任务生成结果
type DailyGenerationResult struct {
	RunDate        string `json:"runDate"`
	GeneratedCount int64  `json:"generatedCount"`
	Attempts       int    `json:"attempts"`
}

func (s *ReviewSchedulerService) nextReviewAt(level int, when time.Time) time.Time {
	return when.AddDate(0, 0, s.Intervals[level])
}

// RecordSubmissionOutcome 实现 OutcomeSink
func (s *ReviewSchedulerService) RecordSubmissionOutcome(ctx context.Context, outcome model.SubmissionOutcome) error {
	at := outcome.At
	if at.IsZero() {
		at = nowOrDefault(s.Now)()
	}
	_, err := s.RecordOutcome(ctx, outcome.StudentID, outcome.QuestionID, outcome.IsCorrect, at)
	return err
}

// RecordOutcome 根据作答结果更新错题本。
// 答错：等级归零并在 1 个间隔后复习；答对且已有条目：等级 +1，超过最后一级即掌握；答对且无条目：不做任何事。
// 返回更新后的条目，无条目时返回 nil。
func (s *ReviewSchedulerService) RecordOutcome(ctx context.Context, studentID, questionID uint, isCorrect bool, when time.Time) (*model.WrongBook, error) {
	var result *model.WrongBook

	_, err := retryOnConflict(ctx, s.MaxAttempts, func() error {
		result = nil
		wb, err := s.WrongBooks.Find(ctx, studentID, questionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if isCorrect {
				return nil
			}
			next := s.nextReviewAt(0, when)
			wrong := false
			created := &model.WrongBook{
				StudentID:        studentID,
				QuestionID:       questionID,
				WrongCount:       1,
				ReviewLevel:      0,
				NextReviewAt:     &next,
				LastReviewResult: &wrong,
				LastWrongAt:      &when,
				Version:          1,
			}
			ok, err := s.WrongBooks.CreateIfAbsent(ctx, created)
			if err != nil {
				return err
			}
			if !ok {
				// 并发创建，重读后按已有条目处理
				return util.ErrConcurrentModification
			}
			result = created
			return nil
		}

		fields := s.transition(wb, isCorrect, when)
		if fields == nil {
			result = wb
			return nil
		}
		if err := s.WrongBooks.Update(ctx, wb, fields); err != nil {
			return err
		}
		updated, err := s.WrongBooks.FindByID(ctx, wb.ID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result != nil {
		runDate := when.Format(util.DateFormat)
		if _, err := s.Tasks.Complete(ctx, runDate, studentID, result.ID, when); err != nil {
			logger.Log.Warn("failed to complete review daily task",
				zap.Uint("wrongBookID", result.ID),
				zap.String("runDate", runDate),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

// transition 计算错题本条目的变更字段，nil 表示无需写入
func (s *ReviewSchedulerService) transition(wb *model.WrongBook, isCorrect bool, when time.Time) map[string]interface{} {
	if !isCorrect {
		return map[string]interface{}{
			"review_level":       0,
			"next_review_at":     s.nextReviewAt(0, when),
			"wrong_count":        gorm.Expr("wrong_count + ?", 1),
			"last_wrong_at":      when,
			"last_review_result": false,
			"last_reviewed_at":   when,
			"is_mastered":        false,
		}
	}

	if wb.IsMastered {
		// 已掌握的题不再推进等级
		return map[string]interface{}{
			"last_review_result": true,
			"last_reviewed_at":   when,
		}
	}

	level := wb.ReviewLevel + 1
	fields := map[string]interface{}{
		"review_level":       level,
		"last_review_result": true,
		"last_reviewed_at":   when,
	}
	if level >= len(s.Intervals) {
		fields["is_mastered"] = true
		fields["next_review_at"] = nil
	} else {
		fields["next_review_at"] = s.nextReviewAt(level, when)
	}
	return fields
}

// GenerateDailyTasks 为到期未掌握的错题生成当天的复习任务，可重复执行。
// 遇到冲突时整轮重试，超过最大次数返回 util.ErrReviewGenerationConflict。
func (s *ReviewSchedulerService) GenerateDailyTasks(ctx context.Context, runDate time.Time) (*DailyGenerationResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "review.generate_daily_tasks")
	defer span.End()

	y, m, d := runDate.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, runDate.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	result := &DailyGenerationResult{RunDate: dayStart.Format(util.DateFormat)}

	attempts, err := retryOnConflict(ctx, s.MaxAttempts, func() error {
		var afterID uint
		for {
			batch, err := s.WrongBooks.ListDue(ctx, dayEnd, afterID, s.BatchSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}

			tasks := make([]model.ReviewDailyTask, 0, len(batch))
			for _, wb := range batch {
				tasks = append(tasks, model.ReviewDailyTask{
					RunDate:          result.RunDate,
					StudentID:        wb.StudentID,
					WrongBookID:      wb.ID,
					QuestionID:       wb.QuestionID,
					DueAt:            *wb.NextReviewAt,
					Status:           model.ReviewTaskPending,
					WrongBookVersion: wb.Version,
				})
			}

			inserted, err := s.Tasks.UpsertDailyTasks(ctx, tasks)
			if err != nil {
				return err
			}
			// 冲突的批次整体回滚，重试时按最新的错题本重新生成
			result.GeneratedCount += inserted
			afterID = batch[len(batch)-1].ID

			if len(batch) < s.BatchSize {
				return nil
			}
		}
	})
	result.Attempts = attempts
	span.SetAttributes(
		attribute.String("run_date", result.RunDate),
		attribute.Int64("generated", result.GeneratedCount),
		attribute.Int("attempts", attempts),
	)
	monitoring.ReviewTasksGenerated.Add(float64(result.GeneratedCount))

	if err != nil {
		if errors.Is(err, util.ErrConcurrentModification) {
			monitoring.ReviewGenerationConflicts.Inc()
			return result, fmt.Errorf("%w: run date %s after %d attempts", util.ErrReviewGenerationConflict, result.RunDate, attempts)
		}
		return result, err
	}

	logger.Log.Info("review daily tasks generated",
		zap.String("runDate", result.RunDate),
		zap.Int64("generated", result.GeneratedCount),
		zap.Int("attempts", attempts),
	)
	return result, nil
}

// CompleteDailyTask 标记当天的复习任务完成，不影响错题本本身
func (s *ReviewSchedulerService) CompleteDailyTask(ctx context.Context, studentID, wrongBookID uint, day time.Time) (bool, error) {
	return s.Tasks.Complete(ctx, day.Format(util.DateFormat), studentID, wrongBookID, nowOrDefault(s.Now)())
}

// DueEntries 学生当前到期的错题，供复习模式组卷
func (s *ReviewSchedulerService) DueEntries(ctx context.Context, studentID uint, asOf time.Time, limit int) ([]model.WrongBook, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.WrongBooks.ListDueForStudent(ctx, studentID, asOf, limit)
}

func (s *ReviewSchedulerService) ListDailyTasks(ctx context.Context, runDate time.Time, studentID uint) ([]model.ReviewDailyTask, error) {
	return s.Tasks.ListByDate(ctx, runDate.Format(util.DateFormat), studentID)
}
