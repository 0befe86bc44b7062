package service

import (
	"context"
	"edu_practice_backend/internal/grader"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/util"
	"edu_practice_backend/pkg/logger"
	"edu_practice_backend/pkg/monitoring"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExamAttemptService struct {
	DB        *gorm.DB
	Repo      *repository.ExamRepository
	Questions QuestionSource
	Outcomes  OutcomeSink
	// 人工评分大于该值视为答对
	PassThreshold float64
	Now           func() time.Time
}

func NewExamAttemptService(db *gorm.DB, questions QuestionSource, outcomes OutcomeSink, passThreshold float64) *ExamAttemptService {
	return &ExamAttemptService{
		DB:            db,
		Repo:          repository.NewExamRepository(db),
		Questions:     questions,
		Outcomes:      outcomes,
		PassThreshold: passThreshold,
		Now:           time.Now,
	}
}

type StartAttemptReq struct {
	PaperID uint `json:"paperId" binding:"required"`
}

type SubmitExamItemReq struct {
	Answer   json.RawMessage `json:"answer" binding:"required"`
	Duration int             `json:"duration" binding:"gte=0"`
}

type SubmitExamItemResult struct {
	Item               *model.ExamAttemptItem `json:"item"`
	IsCorrect          *bool                  `json:"isCorrect,omitempty"`
	Score              *float64               `json:"score,omitempty"`
	NeedsManualGrading bool                   `json:"needsManualGrading"`
}

func attemptNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrAttemptNotFound
	}
	return err
}

func (s *ExamAttemptService) loadOwnedAttempt(ctx context.Context, studentID, attemptID uint) (*model.ExamAttempt, error) {
	attempt, err := s.Repo.FindAttempt(ctx, attemptID)
	if err != nil {
		return nil, attemptNotFound(err)
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

// expired 作答时长达到试卷时长即视为超时
func expired(attempt *model.ExamAttempt, paper *model.ExamPaper, now time.Time) bool {
	return !now.Before(attempt.StartedAt.Add(paper.Duration()))
}

// StartAttempt 开始考试。已有未超时的作答时直接返回（断点续答），已超时的先结束再新建。
func (s *ExamAttemptService) StartAttempt(ctx context.Context, studentID, paperID uint) (*model.ExamAttempt, error) {
	// 1. 检查试卷状态
	paper, err := s.Repo.FindPaperWithItems(ctx, paperID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrPaperNotFound
		}
		return nil, err
	}
	if paper.Status != model.ExamPaperPublished {
		return nil, util.ErrPaperNotPublished
	}
	if len(paper.Items) == 0 {
		return nil, util.ErrEmptyQuestionPool
	}

	now := nowOrDefault(s.Now)()

	// 2. 检查是否有进行中的作答
	existing, err := s.Repo.FindActiveAttempt(ctx, studentID, paperID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		if !expired(existing, paper, now) {
			return s.Repo.FindAttemptWithItems(ctx, existing.ID)
		}
		if _, err := s.FinishAttempt(ctx, existing.ID, model.ExamAttemptTimeout); err != nil && !errors.Is(err, util.ErrInvalidState) {
			return nil, err
		}
	}

	// 3. 创建作答并快照每题满分
	attempt := &model.ExamAttempt{
		PaperID:   paperID,
		StudentID: studentID,
		Status:    model.ExamAttemptActive,
		StartedAt: now,
		Version:   1,
	}
	for _, pi := range paper.Items {
		attempt.Items = append(attempt.Items, model.ExamAttemptItem{
			PaperItemID: pi.ID,
			QuestionID:  pi.QuestionID,
			Seq:         pi.Seq,
			FullScore:   pi.Score,
		})
	}
	if err := s.Repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	logger.Log.Info("exam attempt started",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("paperID", paperID),
		zap.Uint("studentID", studentID),
	)
	return attempt, nil
}

// SubmitItem 提交单题作答，每题只能提交一次
func (s *ExamAttemptService) SubmitItem(ctx context.Context, studentID, attemptID, paperItemID uint, req SubmitExamItemReq) (*SubmitExamItemResult, error) {
	attempt, err := s.loadOwnedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.IsTerminal() {
		return nil, fmt.Errorf("%w: attempt %d is %s", util.ErrInvalidState, attempt.ID, attempt.Status)
	}

	paper, err := s.Repo.FindPaper(ctx, attempt.PaperID)
	if err != nil {
		return nil, err
	}
	if expired(attempt, paper, nowOrDefault(s.Now)()) {
		// 超时后的提交顺带结束作答
		if _, err := s.FinishAttempt(ctx, attempt.ID, model.ExamAttemptTimeout); err != nil && !errors.Is(err, util.ErrInvalidState) {
			logger.Log.Error("failed to time out attempt on late submit", zap.Uint("attemptID", attempt.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: attempt %d exceeded its time limit", util.ErrInvalidState, attempt.ID)
	}

	item, err := s.Repo.FindAttemptItem(ctx, attemptID, paperItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}
	if item.SubmittedAt != nil {
		return nil, util.ErrAlreadySubmitted
	}

	question, err := s.Questions.GetQuestion(ctx, item.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	key, err := grader.KeyForQuestion(question)
	if err != nil {
		return nil, err
	}
	graded, err := grader.Grade(key, req.Answer)
	if err != nil {
		return nil, err
	}

	var submitted *model.ExamAttemptItem
	_, err = retryOnConflict(ctx, defaultConflictRetries, func() error {
		now := nowOrDefault(s.Now)()
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := repository.NewExamRepository(tx)

			current, err := repo.FindAttempt(ctx, attemptID)
			if err != nil {
				return attemptNotFound(err)
			}
			if current.IsTerminal() {
				return fmt.Errorf("%w: attempt %d is %s", util.ErrInvalidState, current.ID, current.Status)
			}

			it, err := repo.FindAttemptItemByID(ctx, item.ID)
			if err != nil {
				return err
			}
			if it.SubmittedAt != nil {
				return util.ErrAlreadySubmitted
			}

			it.SubmittedAnswer = datatypes.JSON(req.Answer)
			it.DurationSeconds = req.Duration
			it.SubmittedAt = &now
			objectiveDelta := 0.0
			if graded.NeedsManual {
				it.NeedsManualGrading = true
			} else {
				score := 0.0
				if graded.Correct() {
					score = it.FullScore
				}
				it.IsCorrect = graded.IsCorrect
				it.Score = &score
				objectiveDelta = score
			}

			ok, err := repo.SubmitItem(ctx, it)
			if err != nil {
				return err
			}
			if !ok {
				return util.ErrAlreadySubmitted
			}
			if err := repo.ApplyItemSubmission(ctx, current, objectiveDelta, graded.NeedsManual); err != nil {
				return err
			}

			if graded.NeedsManual {
				attemptRef, itemRef := current.ID, it.ID
				task := &model.ManualGradingTask{
					SourceType:        model.GradingSourceExam,
					ExamAttemptID:     &attemptRef,
					ExamAttemptItemID: &itemRef,
					StudentID:         current.StudentID,
					QuestionID:        it.QuestionID,
					Status:            model.GradingTaskPending,
					Version:           1,
				}
				if err := repository.NewGradingTaskRepository(tx).Create(ctx, task); err != nil {
					return err
				}
			}
			submitted = it
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	monitoring.ExamSubmissions.WithLabelValues(monitoring.ResultLabel(graded.IsCorrect)).Inc()

	if graded.IsCorrect != nil {
		emitOutcome(ctx, s.Outcomes, model.SubmissionOutcome{
			StudentID:  studentID,
			QuestionID: submitted.QuestionID,
			IsCorrect:  *graded.IsCorrect,
			At:         *submitted.SubmittedAt,
			Source:     "exam",
		})
	}

	return &SubmitExamItemResult{
		Item:               submitted,
		IsCorrect:          submitted.IsCorrect,
		Score:              submitted.Score,
		NeedsManualGrading: submitted.NeedsManualGrading,
	}, nil
}

// FinishAttempt 结束作答（学生交卷或超时）。只有 active 状态可以结束，并发结束时只有一方成功。
func (s *ExamAttemptService) FinishAttempt(ctx context.Context, attemptID uint, reason model.ExamAttemptStatus) (*model.ExamAttempt, error) {
	if reason != model.ExamAttemptCompleted && reason != model.ExamAttemptTimeout {
		return nil, fmt.Errorf("%w: finish reason must be completed or timeout", util.ErrInvalidRequest)
	}

	var finished *model.ExamAttempt
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := repository.NewExamRepository(tx)

			attempt, err := repo.FindAttempt(ctx, attemptID)
			if err != nil {
				return attemptNotFound(err)
			}
			if attempt.IsTerminal() {
				return fmt.Errorf("%w: attempt %d is already %s", util.ErrInvalidState, attempt.ID, attempt.Status)
			}

			summary, err := repo.SummarizeGrading(ctx, attempt.ID)
			if err != nil {
				return err
			}

			now := nowOrDefault(s.Now)()
			attempt.Status = reason
			attempt.FinishedAt = &now
			attempt.DurationSeconds = int(now.Sub(attempt.StartedAt).Seconds())
			applyGradingSummary(attempt, summary)

			if err := repo.FinishAttempt(ctx, attempt); err != nil {
				return err
			}
			attempt.Version++
			finished = attempt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	monitoring.ExamAttemptsFinished.WithLabelValues(string(reason)).Inc()
	logger.Log.Info("exam attempt finished",
		zap.Uint("attemptID", attemptID),
		zap.String("status", string(reason)),
		zap.Bool("needsManualGrading", finished.NeedsManualGrading),
	)
	return finished, nil
}

// applyGradingSummary 所有主观题批改完成前总分保持为空
func applyGradingSummary(attempt *model.ExamAttempt, summary repository.GradingSummary) {
	attempt.SubjectiveScore = summary.SubjectiveScore
	attempt.NeedsManualGrading = summary.Ungraded > 0
	if attempt.IsTerminal() && !attempt.NeedsManualGrading {
		total := attempt.ObjectiveScore + attempt.SubjectiveScore
		attempt.TotalScore = &total
	} else {
		attempt.TotalScore = nil
	}
}

// FinishByStudent 学生交卷；超过时限的交卷按超时处理
func (s *ExamAttemptService) FinishByStudent(ctx context.Context, studentID, attemptID uint) (*model.ExamAttempt, error) {
	attempt, err := s.loadOwnedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.IsTerminal() {
		return nil, fmt.Errorf("%w: attempt %d is already %s", util.ErrInvalidState, attempt.ID, attempt.Status)
	}

	reason := model.ExamAttemptCompleted
	paper, err := s.Repo.FindPaper(ctx, attempt.PaperID)
	if err != nil {
		return nil, err
	}
	if expired(attempt, paper, nowOrDefault(s.Now)()) {
		reason = model.ExamAttemptTimeout
	}
	return s.FinishAttempt(ctx, attemptID, reason)
}

// GradeItem 人工评分一道主观题
func (s *ExamAttemptService) GradeItem(ctx context.Context, attemptID, itemID uint, score float64) (*model.ExamAttempt, error) {
	var graded *model.ExamAttempt
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			attempt, err := s.gradeItemTx(ctx, tx, attemptID, itemID, score)
			graded = attempt
			return err
		})
	})
	return graded, err
}

// gradeItemTx 在调用方的事务中评分，供批改任务提交时复用
func (s *ExamAttemptService) gradeItemTx(ctx context.Context, tx *gorm.DB, attemptID, itemID uint, score float64) (*model.ExamAttempt, error) {
	repo := repository.NewExamRepository(tx)

	item, err := repo.FindAttemptItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}
	if item.AttemptID != attemptID {
		return nil, util.ErrItemNotFound
	}
	if !item.NeedsManualGrading {
		return nil, fmt.Errorf("%w: item %d does not need manual grading", util.ErrInvalidState, item.ID)
	}
	if score < 0 || score > item.FullScore {
		return nil, fmt.Errorf("%w: %.2f not in [0, %.2f]", util.ErrInvalidScore, score, item.FullScore)
	}

	now := nowOrDefault(s.Now)()
	if err := repo.GradeItem(ctx, item.ID, score, score > s.PassThreshold, now); err != nil {
		return nil, err
	}

	attempt, err := repo.FindAttempt(ctx, attemptID)
	if err != nil {
		return nil, attemptNotFound(err)
	}
	summary, err := repo.SummarizeGrading(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	applyGradingSummary(attempt, summary)
	if err := repo.UpdateGradingState(ctx, attempt); err != nil {
		return nil, err
	}
	attempt.Version++
	return attempt, nil
}

func (s *ExamAttemptService) GetAttempt(ctx context.Context, studentID, attemptID uint) (*model.ExamAttempt, error) {
	attempt, err := s.Repo.FindAttemptWithItems(ctx, attemptID)
	if err != nil {
		return nil, attemptNotFound(err)
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}
