package service

import (
	"context"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/util"
	"edu_practice_backend/pkg/logger"
	"edu_practice_backend/pkg/monitoring"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ManualGradingService struct {
	DB       *gorm.DB
	Repo     *repository.GradingTaskRepository
	Exams    *ExamAttemptService
	Outcomes OutcomeSink
	// 未显式给出 isPassed 时，分数大于该值视为通过
	PassThreshold float64
	Now           func() time.Time
}

func NewManualGradingService(db *gorm.DB, exams *ExamAttemptService, outcomes OutcomeSink, passThreshold float64) *ManualGradingService {
	return &ManualGradingService{
		DB:            db,
		Repo:          repository.NewGradingTaskRepository(db),
		Exams:         exams,
		Outcomes:      outcomes,
		PassThreshold: passThreshold,
		Now:           time.Now,
	}
}

type ClaimTaskReq struct {
	AssigneeID uint `json:"assigneeId"`
}

type SubmitGradeReq struct {
	Score    float64  `json:"score" binding:"gte=0"`
	IsPassed *bool    `json:"isPassed"`
	Feedback string   `json:"feedback" binding:"max=2000"`
	Tags     []string `json:"tags"`
}

type ReopenTaskReq struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

func taskNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrTaskNotFound
	}
	return err
}

// Claim 领取批改任务。同一批改人重复领取直接返回，他人已领取时返回 util.ErrAlreadyAssigned。
func (s *ManualGradingService) Claim(ctx context.Context, taskID, assigneeID uint) (*model.ManualGradingTask, error) {
	var claimed *model.ManualGradingTask
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		task, err := s.Repo.FindByID(ctx, taskID)
		if err != nil {
			return taskNotFound(err)
		}

		switch task.Status {
		case model.GradingTaskAssigned:
			if task.AssigneeID != nil && *task.AssigneeID == assigneeID {
				claimed = task
				return nil
			}
			return util.ErrAlreadyAssigned
		case model.GradingTaskDone:
			return fmt.Errorf("%w: task %d is already graded", util.ErrInvalidState, task.ID)
		}

		now := nowOrDefault(s.Now)()
		if err := s.Repo.Update(ctx, task, task.Status, map[string]interface{}{
			"status":      model.GradingTaskAssigned,
			"assignee_id": assigneeID,
			"assigned_at": now,
		}); err != nil {
			return err
		}
		task.Status = model.GradingTaskAssigned
		task.AssigneeID = &assigneeID
		task.AssignedAt = &now
		task.Version++
		claimed = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.GradingTransitions.WithLabelValues(string(model.GradingTaskAssigned)).Inc()
	return claimed, nil
}

// SubmitGrade 提交评分。未领取的任务也可以直接评分；评分在同一事务中回写到练习记录或考试作答项。
// 复习结果只在任务首次完成时发出，重开后的再次评分只修正分数，不再推进错题本。
func (s *ManualGradingService) SubmitGrade(ctx context.Context, taskID, graderID uint, req SubmitGradeReq) (*model.ManualGradingTask, error) {
	if req.Score < 0 {
		return nil, fmt.Errorf("%w: score must not be negative", util.ErrInvalidScore)
	}
	isPassed := req.Score > s.PassThreshold
	if req.IsPassed != nil {
		isPassed = *req.IsPassed
	}

	var (
		graded          *model.ManualGradingTask
		firstCompletion bool
	)
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		now := nowOrDefault(s.Now)()
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := repository.NewGradingTaskRepository(tx)

			task, err := repo.FindByID(ctx, taskID)
			if err != nil {
				return taskNotFound(err)
			}
			if task.Status == model.GradingTaskDone {
				return fmt.Errorf("%w: task %d is already graded", util.ErrInvalidState, task.ID)
			}
			if task.Status == model.GradingTaskAssigned && task.AssigneeID != nil && *task.AssigneeID != graderID {
				return util.ErrAlreadyAssigned
			}
			firstCompletion = task.SubmittedAt == nil

			if err := s.propagateGrade(ctx, tx, task, req.Score, isPassed, req.Feedback); err != nil {
				return err
			}

			fields := map[string]interface{}{
				"status":       model.GradingTaskDone,
				"score":        req.Score,
				"is_passed":    isPassed,
				"feedback":     req.Feedback,
				"tags":         datatypes.JSONSlice[string](req.Tags),
				"submitted_at": now,
			}
			if task.AssigneeID == nil {
				fields["assignee_id"] = graderID
				fields["assigned_at"] = now
			}
			if err := repo.Update(ctx, task, task.Status, fields); err != nil {
				return err
			}

			updated, err := repo.FindByID(ctx, task.ID)
			if err != nil {
				return err
			}
			graded = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	monitoring.GradingTransitions.WithLabelValues(string(model.GradingTaskDone)).Inc()
	logger.Log.Info("grading task submitted",
		zap.Uint("taskID", graded.ID),
		zap.Uint("graderID", graderID),
		zap.Float64("score", req.Score),
		zap.Bool("isPassed", isPassed),
		zap.Bool("regrade", !firstCompletion),
	)

	if !firstCompletion {
		return graded, nil
	}
	emitOutcome(ctx, s.Outcomes, model.SubmissionOutcome{
		StudentID:  graded.StudentID,
		QuestionID: graded.QuestionID,
		IsCorrect:  isPassed,
		At:         *graded.SubmittedAt,
		Source:     "grading",
	})
	return graded, nil
}

// propagateGrade 评分回写到来源作答
func (s *ManualGradingService) propagateGrade(ctx context.Context, tx *gorm.DB, task *model.ManualGradingTask, score float64, isPassed bool, feedback string) error {
	switch task.SourceType {
	case model.GradingSourcePractice:
		if task.PracticeRecordID == nil {
			return fmt.Errorf("%w: task %d has no practice record", util.ErrInvalidState, task.ID)
		}
		question, err := repository.NewQuestionRepository(tx).FindByID(ctx, task.QuestionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrQuestionNotFound
			}
			return err
		}
		if question.FullScore > 0 && score > question.FullScore {
			return fmt.Errorf("%w: %.2f not in [0, %.2f]", util.ErrInvalidScore, score, question.FullScore)
		}
		return repository.NewPracticeRepository(tx).ApplyGrade(ctx, *task.PracticeRecordID, score, isPassed, feedback)

	case model.GradingSourceExam:
		if task.ExamAttemptID == nil || task.ExamAttemptItemID == nil {
			return fmt.Errorf("%w: task %d has no exam item", util.ErrInvalidState, task.ID)
		}
		_, err := s.Exams.gradeItemTx(ctx, tx, *task.ExamAttemptID, *task.ExamAttemptItemID, score)
		return err
	}
	return fmt.Errorf("%w: unknown grading source %q", util.ErrInvalidState, task.SourceType)
}

// Reopen 重新打开已完成的任务，保留上一次的评分直到再次提交
func (s *ManualGradingService) Reopen(ctx context.Context, taskID uint, reason string) (*model.ManualGradingTask, error) {
	var reopened *model.ManualGradingTask
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		task, err := s.Repo.FindByID(ctx, taskID)
		if err != nil {
			return taskNotFound(err)
		}
		if task.Status != model.GradingTaskDone {
			return fmt.Errorf("%w: only graded tasks can be reopened, task %d is %s", util.ErrInvalidState, task.ID, task.Status)
		}

		now := nowOrDefault(s.Now)()
		if err := s.Repo.Update(ctx, task, model.GradingTaskDone, map[string]interface{}{
			"status":        model.GradingTaskReopen,
			"assignee_id":   nil,
			"assigned_at":   nil,
			"reopen_reason": reason,
			"reopened_at":   now,
		}); err != nil {
			return err
		}
		task.Status = model.GradingTaskReopen
		task.AssigneeID = nil
		task.AssignedAt = nil
		task.ReopenReason = reason
		task.ReopenedAt = &now
		task.Version++
		reopened = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.GradingTransitions.WithLabelValues(string(model.GradingTaskReopen)).Inc()
	return reopened, nil
}

func (s *ManualGradingService) GetTask(ctx context.Context, taskID uint) (*model.ManualGradingTask, error) {
	task, err := s.Repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, taskNotFound(err)
	}
	return task, nil
}

func (s *ManualGradingService) ListTasks(ctx context.Context, status model.GradingTaskStatus, limit int) ([]model.ManualGradingTask, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	switch status {
	case "", model.GradingTaskPending, model.GradingTaskAssigned, model.GradingTaskDone, model.GradingTaskReopen:
	default:
		return nil, fmt.Errorf("%w: unknown task status %q", util.ErrInvalidRequest, status)
	}
	return s.Repo.List(ctx, status, limit)
}
