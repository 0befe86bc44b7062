package service

import (
	"context"
	"edu_practice_backend/internal/config"
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

// DueReviewSource 复习模式的题目来源
type DueReviewSource interface {
	DueEntries(ctx context.Context, studentID uint, asOf time.Time, limit int) ([]model.WrongBook, error)
}

type PracticeSessionService struct {
	DB        *gorm.DB
	Repo      *repository.PracticeRepository
	Questions QuestionSource
	Reviews   DueReviewSource
	Outcomes  OutcomeSink
	Cfg       config.PracticeConfig
	Now       func() time.Time
}

func NewPracticeSessionService(db *gorm.DB, questions QuestionSource, reviews DueReviewSource, outcomes OutcomeSink, cfg config.PracticeConfig) *PracticeSessionService {
	return &PracticeSessionService{
		DB:        db,
		Repo:      repository.NewPracticeRepository(db),
		Questions: questions,
		Reviews:   reviews,
		Outcomes:  outcomes,
		Cfg:       cfg,
		Now:       time.Now,
	}
}

type CreatePracticeSessionReq struct {
	Mode   model.PracticeMode   `json:"mode" binding:"required,oneof=random category knowledge review"`
	Config model.PracticeFilter `json:"config"`
	Count  int                  `json:"count" binding:"omitempty,min=1"`
}

type SubmitPracticeAnswerReq struct {
	Answer   json.RawMessage `json:"answer" binding:"required"`
	Duration int             `json:"duration" binding:"gte=0"`
}

type FinishPracticeReq struct {
	Outcome model.PracticeSessionStatus `json:"outcome" binding:"required,oneof=completed abandoned"`
}

// SubmitPracticeAnswerResult 提交后的判分与会话进度
type SubmitPracticeAnswerResult struct {
	Item               *model.PracticeSessionItem `json:"item"`
	RecordID           uint                       `json:"recordId"`
	IsCorrect          *bool                      `json:"isCorrect,omitempty"`
	NeedsManualGrading bool                       `json:"needsManualGrading"`
	AnsweredCount      int                        `json:"answeredCount"`
	CorrectCount       int                        `json:"correctCount"`
	TotalCount         int                        `json:"totalCount"`
}

func (s *PracticeSessionService) resolveCount(requested int) int {
	count := requested
	if count <= 0 {
		count = s.Cfg.DefaultCount
	}
	if count <= 0 {
		count = 10
	}
	if s.Cfg.MaxCount > 0 && count > s.Cfg.MaxCount {
		count = s.Cfg.MaxCount
	}
	return count
}

// CreateSession 按模式组卷并创建练习会话
func (s *PracticeSessionService) CreateSession(ctx context.Context, studentID uint, req CreatePracticeSessionReq) (*model.PracticeSession, error) {
	now := nowOrDefault(s.Now)()
	count := s.resolveCount(req.Count)

	// 1. 校验模式参数
	switch req.Mode {
	case model.PracticeModeCategory:
		if len(req.Config.CategoryIDs) == 0 {
			return nil, fmt.Errorf("%w: categoryIds is required in category mode", util.ErrInvalidRequest)
		}
	case model.PracticeModeKnowledge:
		if len(req.Config.KnowledgePointIDs) == 0 {
			return nil, fmt.Errorf("%w: knowledgePointIds is required in knowledge mode", util.ErrInvalidRequest)
		}
	case model.PracticeModeRandom, model.PracticeModeReview:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", util.ErrInvalidRequest, req.Mode)
	}

	// 2. 抽题
	var items []model.PracticeSessionItem
	if req.Mode == model.PracticeModeReview {
		due, err := s.Reviews.DueEntries(ctx, studentID, now, count)
		if err != nil {
			return nil, err
		}
		for i := range due {
			ref := due[i].ID
			items = append(items, model.PracticeSessionItem{
				QuestionID:  due[i].QuestionID,
				SourceType:  model.ItemSourceReview,
				SourceRefID: &ref,
			})
		}
	} else {
		ids, err := s.Questions.ResolveQuestionIDs(ctx, req.Mode, req.Config, count)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			items = append(items, model.PracticeSessionItem{
				QuestionID: id,
				SourceType: model.ItemSourceNormal,
			})
		}
	}

	if len(items) == 0 {
		return nil, util.ErrEmptyQuestionPool
	}

	// 3. 题号从 1 开始连续编号
	for i := range items {
		items[i].Seq = i + 1
		items[i].Status = model.PracticeItemPending
	}

	session := &model.PracticeSession{
		StudentID:  studentID,
		Mode:       req.Mode,
		Config:     datatypes.NewJSONType(req.Config),
		Status:     model.PracticeSessionActive,
		TotalCount: len(items),
		StartedAt:  now,
		Version:    1,
		Items:      items,
	}
	if err := s.Repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	logger.Log.Info("practice session created",
		zap.Uint("sessionID", session.ID),
		zap.Uint("studentID", studentID),
		zap.String("mode", string(req.Mode)),
		zap.Int("totalCount", session.TotalCount),
	)
	return session, nil
}

func loadOwnedSession(ctx context.Context, repo *repository.PracticeRepository, studentID, sessionID uint) (*model.PracticeSession, error) {
	session, err := repo.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if session.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

func requireActiveSession(session *model.PracticeSession) error {
	if session.Status != model.PracticeSessionActive {
		return fmt.Errorf("%w: session %d is %s", util.ErrInvalidState, session.ID, session.Status)
	}
	return nil
}

func findSessionItem(ctx context.Context, repo *repository.PracticeRepository, sessionID uint, seq int) (*model.PracticeSessionItem, error) {
	item, err := repo.FindItem(ctx, sessionID, seq)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func pendingItemError(item *model.PracticeSessionItem) error {
	switch item.Status {
	case model.PracticeItemAnswered:
		return util.ErrAlreadyAnswered
	case model.PracticeItemSkipped:
		return fmt.Errorf("%w: item %d was skipped", util.ErrInvalidState, item.Seq)
	}
	return nil
}

// SubmitAnswer 提交一道题的作答。客观题立即判分，主观题生成人工批改任务。
func (s *PracticeSessionService) SubmitAnswer(ctx context.Context, studentID, sessionID uint, seq int, req SubmitPracticeAnswerReq) (*SubmitPracticeAnswerResult, error) {
	// 1. 先做只读校验和判分，格式错误不产生任何写入
	session, err := loadOwnedSession(ctx, s.Repo, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireActiveSession(session); err != nil {
		return nil, err
	}
	item, err := findSessionItem(ctx, s.Repo, sessionID, seq)
	if err != nil {
		return nil, err
	}
	if err := pendingItemError(item); err != nil {
		return nil, err
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

	// 2. 事务内重新检查状态并写入
	var result *SubmitPracticeAnswerResult
	_, err = retryOnConflict(ctx, defaultConflictRetries, func() error {
		now := nowOrDefault(s.Now)()
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := repository.NewPracticeRepository(tx)

			session, err := loadOwnedSession(ctx, repo, studentID, sessionID)
			if err != nil {
				return err
			}
			if err := requireActiveSession(session); err != nil {
				return err
			}
			item, err := findSessionItem(ctx, repo, sessionID, seq)
			if err != nil {
				return err
			}
			if err := pendingItemError(item); err != nil {
				return err
			}

			ok, err := repo.TransitionItem(ctx, item.ID, model.PracticeItemAnswered, now)
			if err != nil {
				return err
			}
			if !ok {
				current, err := findSessionItem(ctx, repo, sessionID, seq)
				if err != nil {
					return err
				}
				if err := pendingItemError(current); err != nil {
					return err
				}
				return util.ErrConcurrentModification
			}

			if err := repo.RecordAnswer(ctx, session, graded.Correct()); err != nil {
				return err
			}

			record := &model.PracticeRecord{
				SessionID:          sessionID,
				ItemID:             item.ID,
				StudentID:          studentID,
				QuestionID:         item.QuestionID,
				Answer:             datatypes.JSON(req.Answer),
				IsCorrect:          graded.IsCorrect,
				NeedsManualGrading: graded.NeedsManual,
				DurationSeconds:    req.Duration,
				SubmittedAt:        now,
			}
			if graded.IsCorrect != nil {
				score := 0.0
				if *graded.IsCorrect {
					score = question.FullScore
				}
				record.Score = &score
			}
			if err := repo.CreateRecord(ctx, record); err != nil {
				return err
			}

			if graded.NeedsManual {
				recordID := record.ID
				task := &model.ManualGradingTask{
					SourceType:       model.GradingSourcePractice,
					PracticeRecordID: &recordID,
					StudentID:        studentID,
					QuestionID:       item.QuestionID,
					Status:           model.GradingTaskPending,
					Version:          1,
				}
				if err := repository.NewGradingTaskRepository(tx).Create(ctx, task); err != nil {
					return err
				}
			}

			item.Status = model.PracticeItemAnswered
			item.AnsweredAt = &now
			answered := session.AnsweredCount + 1
			correct := session.CorrectCount
			if graded.Correct() {
				correct++
			}
			result = &SubmitPracticeAnswerResult{
				Item:               item,
				RecordID:           record.ID,
				IsCorrect:          graded.IsCorrect,
				NeedsManualGrading: graded.NeedsManual,
				AnsweredCount:      answered,
				CorrectCount:       correct,
				TotalCount:         session.TotalCount,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	monitoring.PracticeAnswers.WithLabelValues(monitoring.ResultLabel(graded.IsCorrect)).Inc()

	// 3. 客观题结果进入错题本
	if graded.IsCorrect != nil {
		emitOutcome(ctx, s.Outcomes, model.SubmissionOutcome{
			StudentID:  studentID,
			QuestionID: item.QuestionID,
			IsCorrect:  *graded.IsCorrect,
			At:         *result.Item.AnsweredAt,
			Source:     "practice",
		})
	}
	return result, nil
}

// SkipItem 跳过一道未作答的题，计数不变。重复跳过视为成功。
func (s *PracticeSessionService) SkipItem(ctx context.Context, studentID, sessionID uint, seq int) (*model.PracticeSessionItem, error) {
	var skipped *model.PracticeSessionItem
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := repository.NewPracticeRepository(tx)

			session, err := loadOwnedSession(ctx, repo, studentID, sessionID)
			if err != nil {
				return err
			}
			if err := requireActiveSession(session); err != nil {
				return err
			}
			item, err := findSessionItem(ctx, repo, sessionID, seq)
			if err != nil {
				return err
			}
			switch item.Status {
			case model.PracticeItemSkipped:
				skipped = item
				return nil
			case model.PracticeItemAnswered:
				return util.ErrAlreadyAnswered
			}

			ok, err := repo.TransitionItem(ctx, item.ID, model.PracticeItemSkipped, nowOrDefault(s.Now)())
			if err != nil {
				return err
			}
			if !ok {
				return util.ErrConcurrentModification
			}
			// 推进会话版本号，与结束会话互斥
			if err := repo.TouchSession(ctx, session); err != nil {
				return err
			}
			item.Status = model.PracticeItemSkipped
			skipped = item
			return nil
		})
	})
	return skipped, err
}

// Finalize 结束会话：completed 要求没有待答题，abandoned 随时可以
func (s *PracticeSessionService) Finalize(ctx context.Context, studentID, sessionID uint, outcome model.PracticeSessionStatus) (*model.PracticeSession, error) {
	if outcome != model.PracticeSessionCompleted && outcome != model.PracticeSessionAbandoned {
		return nil, fmt.Errorf("%w: outcome must be completed or abandoned", util.ErrInvalidRequest)
	}

	var finished *model.PracticeSession
	_, err := retryOnConflict(ctx, defaultConflictRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := repository.NewPracticeRepository(tx)

			session, err := loadOwnedSession(ctx, repo, studentID, sessionID)
			if err != nil {
				return err
			}
			if err := requireActiveSession(session); err != nil {
				return err
			}

			if outcome == model.PracticeSessionCompleted {
				pending, err := repo.CountItemsByStatus(ctx, sessionID, model.PracticeItemPending)
				if err != nil {
					return err
				}
				if pending > 0 {
					return fmt.Errorf("%w: %d items still pending", util.ErrInvalidState, pending)
				}
			}

			now := nowOrDefault(s.Now)()
			if err := repo.FinishSession(ctx, session, outcome, now); err != nil {
				return err
			}
			session.Status = outcome
			session.EndedAt = &now
			session.Version++
			finished = session
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("practice session finished",
		zap.Uint("sessionID", sessionID),
		zap.String("status", string(outcome)),
		zap.Int("answered", finished.AnsweredCount),
		zap.Int("correct", finished.CorrectCount),
	)
	return finished, nil
}

func (s *PracticeSessionService) GetSession(ctx context.Context, studentID, sessionID uint) (*model.PracticeSession, error) {
	session, err := s.Repo.FindSessionWithItems(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if session.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}
