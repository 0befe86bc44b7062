package service

import (
	"context"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// QuestionSource 题库，只读
type QuestionSource interface {
	GetQuestion(ctx context.Context, id uint) (*model.Question, error)
	ResolveQuestionIDs(ctx context.Context, mode model.PracticeMode, f model.PracticeFilter, count int) ([]uint, error)
}

// OutcomeSink 接收作答判定结果，可以是进程内的复习调度，也可以是事件总线
type OutcomeSink interface {
	RecordSubmissionOutcome(ctx context.Context, outcome model.SubmissionOutcome) error
}

// emitOutcome 在事务提交后调用，失败只记录日志，不影响已经提交的作答
func emitOutcome(ctx context.Context, sink OutcomeSink, outcome model.SubmissionOutcome) {
	if sink == nil {
		return
	}
	if err := sink.RecordSubmissionOutcome(ctx, outcome); err != nil {
		logger.Log.Error("failed to emit submission outcome",
			zap.Uint("studentID", outcome.StudentID),
			zap.Uint("questionID", outcome.QuestionID),
			zap.String("source", outcome.Source),
			zap.Error(err),
		)
	}
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return time.Now
}
