package service

import (
	"context"
	"edu_practice_backend/internal/cache"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/util"
	"edu_practice_backend/pkg/logger"
	"edu_practice_backend/pkg/monitoring"
	"edu_practice_backend/pkg/tracing"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AttemptFinisher 结束考试作答
type AttemptFinisher interface {
	FinishAttempt(ctx context.Context, attemptID uint, reason model.ExamAttemptStatus) (*model.ExamAttempt, error)
}

// ScanReportStore 保存最近一次扫描报告
type ScanReportStore interface {
	SaveTimeoutScan(ctx context.Context, result model.TimeoutScanResult) error
	LastTimeoutScan(ctx context.Context) (*model.TimeoutScanResult, error)
}

type ExamTimeoutService struct {
	Repo      *repository.ExamRepository
	Finisher  AttemptFinisher
	Reports   ScanReportStore
	BatchSize int
	Now       func() time.Time
}

func NewExamTimeoutService(repo *repository.ExamRepository, finisher AttemptFinisher, reports ScanReportStore, batchSize int) *ExamTimeoutService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ExamTimeoutService{
		Repo:      repo,
		Finisher:  finisher,
		Reports:   reports,
		BatchSize: batchSize,
		Now:       time.Now,
	}
}

// ScanTimeouts 扫描所有进行中的作答，超过试卷时长的按超时结束。
// 定时任务与手动触发共用此方法；与学生交卷竞争失败时忽略。
func (s *ExamTimeoutService) ScanTimeouts(ctx context.Context, trigger model.ScanTrigger) (*model.TimeoutScanResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "exam.scan_timeouts")
	defer span.End()

	now := nowOrDefault(s.Now)()
	result := model.TimeoutScanResult{ScannedAt: now, Trigger: trigger}

	var afterID uint
	for {
		rows, err := s.Repo.ListActiveAttempts(ctx, afterID, s.BatchSize)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			result.ScannedCount++
			deadline := row.StartedAt.Add(time.Duration(row.DurationMinutes) * time.Minute)
			if now.Before(deadline) {
				continue
			}
			result.TimeoutCount++

			if _, err := s.Finisher.FinishAttempt(ctx, row.ID, model.ExamAttemptTimeout); err != nil {
				if errors.Is(err, util.ErrInvalidState) {
					logger.Log.Debug("attempt already finished before timeout", zap.Uint("attemptID", row.ID))
					continue
				}
				logger.Log.Error("failed to time out exam attempt", zap.Uint("attemptID", row.ID), zap.Error(err))
				continue
			}
			result.AutoFinishedCount++
		}

		afterID = rows[len(rows)-1].ID
		if len(rows) < s.BatchSize {
			break
		}
	}

	span.SetAttributes(
		attribute.String("trigger", string(trigger)),
		attribute.Int("scanned", result.ScannedCount),
		attribute.Int("timeout", result.TimeoutCount),
		attribute.Int("auto_finished", result.AutoFinishedCount),
	)
	monitoring.TimeoutScans.WithLabelValues(string(trigger)).Inc()
	monitoring.TimeoutAutoFinished.Add(float64(result.AutoFinishedCount))

	if s.Reports != nil {
		if err := s.Reports.SaveTimeoutScan(ctx, result); err != nil {
			logger.Log.Warn("failed to save timeout scan report", zap.Error(err))
		}
	}

	if result.AutoFinishedCount > 0 {
		logger.Log.Info("exam timeout scan finished",
			zap.String("trigger", string(trigger)),
			zap.Int("scanned", result.ScannedCount),
			zap.Int("timeout", result.TimeoutCount),
			zap.Int("autoFinished", result.AutoFinishedCount),
		)
	}
	return &result, nil
}

// LastReport 最近一次扫描报告，尚未扫描过时返回 nil
func (s *ExamTimeoutService) LastReport(ctx context.Context) (*model.TimeoutScanResult, error) {
	if s.Reports == nil {
		return nil, nil
	}
	report, err := s.Reports.LastTimeoutScan(ctx)
	if errors.Is(err, cache.ErrCacheNotFound) {
		return nil, nil
	}
	return report, err
}
