package app

import (
	"context"
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/service"
	"edu_practice_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// nextDailyRun 计算下一次 HH:MM 触发时间，已过则顺延到明天
func nextDailyRun(now time.Time, at string) time.Time {
	t, err := time.Parse("15:04", at)
	if err != nil {
		t = time.Date(0, 1, 1, 0, 5, 0, 0, time.UTC)
	}
	y, m, d := now.Date()
	next := time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runTimeoutSweeper 定时扫描超时作答，间隔可通过 intervals 热更新
func runTimeoutSweeper(ctx context.Context, sweeper *service.ExamTimeoutService, interval time.Duration, intervals <-chan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-intervals:
			if d > 0 && d != interval {
				interval = d
				ticker.Reset(interval)
				logger.Log.Info("timeout sweeper interval updated", zap.Duration("interval", interval))
			}
		case <-ticker.C:
			if _, err := sweeper.ScanTimeouts(ctx, model.ScanTriggerScheduled); err != nil {
				logger.Log.Error("scheduled timeout scan failed", zap.Error(err))
			}
		}
	}
}

// runDailyReviewGeneration 每天固定时间生成复习任务，时间点可通过 schedule 热更新
func runDailyReviewGeneration(ctx context.Context, review *service.ReviewSchedulerService, at string, schedule <-chan string) {
	for {
		wait := time.Until(nextDailyRun(time.Now(), at))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case newAt := <-schedule:
			timer.Stop()
			if newAt != "" {
				at = newAt
			}
		case <-timer.C:
			result, err := review.GenerateDailyTasks(ctx, time.Now())
			if err != nil {
				logger.Log.Error("daily review generation failed", zap.Error(err))
				continue
			}
			logger.Log.Info("daily review generation finished",
				zap.String("runDate", result.RunDate),
				zap.Int64("generated", result.GeneratedCount),
			)
		}
	}
}

// startBackgroundTasks 启动超时扫描、每日复习任务与事件消费
func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	intervals := make(chan time.Duration, 1)
	schedule := make(chan string, 1)

	a.RegisterConfigCallback(func(cfg *config.Config) {
		select {
		case intervals <- cfg.Exam.ScanInterval():
		default:
		}
		select {
		case schedule <- cfg.Review.DailyGenerationAt:
		default:
		}
	})

	go runTimeoutSweeper(ctx, s.timeout, a.Config.Exam.ScanInterval(), intervals)
	go runDailyReviewGeneration(ctx, s.review, a.Config.Review.DailyGenerationAt, schedule)

	if a.Bus != nil {
		if err := a.Bus.ConsumeOutcomes(ctx, s.review); err != nil {
			logger.Log.Error("failed to subscribe outcome events", zap.Error(err))
		}
	}
}
