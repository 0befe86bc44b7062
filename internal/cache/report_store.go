package cache

import (
	"context"
	"edu_practice_backend/internal/model"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

const lastTimeoutScanKey = "timeout_scan:last"

// ReportStore 保存最近一次超时扫描报告；未配置 redis 时保存在进程内
type ReportStore struct {
	helper *CacheHelper

	mu   sync.RWMutex
	last *model.TimeoutScanResult
}

func NewReportStore(client *redis.Client) *ReportStore {
	return &ReportStore{helper: NewCacheHelper(client, "report:")}
}

func (s *ReportStore) SaveTimeoutScan(ctx context.Context, result model.TimeoutScanResult) error {
	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()
	// 报告不过期，下次扫描覆盖
	return s.helper.Set(ctx, lastTimeoutScanKey, result, 0)
}

// LastTimeoutScan 尚无报告时返回 ErrCacheNotFound
func (s *ReportStore) LastTimeoutScan(ctx context.Context) (*model.TimeoutScanResult, error) {
	var result model.TimeoutScanResult
	err := s.helper.Get(ctx, lastTimeoutScanKey, &result)
	if err == nil {
		return &result, nil
	}
	if !errors.Is(err, ErrCacheNotAvailable) && !errors.Is(err, ErrCacheNotFound) {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, ErrCacheNotFound
	}
	copied := *s.last
	return &copied, nil
}
