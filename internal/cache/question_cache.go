package cache

import (
	"context"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type QuestionStore interface {
	FindByID(ctx context.Context, id uint) (*model.Question, error)
	ResolveIDs(ctx context.Context, mode model.PracticeMode, f model.PracticeFilter, count int) ([]uint, error)
}

// CachedQuestionSource 题目读穿透缓存；抽题结果是随机的，不做缓存
type CachedQuestionSource struct {
	store  QuestionStore
	helper *CacheHelper
	ttl    time.Duration
}

func NewCachedQuestionSource(store QuestionStore, client *redis.Client, ttl time.Duration) *CachedQuestionSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedQuestionSource{
		store:  store,
		helper: NewCacheHelper(client, "question:"),
		ttl:    ttl,
	}
}

// questionEntry 标准答案不参与 API 序列化，缓存时单独保存
type questionEntry struct {
	Question  *model.Question `json:"question"`
	AnswerKey json.RawMessage `json:"answerKey"`
}

func (s *CachedQuestionSource) GetQuestion(ctx context.Context, id uint) (*model.Question, error) {
	key := fmt.Sprintf("id:%d", id)

	var entry questionEntry
	err := s.helper.Get(ctx, key, &entry)
	if err == nil && entry.Question != nil {
		entry.Question.AnswerKey = []byte(entry.AnswerKey)
		return entry.Question, nil
	}
	if err != nil && !errors.Is(err, ErrCacheNotFound) && !errors.Is(err, ErrCacheNotAvailable) {
		logger.Log.Warn("question cache read failed", zap.Uint("questionID", id), zap.Error(err))
	}

	q, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	entry = questionEntry{Question: q, AnswerKey: json.RawMessage(q.AnswerKey)}
	if err := s.helper.Set(ctx, key, entry, s.ttl); err != nil {
		logger.Log.Warn("question cache write failed", zap.Uint("questionID", id), zap.Error(err))
	}
	return q, nil
}

func (s *CachedQuestionSource) ResolveQuestionIDs(ctx context.Context, mode model.PracticeMode, f model.PracticeFilter, count int) ([]uint, error) {
	return s.store.ResolveIDs(ctx, mode, f, count)
}

// Invalidate 题目内容变更后调用
func (s *CachedQuestionSource) Invalidate(ctx context.Context, ids ...uint) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("id:%d", id)
	}
	return s.helper.Delete(ctx, keys...)
}
