package cache

import (
	"context"
	"edu_practice_backend/internal/model"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

type countingStore struct {
	questions map[uint]*model.Question
	finds     int
}

func (s *countingStore) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	s.finds++
	q, ok := s.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *q
	return &copied, nil
}

func (s *countingStore) ResolveIDs(ctx context.Context, mode model.PracticeMode, f model.PracticeFilter, count int) ([]uint, error) {
	ids := make([]uint, 0, len(s.questions))
	for id := range s.questions {
		ids = append(ids, id)
	}
	return ids, nil
}

func newCountingStore() *countingStore {
	q := &model.Question{
		Type:      model.QuestionSingleChoice,
		Stem:      "1 + 1 = ?",
		AnswerKey: datatypes.JSON(`{"option":"B"}`),
		FullScore: 2,
		Status:    model.QuestionStatusActive,
	}
	q.ID = 7
	return &countingStore{questions: map[uint]*model.Question{7: q}}
}

func TestCachedQuestionSourceReadThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	store := newCountingStore()
	src := NewCachedQuestionSource(store, client, time.Minute)
	ctx := context.Background()

	first, err := src.GetQuestion(ctx, 7)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	second, err := src.GetQuestion(ctx, 7)
	if err != nil {
		t.Fatalf("GetQuestion cached: %v", err)
	}
	if store.finds != 1 {
		t.Fatalf("store hits = %d, want 1", store.finds)
	}
	if !mr.Exists("question:id:7") {
		t.Fatalf("question was not written to redis")
	}
	if string(second.AnswerKey) != string(first.AnswerKey) || second.FullScore != 2 || second.Type != model.QuestionSingleChoice {
		t.Fatalf("cached question differs: %+v", second)
	}
	if ttl := mr.TTL("question:id:7"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}

	if err := src.Invalidate(ctx, 7); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := src.GetQuestion(ctx, 7); err != nil {
		t.Fatalf("GetQuestion after invalidate: %v", err)
	}
	if store.finds != 2 {
		t.Fatalf("store hits = %d, want 2", store.finds)
	}
}

func TestCachedQuestionSourceWithoutRedis(t *testing.T) {
	store := newCountingStore()
	src := NewCachedQuestionSource(store, nil, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := src.GetQuestion(ctx, 7); err != nil {
			t.Fatalf("GetQuestion: %v", err)
		}
	}
	if store.finds != 2 {
		t.Fatalf("store hits = %d, want 2", store.finds)
	}
	if _, err := src.GetQuestion(ctx, 99); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want gorm.ErrRecordNotFound", err)
	}
	if err := src.Invalidate(ctx, 7); err != nil {
		t.Fatalf("Invalidate without redis: %v", err)
	}
}

func TestReportStore(t *testing.T) {
	ctx := context.Background()
	report := model.TimeoutScanResult{
		ScannedCount:      4,
		TimeoutCount:      2,
		AutoFinishedCount: 1,
		ScannedAt:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Trigger:           model.ScanTriggerScheduled,
	}

	tests := []struct {
		name      string
		withRedis bool
	}{
		{"redis", true},
		{"in-memory", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var client *redis.Client
			if tt.withRedis {
				_, client = newTestRedis(t)
			}
			store := NewReportStore(client)

			if _, err := store.LastTimeoutScan(ctx); !errors.Is(err, ErrCacheNotFound) {
				t.Fatalf("err = %v, want ErrCacheNotFound", err)
			}
			if err := store.SaveTimeoutScan(ctx, report); err != nil {
				t.Fatalf("SaveTimeoutScan: %v", err)
			}
			got, err := store.LastTimeoutScan(ctx)
			if err != nil {
				t.Fatalf("LastTimeoutScan: %v", err)
			}
			if got.ScannedCount != 4 || got.AutoFinishedCount != 1 || got.Trigger != model.ScanTriggerScheduled || !got.ScannedAt.Equal(report.ScannedAt) {
				t.Fatalf("unexpected report: %+v", got)
			}
		})
	}
}

func TestCacheHelperDisabled(t *testing.T) {
	helper := NewCacheHelper(nil, "x:")
	var dest string
	if err := helper.Get(context.Background(), "k", &dest); !errors.Is(err, ErrCacheNotAvailable) {
		t.Fatalf("err = %v, want ErrCacheNotAvailable", err)
	}
	if err := helper.Set(context.Background(), "k", "v", time.Second); err != nil {
		t.Fatalf("Set on disabled helper: %v", err)
	}
	if helper.GetCacheKey("k") != "x:k" {
		t.Fatalf("unexpected key %q", helper.GetCacheKey("k"))
	}
}
