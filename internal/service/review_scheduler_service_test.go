package service

import (
	"context"
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/util"
	"errors"
	"testing"
	"time"
)

func TestRecordOutcomeLevelProgression(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := env.clock.Now()

	wb, err := env.review.RecordOutcome(ctx, 1, 100, false, at)
	if err != nil {
		t.Fatalf("RecordOutcome(wrong): %v", err)
	}
	if wb.ReviewLevel != 0 || wb.WrongCount != 1 || wb.IsMastered {
		t.Fatalf("unexpected entry after wrong answer: %+v", wb)
	}
	if want := at.AddDate(0, 0, 1); wb.NextReviewAt == nil || !wb.NextReviewAt.Equal(want) {
		t.Fatalf("next review = %v, want %v", wb.NextReviewAt, want)
	}

	tests := []struct {
		level    int
		interval int
	}{
		{1, 2},
		{2, 4},
		{3, 7},
		{4, 15},
		{5, 30},
	}
	for _, tt := range tests {
		at = at.AddDate(0, 0, 1)
		wb, err = env.review.RecordOutcome(ctx, 1, 100, true, at)
		if err != nil {
			t.Fatalf("RecordOutcome(correct) level %d: %v", tt.level, err)
		}
		if wb.ReviewLevel != tt.level || wb.IsMastered {
			t.Fatalf("level = %d mastered = %v, want %d false", wb.ReviewLevel, wb.IsMastered, tt.level)
		}
		if want := at.AddDate(0, 0, tt.interval); wb.NextReviewAt == nil || !wb.NextReviewAt.Equal(want) {
			t.Fatalf("level %d next review = %v, want %v", tt.level, wb.NextReviewAt, want)
		}
	}

	at = at.AddDate(0, 0, 1)
	wb, err = env.review.RecordOutcome(ctx, 1, 100, true, at)
	if err != nil {
		t.Fatalf("RecordOutcome(final): %v", err)
	}
	if !wb.IsMastered || wb.NextReviewAt != nil {
		t.Fatalf("entry should be mastered with no next review: %+v", wb)
	}

	// 已掌握后答对不再推进
	again, err := env.review.RecordOutcome(ctx, 1, 100, true, at.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("RecordOutcome(mastered): %v", err)
	}
	if !again.IsMastered || again.ReviewLevel != wb.ReviewLevel || again.NextReviewAt != nil {
		t.Fatalf("mastered entry changed: %+v", again)
	}

	// 再次答错重新进入复习
	wb, err = env.review.RecordOutcome(ctx, 1, 100, false, at.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("RecordOutcome(wrong again): %v", err)
	}
	if wb.IsMastered || wb.ReviewLevel != 0 || wb.WrongCount != 2 || wb.NextReviewAt == nil {
		t.Fatalf("unexpected entry after relapse: %+v", wb)
	}
}

func TestRecordOutcomeCorrectWithoutEntryIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		wb, err := env.review.RecordOutcome(ctx, 1, 100, true, env.clock.Now())
		if err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
		if wb != nil {
			t.Fatalf("expected no entry, got %+v", wb)
		}
	}
	if n := countRows(t, env.db, &model.WrongBook{}); n != 0 {
		t.Fatalf("wrong book rows = %d, want 0", n)
	}
}

func TestGenerateDailyTasksAndCompleteOnReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day1 := env.clock.Now()

	wb, err := env.review.RecordOutcome(ctx, 1, 100, false, day1)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	// 未到期的条目不生成任务
	if _, err := env.review.RecordOutcome(ctx, 2, 200, false, day1.AddDate(0, 0, 3)); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	day2 := day1.AddDate(0, 0, 1)
	res, err := env.review.GenerateDailyTasks(ctx, day2)
	if err != nil {
		t.Fatalf("GenerateDailyTasks: %v", err)
	}
	if res.GeneratedCount != 1 || res.Attempts != 1 || res.RunDate != "2024-03-02" {
		t.Fatalf("unexpected result: %+v", res)
	}

	again, err := env.review.GenerateDailyTasks(ctx, day2)
	if err != nil {
		t.Fatalf("GenerateDailyTasks again: %v", err)
	}
	if again.GeneratedCount != 0 {
		t.Fatalf("second run generated %d, want 0", again.GeneratedCount)
	}

	tasks, err := env.review.ListDailyTasks(ctx, day2, 1)
	if err != nil {
		t.Fatalf("ListDailyTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].WrongBookID != wb.ID || tasks[0].Status != model.ReviewTaskPending {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	updated, err := env.review.RecordOutcome(ctx, 1, 100, true, day2.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("RecordOutcome(correct): %v", err)
	}
	if updated.ReviewLevel != 1 {
		t.Fatalf("level = %d, want 1", updated.ReviewLevel)
	}
	if want := day2.Add(2 * time.Hour).AddDate(0, 0, 2); !updated.NextReviewAt.Equal(want) {
		t.Fatalf("next review = %v, want %v", updated.NextReviewAt, want)
	}

	tasks, err = env.review.ListDailyTasks(ctx, day2, 1)
	if err != nil {
		t.Fatalf("ListDailyTasks: %v", err)
	}
	if tasks[0].Status != model.ReviewTaskDone || tasks[0].CompletedAt == nil {
		t.Fatalf("task not completed: %+v", tasks[0])
	}
}

func TestGenerateDailyTasksPaginates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.review.BatchSize = 2

	for q := uint(1); q <= 5; q++ {
		if _, err := env.review.RecordOutcome(ctx, 9, q, false, env.clock.Now()); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	res, err := env.review.GenerateDailyTasks(ctx, env.clock.Now().AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GenerateDailyTasks: %v", err)
	}
	if res.GeneratedCount != 5 {
		t.Fatalf("generated = %d, want 5", res.GeneratedCount)
	}
}

// conflictingTasks 每次写入都报告并发冲突
type conflictingTasks struct {
	ReviewTaskStore
	calls int
}

func (c *conflictingTasks) UpsertDailyTasks(ctx context.Context, tasks []model.ReviewDailyTask) (int64, error) {
	c.calls++
	return 0, util.ErrConcurrentModification
}

func TestGenerateDailyTasksGivesUpAfterConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := &conflictingTasks{ReviewTaskStore: repository.NewReviewTaskRepository(db)}
	svc := NewReviewSchedulerService(repository.NewWrongBookRepository(db), store, config.ReviewConfig{MaxAttempts: 3})

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := svc.RecordOutcome(ctx, 1, 100, false, now); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	res, err := svc.GenerateDailyTasks(ctx, now.AddDate(0, 0, 1))
	if !errors.Is(err, util.ErrReviewGenerationConflict) {
		t.Fatalf("err = %v, want ErrReviewGenerationConflict", err)
	}
	if res.Attempts != 3 || store.calls != 3 {
		t.Fatalf("attempts = %d calls = %d, want 3", res.Attempts, store.calls)
	}
}

// reviewedBeforeUpsert 在第一次写入前插入一次答对，模拟生成期间并发的复习
type reviewedBeforeUpsert struct {
	*repository.ReviewTaskRepository
	review *ReviewSchedulerService
	at     time.Time
	done   bool
}

func (r *reviewedBeforeUpsert) UpsertDailyTasks(ctx context.Context, tasks []model.ReviewDailyTask) (int64, error) {
	if !r.done {
		r.done = true
		for _, task := range tasks {
			wb, err := r.review.WrongBooks.FindByID(ctx, task.WrongBookID)
			if err != nil {
				return 0, err
			}
			if _, err := r.review.RecordOutcome(ctx, wb.StudentID, wb.QuestionID, true, r.at); err != nil {
				return 0, err
			}
		}
	}
	return r.ReviewTaskRepository.UpsertDailyTasks(ctx, tasks)
}

func TestGenerateDailyTasksRetriesWhenEntryChanges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day := now.AddDate(0, 0, 1)

	store := &reviewedBeforeUpsert{ReviewTaskRepository: repository.NewReviewTaskRepository(db), at: day.Add(-time.Hour)}
	svc := NewReviewSchedulerService(repository.NewWrongBookRepository(db), store, config.ReviewConfig{MaxAttempts: 3})
	store.review = svc

	if _, err := svc.RecordOutcome(ctx, 1, 100, false, now); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	res, err := svc.GenerateDailyTasks(ctx, day)
	if err != nil {
		t.Fatalf("GenerateDailyTasks: %v", err)
	}
	if res.Attempts != 2 || res.GeneratedCount != 0 {
		t.Fatalf("result = %+v, want 2 attempts and nothing generated", res)
	}

	// 条目已推进到下一级，不应留下按旧到期时间生成的任务
	tasks, err := svc.ListDailyTasks(ctx, day, 0)
	if err != nil {
		t.Fatalf("ListDailyTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("stale tasks left behind: %+v", tasks)
	}
	wb, err := svc.WrongBooks.Find(ctx, 1, 100)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if wb.ReviewLevel != 1 || wb.NextReviewAt == nil || !wb.NextReviewAt.After(day.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected entry: level=%d next=%v", wb.ReviewLevel, wb.NextReviewAt)
	}
}

func TestUpsertDailyTasksRejectsStaleVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewReviewSchedulerService(repository.NewWrongBookRepository(db), repository.NewReviewTaskRepository(db), config.ReviewConfig{})

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	wb, err := svc.RecordOutcome(ctx, 1, 100, false, now)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	task := model.ReviewDailyTask{
		RunDate:          "2024-03-02",
		StudentID:        1,
		WrongBookID:      wb.ID,
		QuestionID:       100,
		DueAt:            *wb.NextReviewAt,
		Status:           model.ReviewTaskPending,
		WrongBookVersion: wb.Version + 1,
	}

	tasks := repository.NewReviewTaskRepository(db)
	if _, err := tasks.UpsertDailyTasks(ctx, []model.ReviewDailyTask{task}); !errors.Is(err, util.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	if n := countRows(t, db, &model.ReviewDailyTask{}); n != 0 {
		t.Fatalf("rows = %d, want the insert rolled back", n)
	}

	task.WrongBookVersion = wb.Version
	inserted, err := tasks.UpsertDailyTasks(ctx, []model.ReviewDailyTask{task})
	if err != nil || inserted != 1 {
		t.Fatalf("inserted = %d err = %v, want 1", inserted, err)
	}
}

func TestDueEntriesOrderedByNextReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := env.clock.Now()

	if _, err := env.review.RecordOutcome(ctx, 1, 10, false, base.Add(time.Hour)); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if _, err := env.review.RecordOutcome(ctx, 1, 20, false, base); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if _, err := env.review.RecordOutcome(ctx, 2, 30, false, base); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	due, err := env.review.DueEntries(ctx, 1, base.AddDate(0, 0, 2), 0)
	if err != nil {
		t.Fatalf("DueEntries: %v", err)
	}
	if len(due) != 2 || due[0].QuestionID != 20 || due[1].QuestionID != 10 {
		t.Fatalf("unexpected due entries: %+v", due)
	}

	none, err := env.review.DueEntries(ctx, 1, base, 10)
	if err != nil {
		t.Fatalf("DueEntries: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("nothing should be due yet, got %d", len(none))
	}
}
