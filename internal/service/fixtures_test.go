package service

import (
	"context"
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/pkg/database"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// 内存库只在单个连接内可见
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSink 记录收到的作答结果，可选转发给下游
type recordingSink struct {
	mu       sync.Mutex
	outcomes []model.SubmissionOutcome
	next     OutcomeSink
}

func (r *recordingSink) RecordSubmissionOutcome(ctx context.Context, o model.SubmissionOutcome) error {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	if r.next != nil {
		return r.next.RecordSubmissionOutcome(ctx, o)
	}
	return nil
}

func (r *recordingSink) all() []model.SubmissionOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SubmissionOutcome(nil), r.outcomes...)
}

// dbQuestions 直接读库的题库实现
type dbQuestions struct {
	repo *repository.QuestionRepository
}

func (q dbQuestions) GetQuestion(ctx context.Context, id uint) (*model.Question, error) {
	return q.repo.FindByID(ctx, id)
}

func (q dbQuestions) ResolveQuestionIDs(ctx context.Context, mode model.PracticeMode, f model.PracticeFilter, count int) ([]uint, error) {
	return q.repo.ResolveIDs(ctx, mode, f, count)
}

func seedQuestion(t *testing.T, db *gorm.DB, qt model.QuestionType, key string, fullScore float64) *model.Question {
	t.Helper()
	q := &model.Question{
		Type:      qt,
		Stem:      "stem",
		AnswerKey: datatypes.JSON(key),
		FullScore: fullScore,
		Status:    model.QuestionStatusActive,
	}
	if err := repository.NewQuestionRepository(db).Create(context.Background(), q); err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q
}

func seedPaper(t *testing.T, db *gorm.DB, status model.ExamPaperStatus, minutes int, questions ...*model.Question) *model.ExamPaper {
	t.Helper()
	paper := &model.ExamPaper{
		Title:           "paper",
		Status:          status,
		DurationMinutes: minutes,
	}
	for i, q := range questions {
		paper.Items = append(paper.Items, model.ExamPaperItem{
			QuestionID: q.ID,
			Seq:        i + 1,
			Score:      q.FullScore,
		})
		paper.TotalScore += q.FullScore
	}
	if err := repository.NewExamRepository(db).CreatePaper(context.Background(), paper); err != nil {
		t.Fatalf("seed paper: %v", err)
	}
	return paper
}

type testEnv struct {
	db       *gorm.DB
	clock    *testClock
	sink     *recordingSink
	review   *ReviewSchedulerService
	practice *PracticeSessionService
	exam     *ExamAttemptService
	grading  *ManualGradingService
	timeout  *ExamTimeoutService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clock := newTestClock()
	questions := dbQuestions{repo: repository.NewQuestionRepository(db)}

	review := NewReviewSchedulerService(repository.NewWrongBookRepository(db), repository.NewReviewTaskRepository(db), config.ReviewConfig{})
	review.Now = clock.Now
	sink := &recordingSink{next: review}

	practice := NewPracticeSessionService(db, questions, review, sink, config.PracticeConfig{DefaultCount: 10, MaxCount: 50})
	practice.Now = clock.Now

	exam := NewExamAttemptService(db, questions, sink, 0)
	exam.Now = clock.Now

	grading := NewManualGradingService(db, exam, sink, 0)
	grading.Now = clock.Now

	timeout := NewExamTimeoutService(repository.NewExamRepository(db), exam, nil, 2)
	timeout.Now = clock.Now

	return &testEnv{
		db:       db,
		clock:    clock,
		sink:     sink,
		review:   review,
		practice: practice,
		exam:     exam,
		grading:  grading,
		timeout:  timeout,
	}
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
