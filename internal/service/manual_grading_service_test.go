package service

import (
	"context"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/util"
	"errors"
	"testing"
)

// practiceGradingTask 提交一道练习主观题，返回生成的批改任务
func practiceGradingTask(t *testing.T, env *testEnv, studentID uint, fullScore float64) (*model.ManualGradingTask, *model.Question) {
	t.Helper()
	ctx := context.Background()
	q := seedQuestion(t, env.db, model.QuestionShortAnswer, `{"reference":"ref"}`, fullScore)
	session := createRandomSession(t, env, studentID, 1)
	if _, err := env.practice.SubmitAnswer(ctx, studentID, session.ID, 1, answer(`"text"`)); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	tasks, err := env.grading.ListTasks(ctx, model.GradingTaskPending, 10)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks: %v (%d tasks)", err, len(tasks))
	}
	return &tasks[0], q
}

func TestGradingClaimTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, _ := practiceGradingTask(t, env, 1, 10)

	claimed, err := env.grading.Claim(ctx, task.ID, 50)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != model.GradingTaskAssigned || claimed.AssigneeID == nil || *claimed.AssigneeID != 50 {
		t.Fatalf("unexpected task: %+v", claimed)
	}

	if _, err := env.grading.Claim(ctx, task.ID, 50); err != nil {
		t.Fatalf("repeated claim by the same grader: %v", err)
	}
	if _, err := env.grading.Claim(ctx, task.ID, 51); !errors.Is(err, util.ErrAlreadyAssigned) {
		t.Fatalf("claim by another grader err = %v, want ErrAlreadyAssigned", err)
	}
	if _, err := env.grading.SubmitGrade(ctx, task.ID, 51, SubmitGradeReq{Score: 5}); !errors.Is(err, util.ErrAlreadyAssigned) {
		t.Fatalf("submit by another grader err = %v, want ErrAlreadyAssigned", err)
	}
	if _, err := env.grading.Reopen(ctx, task.ID, "again"); !errors.Is(err, util.ErrInvalidState) {
		t.Fatalf("reopen before done err = %v, want ErrInvalidState", err)
	}
	if _, err := env.grading.Claim(ctx, task.ID+100, 50); !errors.Is(err, util.ErrTaskNotFound) {
		t.Fatalf("claim missing task err = %v, want ErrTaskNotFound", err)
	}
}

func TestGradingSubmitPropagatesToPracticeRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, q := practiceGradingTask(t, env, 3, 10)

	// 未领取的任务可以直接评分
	graded, err := env.grading.SubmitGrade(ctx, task.ID, 60, SubmitGradeReq{
		Score:    0,
		Feedback: "missing key points",
		Tags:     []string{"incomplete"},
	})
	if err != nil {
		t.Fatalf("SubmitGrade: %v", err)
	}
	if graded.Status != model.GradingTaskDone || graded.AssigneeID == nil || *graded.AssigneeID != 60 {
		t.Fatalf("unexpected task: %+v", graded)
	}
	if graded.IsPassed == nil || *graded.IsPassed {
		t.Fatalf("score 0 should not pass: %+v", graded.IsPassed)
	}
	if len(graded.Tags) != 1 || graded.SubmittedAt == nil {
		t.Fatalf("unexpected tags/submittedAt: %+v", graded)
	}

	record, err := repository.NewPracticeRepository(env.db).FindRecord(ctx, *task.PracticeRecordID)
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if record.Score == nil || *record.Score != 0 || record.IsPassed == nil || *record.IsPassed || record.GradingFeedback != "missing key points" {
		t.Fatalf("record not updated: %+v", record)
	}

	// 未通过的主观题进入错题本
	wb, err := repository.NewWrongBookRepository(env.db).Find(ctx, 3, q.ID)
	if err != nil {
		t.Fatalf("wrong book entry missing: %v", err)
	}
	if wb.ReviewLevel != 0 {
		t.Fatalf("review level = %d, want 0", wb.ReviewLevel)
	}
	outcomes := env.sink.all()
	if len(outcomes) != 1 || outcomes[0].Source != "grading" || outcomes[0].IsCorrect {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}

	if _, err := env.grading.SubmitGrade(ctx, task.ID, 60, SubmitGradeReq{Score: 5}); !errors.Is(err, util.ErrInvalidState) {
		t.Fatalf("submit on done task err = %v, want ErrInvalidState", err)
	}
}

func TestGradingScoreValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, _ := practiceGradingTask(t, env, 1, 10)

	tests := []struct {
		name  string
		score float64
	}{
		{"negative", -1},
		{"above full score", 10.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.grading.SubmitGrade(ctx, task.ID, 60, SubmitGradeReq{Score: tt.score}); !errors.Is(err, util.ErrInvalidScore) {
				t.Fatalf("err = %v, want ErrInvalidScore", err)
			}
		})
	}

	got, err := env.grading.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.GradingTaskPending || got.Score != nil {
		t.Fatalf("rejected grade changed the task: %+v", got)
	}
}

func TestGradingReopenAndRegrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, _ := practiceGradingTask(t, env, 1, 10)

	if _, err := env.grading.Claim(ctx, task.ID, 50); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	passed := true
	if _, err := env.grading.SubmitGrade(ctx, task.ID, 50, SubmitGradeReq{Score: 4, IsPassed: &passed}); err != nil {
		t.Fatalf("SubmitGrade: %v", err)
	}
	if _, err := env.grading.Claim(ctx, task.ID, 50); !errors.Is(err, util.ErrInvalidState) {
		t.Fatalf("claim done task err = %v, want ErrInvalidState", err)
	}

	reopened, err := env.grading.Reopen(ctx, task.ID, "score too low")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.Status != model.GradingTaskReopen || reopened.AssigneeID != nil || reopened.ReopenReason != "score too low" {
		t.Fatalf("unexpected reopened task: %+v", reopened)
	}
	stored, err := env.grading.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Score == nil || *stored.Score != 4 || stored.AssigneeID != nil || stored.ReopenedAt == nil {
		t.Fatalf("previous score should be kept until regrade: %+v", stored)
	}

	if _, err := env.grading.Claim(ctx, task.ID, 52); err != nil {
		t.Fatalf("Claim reopened task: %v", err)
	}
	regraded, err := env.grading.SubmitGrade(ctx, task.ID, 52, SubmitGradeReq{Score: 9})
	if err != nil {
		t.Fatalf("SubmitGrade: %v", err)
	}
	if *regraded.Score != 9 || *regraded.AssigneeID != 52 || !*regraded.IsPassed {
		t.Fatalf("unexpected regraded task: %+v", regraded)
	}

	record, err := repository.NewPracticeRepository(env.db).FindRecord(ctx, *task.PracticeRecordID)
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if *record.Score != 9 {
		t.Fatalf("record score = %v, want 9", *record.Score)
	}
	if outcomes := env.sink.all(); len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1 for a single submission", len(outcomes))
	}
}

func TestGradingRegradeKeepsReviewLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, q := practiceGradingTask(t, env, 2, 10)

	if _, err := env.grading.SubmitGrade(ctx, task.ID, 60, SubmitGradeReq{Score: 0}); err != nil {
		t.Fatalf("SubmitGrade: %v", err)
	}

	wrongBooks := repository.NewWrongBookRepository(env.db)
	for i := 0; i < 2; i++ {
		if _, err := env.grading.Reopen(ctx, task.ID, "recheck"); err != nil {
			t.Fatalf("Reopen #%d: %v", i+1, err)
		}
		if _, err := env.grading.SubmitGrade(ctx, task.ID, 60, SubmitGradeReq{Score: 8}); err != nil {
			t.Fatalf("SubmitGrade #%d: %v", i+1, err)
		}

		wb, err := wrongBooks.Find(ctx, 2, q.ID)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if wb.ReviewLevel != 0 || wb.IsMastered {
			t.Fatalf("regrade #%d moved the wrong book: level=%d mastered=%v", i+1, wb.ReviewLevel, wb.IsMastered)
		}
	}

	outcomes := env.sink.all()
	if len(outcomes) != 1 || outcomes[0].IsCorrect {
		t.Fatalf("outcomes = %+v, want the first grade only", outcomes)
	}
	record, err := repository.NewPracticeRepository(env.db).FindRecord(ctx, *task.PracticeRecordID)
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if record.Score == nil || *record.Score != 8 || record.IsPassed == nil || !*record.IsPassed {
		t.Fatalf("regrade should still correct the record: %+v", record)
	}
}

func TestGradingListTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	practiceGradingTask(t, env, 1, 10)

	if _, err := env.grading.ListTasks(ctx, "unknown", 10); !errors.Is(err, util.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	all, err := env.grading.ListTasks(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("tasks = %d, want 1", len(all))
	}
	assigned, err := env.grading.ListTasks(ctx, model.GradingTaskAssigned, 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(assigned) != 0 {
		t.Fatalf("assigned tasks = %d, want 0", len(assigned))
	}
}
