package model

import "time"

// WrongBook 错题本条目，每个学生每道题一条
type WrongBook struct {
	BaseModel
	StudentID        uint       `gorm:"not null;uniqueIndex:idx_wrong_book_student_question" json:"studentId"`
	QuestionID       uint       `gorm:"not null;uniqueIndex:idx_wrong_book_student_question" json:"questionId"`
	WrongCount       int        `gorm:"not null;default:0" json:"wrongCount"`
	ReviewLevel      int        `gorm:"not null;default:0" json:"reviewLevel"`
	NextReviewAt     *time.Time `gorm:"index" json:"nextReviewAt,omitempty"`
	LastReviewResult *bool      `json:"lastReviewResult,omitempty"`
	LastReviewedAt   *time.Time `json:"lastReviewedAt,omitempty"`
	LastWrongAt      *time.Time `json:"lastWrongAt,omitempty"`
	IsMastered       bool       `gorm:"not null;default:false;index" json:"isMastered"`
	Version          int        `gorm:"not null" json:"version"`
}

func (WrongBook) TableName() string {
	return "wrong_books"
}

type ReviewTaskStatus string

const (
	ReviewTaskPending ReviewTaskStatus = "pending"
	ReviewTaskDone    ReviewTaskStatus = "done"
)

// ReviewDailyTask 每日复习任务，(run_date, student_id, wrong_book_id) 唯一
type ReviewDailyTask struct {
	BaseModel
	RunDate     string           `gorm:"size:10;not null;uniqueIndex:idx_review_task_unique" json:"runDate"`
	StudentID   uint             `gorm:"not null;uniqueIndex:idx_review_task_unique;index" json:"studentId"`
	WrongBookID uint             `gorm:"not null;uniqueIndex:idx_review_task_unique" json:"wrongBookId"`
	QuestionID  uint             `gorm:"not null" json:"questionId"`
	DueAt       time.Time        `json:"dueAt"`
	Status      ReviewTaskStatus `gorm:"size:16;not null" json:"status"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	// 生成时读到的错题本版本，写入前用于校验
	WrongBookVersion int `gorm:"-" json:"-"`
}

func (ReviewDailyTask) TableName() string {
	return "review_daily_tasks"
}

// SubmissionOutcome 一次作答的判定结果，驱动错题本更新
type SubmissionOutcome struct {
	StudentID  uint      `json:"studentId"`
	QuestionID uint      `json:"questionId"`
	IsCorrect  bool      `json:"isCorrect"`
	At         time.Time `json:"at"`
	// practice / exam / grading
	Source string `json:"source"`
}
