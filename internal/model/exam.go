package model

import (
	"time"

	"gorm.io/datatypes"
)

type ExamPaperStatus string

const (
	ExamPaperDraft     ExamPaperStatus = "draft"
	ExamPaperPublished ExamPaperStatus = "published"
	ExamPaperArchived  ExamPaperStatus = "archived"
)

// ExamPaper 试卷由教研端维护，本服务只读
type ExamPaper struct {
	BaseModel
	Title           string          `gorm:"size:200;not null" json:"title"`
	Status          ExamPaperStatus `gorm:"size:16;index;not null" json:"status"`
	DurationMinutes int             `gorm:"not null" json:"durationMinutes"`
	TotalScore      float64         `json:"totalScore"`
	Items           []ExamPaperItem `gorm:"foreignKey:PaperID" json:"items,omitempty"`
}

func (ExamPaper) TableName() string {
	return "exam_papers"
}

func (p *ExamPaper) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

type ExamPaperItem struct {
	BaseModel
	PaperID    uint    `gorm:"index;not null" json:"paperId"`
	QuestionID uint    `gorm:"not null" json:"questionId"`
	Seq        int     `gorm:"not null" json:"seq"`
	Score      float64 `gorm:"not null" json:"score"`
}

func (ExamPaperItem) TableName() string {
	return "exam_paper_items"
}

type ExamAttemptStatus string

const (
	ExamAttemptActive    ExamAttemptStatus = "active"
	ExamAttemptCompleted ExamAttemptStatus = "completed"
	ExamAttemptTimeout   ExamAttemptStatus = "timeout"
)

type ExamAttempt struct {
	BaseModel
	PaperID            uint              `gorm:"index:idx_attempt_student_paper;not null" json:"paperId"`
	StudentID          uint              `gorm:"index:idx_attempt_student_paper;not null" json:"studentId"`
	Status             ExamAttemptStatus `gorm:"size:16;index;not null" json:"status"`
	StartedAt          time.Time         `json:"startedAt"`
	FinishedAt         *time.Time        `json:"finishedAt,omitempty"`
	DurationSeconds    int               `json:"durationSeconds"`
	TotalScore         *float64          `json:"totalScore,omitempty"`
	ObjectiveScore     float64           `gorm:"not null;default:0" json:"objectiveScore"`
	SubjectiveScore    float64           `gorm:"not null;default:0" json:"subjectiveScore"`
	NeedsManualGrading bool              `gorm:"not null;default:false" json:"needsManualGrading"`
	Version            int               `gorm:"not null" json:"version"`
	Items              []ExamAttemptItem `gorm:"foreignKey:AttemptID" json:"items,omitempty"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

func (a *ExamAttempt) IsTerminal() bool {
	return a.Status == ExamAttemptCompleted || a.Status == ExamAttemptTimeout
}

type ExamAttemptItem struct {
	BaseModel
	AttemptID          uint           `gorm:"not null;uniqueIndex:idx_attempt_item_seq;uniqueIndex:idx_attempt_paper_item" json:"attemptId"`
	PaperItemID        uint           `gorm:"not null;uniqueIndex:idx_attempt_paper_item" json:"paperItemId"`
	QuestionID         uint           `gorm:"index;not null" json:"questionId"`
	Seq                int            `gorm:"not null;uniqueIndex:idx_attempt_item_seq" json:"seq"`
	FullScore          float64        `gorm:"not null" json:"fullScore"`
	SubmittedAnswer    datatypes.JSON `json:"submittedAnswer,omitempty"`
	IsCorrect          *bool          `json:"isCorrect,omitempty"`
	Score              *float64       `json:"score,omitempty"`
	NeedsManualGrading bool           `gorm:"not null;default:false" json:"needsManualGrading"`
	DurationSeconds    int            `json:"durationSeconds"`
	SubmittedAt        *time.Time     `json:"submittedAt,omitempty"`
	GradedAt           *time.Time     `json:"gradedAt,omitempty"`
}

func (ExamAttemptItem) TableName() string {
	return "exam_attempt_items"
}

type ScanTrigger string

const (
	ScanTriggerScheduled ScanTrigger = "scheduled"
	ScanTriggerManual    ScanTrigger = "manual"
)

// TimeoutScanResult 超时扫描报告，不落库，最近一次结果写入缓存
type TimeoutScanResult struct {
	ScannedCount      int         `json:"scannedCount"`
	TimeoutCount      int         `json:"timeoutCount"`
	AutoFinishedCount int         `json:"autoFinishedCount"`
	ScannedAt         time.Time   `json:"scannedAt"`
	Trigger           ScanTrigger `json:"trigger"`
}
