package model

import (
	"time"

	"gorm.io/datatypes"
)

type GradingSourceType string

const (
	GradingSourcePractice GradingSourceType = "practice"
	GradingSourceExam     GradingSourceType = "exam"
)

type GradingTaskStatus string

const (
	GradingTaskPending  GradingTaskStatus = "pending"
	GradingTaskAssigned GradingTaskStatus = "assigned"
	GradingTaskDone     GradingTaskStatus = "done"
	GradingTaskReopen   GradingTaskStatus = "reopen"
)

// ManualGradingTask 主观题批改任务，来源是练习记录或考试作答项之一
type ManualGradingTask struct {
	BaseModel
	SourceType        GradingSourceType           `gorm:"size:16;not null" json:"sourceType"`
	PracticeRecordID  *uint                       `gorm:"uniqueIndex" json:"practiceRecordId,omitempty"`
	ExamAttemptID     *uint                       `gorm:"index" json:"examAttemptId,omitempty"`
	ExamAttemptItemID *uint                       `gorm:"uniqueIndex" json:"examAttemptItemId,omitempty"`
	StudentID         uint                        `gorm:"index;not null" json:"studentId"`
	QuestionID        uint                        `gorm:"not null" json:"questionId"`
	Status            GradingTaskStatus           `gorm:"size:16;index;not null" json:"status"`
	AssigneeID        *uint                       `gorm:"index" json:"assigneeId,omitempty"`
	AssignedAt        *time.Time                  `json:"assignedAt,omitempty"`
	Score             *float64                    `json:"score,omitempty"`
	Feedback          string                      `gorm:"type:text" json:"feedback,omitempty"`
	Tags              datatypes.JSONSlice[string] `json:"tags,omitempty"`
	IsPassed          *bool                       `json:"isPassed,omitempty"`
	SubmittedAt       *time.Time                  `json:"submittedAt,omitempty"`
	ReopenReason      string                      `gorm:"size:500" json:"reopenReason,omitempty"`
	ReopenedAt        *time.Time                  `json:"reopenedAt,omitempty"`
	Version           int                         `gorm:"not null" json:"version"`
}

func (ManualGradingTask) TableName() string {
	return "manual_grading_tasks"
}
