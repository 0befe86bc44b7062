package model

import (
	"time"

	"gorm.io/datatypes"
)

type PracticeMode string

const (
	PracticeModeRandom    PracticeMode = "random"
	PracticeModeCategory  PracticeMode = "category"
	PracticeModeKnowledge PracticeMode = "knowledge"
	PracticeModeReview    PracticeMode = "review"
)

type PracticeSessionStatus string

const (
	PracticeSessionActive    PracticeSessionStatus = "active"
	PracticeSessionCompleted PracticeSessionStatus = "completed"
	PracticeSessionAbandoned PracticeSessionStatus = "abandoned"
)

type PracticeItemStatus string

const (
	PracticeItemPending  PracticeItemStatus = "pending"
	PracticeItemAnswered PracticeItemStatus = "answered"
	PracticeItemSkipped  PracticeItemStatus = "skipped"
)

type ItemSourceType string

const (
	ItemSourceNormal    ItemSourceType = "normal"
	ItemSourceReview    ItemSourceType = "review"
	ItemSourceRecommend ItemSourceType = "recommend"
)

// PracticeFilter 组卷条件
type PracticeFilter struct {
	CategoryIDs       []uint         `json:"categoryIds,omitempty"`
	KnowledgePointIDs []uint         `json:"knowledgePointIds,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Types             []QuestionType `json:"types,omitempty"`
	Difficulties      []string       `json:"difficulties,omitempty"`
}

type PracticeSession struct {
	BaseModel
	StudentID     uint                               `gorm:"index;not null" json:"studentId"`
	Mode          PracticeMode                       `gorm:"size:16;not null" json:"mode"`
	Config        datatypes.JSONType[PracticeFilter] `json:"config"`
	Status        PracticeSessionStatus              `gorm:"size:16;index;not null" json:"status"`
	TotalCount    int                                `gorm:"not null" json:"totalCount"`
	AnsweredCount int                                `gorm:"not null;default:0" json:"answeredCount"`
	CorrectCount  int                                `gorm:"not null;default:0" json:"correctCount"`
	StartedAt     time.Time                          `json:"startedAt"`
	EndedAt       *time.Time                         `json:"endedAt,omitempty"`
	Version       int                                `gorm:"not null" json:"version"`
	Items         []PracticeSessionItem              `gorm:"foreignKey:SessionID" json:"items,omitempty"`
}

func (PracticeSession) TableName() string {
	return "practice_sessions"
}

func (s *PracticeSession) IsTerminal() bool {
	return s.Status == PracticeSessionCompleted || s.Status == PracticeSessionAbandoned
}

type PracticeSessionItem struct {
	BaseModel
	SessionID   uint               `gorm:"not null;uniqueIndex:idx_practice_item_seq" json:"sessionId"`
	QuestionID  uint               `gorm:"index;not null" json:"questionId"`
	Seq         int                `gorm:"not null;uniqueIndex:idx_practice_item_seq" json:"seq"`
	SourceType  ItemSourceType     `gorm:"size:16;not null;default:'normal'" json:"sourceType"`
	SourceRefID *uint              `json:"sourceRefId,omitempty"`
	Status      PracticeItemStatus `gorm:"size:16;not null" json:"status"`
	AnsweredAt  *time.Time         `json:"answeredAt,omitempty"`
}

func (PracticeSessionItem) TableName() string {
	return "practice_session_items"
}

// PracticeRecord 练习作答记录，主观题的人工批改结果回写到这里
type PracticeRecord struct {
	BaseModel
	SessionID          uint           `gorm:"index;not null" json:"sessionId"`
	ItemID             uint           `gorm:"uniqueIndex;not null" json:"itemId"`
	StudentID          uint           `gorm:"index;not null" json:"studentId"`
	QuestionID         uint           `gorm:"index;not null" json:"questionId"`
	Answer             datatypes.JSON `json:"answer"`
	IsCorrect          *bool          `json:"isCorrect,omitempty"`
	Score              *float64       `json:"score,omitempty"`
	IsPassed           *bool          `json:"isPassed,omitempty"`
	GradingFeedback    string         `gorm:"type:text" json:"gradingFeedback,omitempty"`
	NeedsManualGrading bool           `gorm:"not null;default:false" json:"needsManualGrading"`
	DurationSeconds    int            `json:"durationSeconds"`
	SubmittedAt        time.Time      `json:"submittedAt"`
}

func (PracticeRecord) TableName() string {
	return "practice_records"
}
