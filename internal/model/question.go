package model

import "gorm.io/datatypes"

type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// IsSubjective 主观题需要人工批改
func (t QuestionType) IsSubjective() bool {
	return t == QuestionShortAnswer || t == QuestionEssay
}

const (
	QuestionStatusActive   = "active"
	QuestionStatusDisabled = "disabled"
)

// Question 题库题目，题目的编辑与渲染由内容服务负责，这里只保存判分所需的数据
type Question struct {
	BaseModel
	Type             QuestionType                `gorm:"size:32;index;not null" json:"type"`
	Stem             string                      `gorm:"type:text" json:"stem"`
	Options          datatypes.JSON              `json:"options,omitempty"`
	AnswerKey        datatypes.JSON              `json:"-"`
	FullScore        float64                     `gorm:"default:0" json:"fullScore"`
	Difficulty       string                      `gorm:"size:16;index" json:"difficulty"`
	CategoryID       *uint                       `gorm:"index" json:"categoryId,omitempty"`
	KnowledgePointID *uint                       `gorm:"index" json:"knowledgePointId,omitempty"`
	Tags             datatypes.JSONSlice[string] `json:"tags,omitempty"`
	Status           string                      `gorm:"size:16;index;default:'active'" json:"status"`
}

func (Question) TableName() string {
	return "questions"
}
