package grader

import (
	"edu_practice_backend/internal/model"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAnswerKey 题库中的标准答案无法解析，属于数据问题
var ErrInvalidAnswerKey = errors.New("invalid answer key")

// AnswerKey 标准答案，每种题型一个具体类型
type AnswerKey interface {
	QuestionType() model.QuestionType
	grade(submitted json.RawMessage) (Result, error)
}

type SingleChoiceKey struct {
	Option string `json:"option"`
}

func (SingleChoiceKey) QuestionType() model.QuestionType { return model.QuestionSingleChoice }

// MultipleChoiceKey 多选题按集合比较，顺序与重复项不影响结果
type MultipleChoiceKey struct {
	Options []string `json:"options"`
}

func (MultipleChoiceKey) QuestionType() model.QuestionType { return model.QuestionMultipleChoice }

type TrueFalseKey struct {
	Value bool `json:"value"`
}

func (TrueFalseKey) QuestionType() model.QuestionType { return model.QuestionTrueFalse }

// FillBlankKey 每个空可以有多个可接受答案
type FillBlankKey struct {
	Blanks        [][]string `json:"blanks"`
	CaseSensitive bool       `json:"caseSensitive"`
}

func (FillBlankKey) QuestionType() model.QuestionType { return model.QuestionFillBlank }

// SubjectiveKey 简答/论述题只保存参考答案，供批改老师查看
type SubjectiveKey struct {
	Type      model.QuestionType `json:"-"`
	Reference string             `json:"reference,omitempty"`
}

func (k SubjectiveKey) QuestionType() model.QuestionType { return k.Type }

// ParseAnswerKey 按题型解析题库中保存的标准答案
func ParseAnswerKey(t model.QuestionType, raw []byte) (AnswerKey, error) {
	switch t {
	case model.QuestionSingleChoice:
		var k SingleChoiceKey
		if err := json.Unmarshal(raw, &k); err != nil || strings.TrimSpace(k.Option) == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAnswerKey, t)
		}
		return k, nil
	case model.QuestionMultipleChoice:
		var k MultipleChoiceKey
		if err := json.Unmarshal(raw, &k); err != nil || len(normalizeOptionSet(k.Options)) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAnswerKey, t)
		}
		return k, nil
	case model.QuestionTrueFalse:
		var k struct {
			Value *bool `json:"value"`
		}
		if err := json.Unmarshal(raw, &k); err != nil || k.Value == nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAnswerKey, t)
		}
		return TrueFalseKey{Value: *k.Value}, nil
	case model.QuestionFillBlank:
		var k FillBlankKey
		if err := json.Unmarshal(raw, &k); err != nil || len(k.Blanks) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAnswerKey, t)
		}
		for _, accepted := range k.Blanks {
			if len(accepted) == 0 {
				return nil, fmt.Errorf("%w: %s has a blank without accepted answers", ErrInvalidAnswerKey, t)
			}
		}
		return k, nil
	case model.QuestionShortAnswer, model.QuestionEssay:
		k := SubjectiveKey{Type: t}
		if len(raw) > 0 {
			// 参考答案可为空
			_ = json.Unmarshal(raw, &k)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswerKey, t)
	}
}

// KeyForQuestion 取题目的标准答案
func KeyForQuestion(q *model.Question) (AnswerKey, error) {
	return ParseAnswerKey(q.Type, q.AnswerKey)
}
