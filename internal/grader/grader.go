package grader

import (
	"edu_practice_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Result 判分结果；主观题 IsCorrect 为空且 NeedsManual 为 true
type Result struct {
	IsCorrect   *bool
	NeedsManual bool
}

// Correct 仅在客观题判定正确时为 true
func (r Result) Correct() bool {
	return r.IsCorrect != nil && *r.IsCorrect
}

// Grade 纯函数，无副作用。作答格式与题型不匹配时返回 util.ErrInvalidAnswerFormat
func Grade(key AnswerKey, submitted json.RawMessage) (Result, error) {
	if key == nil {
		return Result{}, ErrInvalidAnswerKey
	}
	if len(submitted) == 0 || string(submitted) == "null" {
		return Result{}, fmt.Errorf("%w: empty answer", util.ErrInvalidAnswerFormat)
	}
	return key.grade(submitted)
}

func objective(ok bool) Result {
	return Result{IsCorrect: &ok}
}

func invalidFormat(k AnswerKey, detail string) error {
	return fmt.Errorf("%w: %s expects %s", util.ErrInvalidAnswerFormat, k.QuestionType(), detail)
}

func (k SingleChoiceKey) grade(submitted json.RawMessage) (Result, error) {
	selected, err := decodeSingleOption(submitted)
	if err != nil {
		return Result{}, invalidFormat(k, "a single option")
	}
	return objective(normalizeOption(selected) == normalizeOption(k.Option)), nil
}

func (k MultipleChoiceKey) grade(submitted json.RawMessage) (Result, error) {
	var selected []string
	if err := json.Unmarshal(submitted, &selected); err != nil {
		var wrapped struct {
			Options []string `json:"options"`
		}
		if err := json.Unmarshal(submitted, &wrapped); err != nil || wrapped.Options == nil {
			return Result{}, invalidFormat(k, "a list of options")
		}
		selected = wrapped.Options
	}
	return objective(equalSet(normalizeOptionSet(selected), normalizeOptionSet(k.Options))), nil
}

func (k TrueFalseKey) grade(submitted json.RawMessage) (Result, error) {
	var v bool
	if err := json.Unmarshal(submitted, &v); err != nil {
		var wrapped struct {
			Value *bool `json:"value"`
		}
		if err := json.Unmarshal(submitted, &wrapped); err != nil || wrapped.Value == nil {
			return Result{}, invalidFormat(k, "a boolean")
		}
		v = *wrapped.Value
	}
	return objective(v == k.Value), nil
}

func (k FillBlankKey) grade(submitted json.RawMessage) (Result, error) {
	var answers []string
	if err := json.Unmarshal(submitted, &answers); err != nil {
		var single string
		if err := json.Unmarshal(submitted, &single); err != nil {
			return Result{}, invalidFormat(k, "a list of blank answers")
		}
		answers = []string{single}
	}
	if len(answers) != len(k.Blanks) {
		return Result{}, invalidFormat(k, fmt.Sprintf("%d blank answers", len(k.Blanks)))
	}

	for i, accepted := range k.Blanks {
		got := normalizeBlank(answers[i], k.CaseSensitive)
		matched := false
		for _, a := range accepted {
			if got == normalizeBlank(a, k.CaseSensitive) {
				matched = true
				break
			}
		}
		if !matched {
			return objective(false), nil
		}
	}
	return objective(true), nil
}

func (k SubjectiveKey) grade(submitted json.RawMessage) (Result, error) {
	var text string
	if err := json.Unmarshal(submitted, &text); err != nil {
		var wrapped struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(submitted, &wrapped); err != nil || wrapped.Text == nil {
			return Result{}, invalidFormat(k, "text")
		}
	}
	return Result{NeedsManual: true}, nil
}

func decodeSingleOption(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", errors.New("blank option")
		}
		return s, nil
	}
	var wrapped struct {
		Option string `json:"option"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || strings.TrimSpace(wrapped.Option) == "" {
		return "", errors.New("malformed option")
	}
	return wrapped.Option, nil
}

func normalizeOption(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeOptionSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		n := normalizeOption(s)
		if n == "" {
			continue
		}
		out[n] = struct{}{}
	}
	return out
}

func equalSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// normalizeBlank 去掉首尾空白并合并中间连续空白
func normalizeBlank(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
