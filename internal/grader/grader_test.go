package grader

import (
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/util"
	"encoding/json"
	"errors"
	"testing"
)

func mustKey(t *testing.T, qt model.QuestionType, raw string) AnswerKey {
	t.Helper()
	k, err := ParseAnswerKey(qt, []byte(raw))
	if err != nil {
		t.Fatalf("ParseAnswerKey(%s, %s): %v", qt, raw, err)
	}
	return k
}

func TestGradeObjective(t *testing.T) {
	tests := []struct {
		name      string
		qt        model.QuestionType
		key       string
		submitted string
		want      bool
	}{
		{"single correct", model.QuestionSingleChoice, `{"option":"B"}`, `"B"`, true},
		{"single case and space insensitive", model.QuestionSingleChoice, `{"option":"B"}`, `" b "`, true},
		{"single wrapped", model.QuestionSingleChoice, `{"option":"B"}`, `{"option":"B"}`, true},
		{"single wrong", model.QuestionSingleChoice, `{"option":"B"}`, `"C"`, false},
		{"multi same set other order", model.QuestionMultipleChoice, `{"options":["A","C"]}`, `["C","A"]`, true},
		{"multi duplicates collapse", model.QuestionMultipleChoice, `{"options":["A","C"]}`, `["A","C","a"]`, true},
		{"multi subset", model.QuestionMultipleChoice, `{"options":["A","C"]}`, `["A"]`, false},
		{"multi superset", model.QuestionMultipleChoice, `{"options":["A","C"]}`, `["A","B","C"]`, false},
		{"multi empty selection", model.QuestionMultipleChoice, `{"options":["A"]}`, `[]`, false},
		{"true false correct", model.QuestionTrueFalse, `{"value":false}`, `false`, true},
		{"true false wrong", model.QuestionTrueFalse, `{"value":true}`, `false`, false},
		{"fill blank normalized", model.QuestionFillBlank, `{"blanks":[["New York","NYC"],["1776"]]}`, `["  new   york ","1776"]`, true},
		{"fill blank alternative", model.QuestionFillBlank, `{"blanks":[["New York","NYC"]]}`, `"nyc"`, true},
		{"fill blank one wrong", model.QuestionFillBlank, `{"blanks":[["a"],["b"]]}`, `["a","c"]`, false},
		{"fill blank case sensitive", model.QuestionFillBlank, `{"blanks":[["Go"]],"caseSensitive":true}`, `["go"]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Grade(mustKey(t, tt.qt, tt.key), json.RawMessage(tt.submitted))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.NeedsManual {
				t.Fatalf("objective question must not need manual grading")
			}
			if res.IsCorrect == nil || *res.IsCorrect != tt.want {
				t.Fatalf("IsCorrect = %v, want %v", res.IsCorrect, tt.want)
			}
			if res.Correct() != tt.want {
				t.Fatalf("Correct() = %v, want %v", res.Correct(), tt.want)
			}
		})
	}
}

func TestGradeSubjectiveNeedsManual(t *testing.T) {
	for _, qt := range []model.QuestionType{model.QuestionShortAnswer, model.QuestionEssay} {
		key := mustKey(t, qt, `{"reference":"because"}`)
		res, err := Grade(key, json.RawMessage(`"my essay"`))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", qt, err)
		}
		if !res.NeedsManual || res.IsCorrect != nil {
			t.Fatalf("%s: got %+v, want needsManual with nil IsCorrect", qt, res)
		}
	}

	key := mustKey(t, model.QuestionShortAnswer, "")
	if _, err := Grade(key, json.RawMessage(`{"text":"wrapped"}`)); err != nil {
		t.Fatalf("wrapped text should be accepted: %v", err)
	}
}

func TestGradeInvalidFormat(t *testing.T) {
	tests := []struct {
		name      string
		qt        model.QuestionType
		key       string
		submitted string
	}{
		{"single given list", model.QuestionSingleChoice, `{"option":"A"}`, `["A"]`},
		{"single blank", model.QuestionSingleChoice, `{"option":"A"}`, `"  "`},
		{"multi given string", model.QuestionMultipleChoice, `{"options":["A"]}`, `"A"`},
		{"true false given string", model.QuestionTrueFalse, `{"value":true}`, `"yes"`},
		{"fill blank count mismatch", model.QuestionFillBlank, `{"blanks":[["a"],["b"]]}`, `["a"]`},
		{"fill blank given number", model.QuestionFillBlank, `{"blanks":[["1"]]}`, `1`},
		{"essay given number", model.QuestionEssay, `{}`, `42`},
		{"null answer", model.QuestionSingleChoice, `{"option":"A"}`, `null`},
		{"empty answer", model.QuestionSingleChoice, `{"option":"A"}`, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Grade(mustKey(t, tt.qt, tt.key), json.RawMessage(tt.submitted))
			if !errors.Is(err, util.ErrInvalidAnswerFormat) {
				t.Fatalf("err = %v, want ErrInvalidAnswerFormat", err)
			}
		})
	}
}

func TestParseAnswerKeyRejectsMalformedKeys(t *testing.T) {
	tests := []struct {
		qt  model.QuestionType
		raw string
	}{
		{model.QuestionSingleChoice, `{}`},
		{model.QuestionMultipleChoice, `{"options":[]}`},
		{model.QuestionTrueFalse, `{"value":"x"}`},
		{model.QuestionTrueFalse, `{}`},
		{model.QuestionFillBlank, `{"blanks":[[]]}`},
		{model.QuestionType("matching"), `{}`},
	}
	for _, tt := range tests {
		if _, err := ParseAnswerKey(tt.qt, []byte(tt.raw)); !errors.Is(err, ErrInvalidAnswerKey) {
			t.Errorf("ParseAnswerKey(%s, %s) err = %v, want ErrInvalidAnswerKey", tt.qt, tt.raw, err)
		}
	}
}

func TestGradeNilKey(t *testing.T) {
	if _, err := Grade(nil, json.RawMessage(`"A"`)); !errors.Is(err, ErrInvalidAnswerKey) {
		t.Fatalf("err = %v, want ErrInvalidAnswerKey", err)
	}
}
