package util

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")

	// 状态机相关
	ErrInvalidState        = errors.New("invalid state for this operation")
	ErrAlreadyAnswered     = errors.New("item already answered")
	ErrAlreadySubmitted    = errors.New("item already submitted")
	ErrAlreadyAssigned     = errors.New("task already assigned to another grader")
	ErrPaperNotPublished   = errors.New("paper not published")
	ErrEmptyQuestionPool   = errors.New("no question matches the requested configuration")
	ErrInvalidAnswerFormat = errors.New("invalid answer format")
	ErrInvalidScore        = errors.New("score out of range")
	ErrInvalidRequest      = errors.New("invalid request")

	// 并发控制
	ErrConcurrentModification   = errors.New("concurrent modification, please retry")
	ErrReviewGenerationConflict = errors.New("review task generation kept conflicting, retry later")

	// 资源不存在
	ErrSessionNotFound  = errors.New("practice session not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrPaperNotFound    = errors.New("paper not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrTaskNotFound     = errors.New("grading task not found")
	ErrQuestionNotFound = errors.New("question not found")
)
