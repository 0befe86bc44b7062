package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// 错误码，供前端区分失败原因
const (
	CodeInvalidState             = "INVALID_STATE"
	CodeAlreadyAnswered          = "ALREADY_ANSWERED"
	CodeAlreadySubmitted         = "ALREADY_SUBMITTED"
	CodeAlreadyAssigned          = "ALREADY_ASSIGNED"
	CodePaperNotPublished        = "PAPER_NOT_PUBLISHED"
	CodeEmptyQuestionPool        = "EMPTY_QUESTION_POOL"
	CodeInvalidAnswerFormat      = "INVALID_ANSWER_FORMAT"
	CodeInvalidScore             = "INVALID_SCORE"
	CodeInvalidRequest           = "INVALID_REQUEST"
	CodeConcurrentModification   = "CONCURRENT_MODIFICATION"
	CodeReviewGenerationConflict = "REVIEW_GENERATION_CONFLICT"
	CodeNotFound                 = "NOT_FOUND"
	CodeForbidden                = "FORBIDDEN"
	CodeRateLimited              = "RATE_LIMITED"
)
