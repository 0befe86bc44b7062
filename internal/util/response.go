package util

import (
	"edu_practice_backend/pkg/logger"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func ErrorWithCode(c *gin.Context, code int, errorCode, message string) {
	c.JSON(code, Response{
		Code:      code,
		Message:   message,
		ErrorCode: errorCode,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalServerError(c)
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrInvalidState, http.StatusConflict, CodeInvalidState},
	{ErrAlreadyAnswered, http.StatusConflict, CodeAlreadyAnswered},
	{ErrAlreadySubmitted, http.StatusConflict, CodeAlreadySubmitted},
	{ErrAlreadyAssigned, http.StatusConflict, CodeAlreadyAssigned},
	{ErrConcurrentModification, http.StatusConflict, CodeConcurrentModification},
	{ErrReviewGenerationConflict, http.StatusConflict, CodeReviewGenerationConflict},
	{ErrInvalidAnswerFormat, http.StatusBadRequest, CodeInvalidAnswerFormat},
	{ErrInvalidScore, http.StatusBadRequest, CodeInvalidScore},
	{ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
	{ErrEmptyQuestionPool, http.StatusUnprocessableEntity, CodeEmptyQuestionPool},
	{ErrPaperNotPublished, http.StatusUnprocessableEntity, CodePaperNotPublished},
	{ErrPermissionDenied, http.StatusForbidden, CodeForbidden},
	{ErrSessionNotFound, http.StatusNotFound, CodeNotFound},
	{ErrItemNotFound, http.StatusNotFound, CodeNotFound},
	{ErrPaperNotFound, http.StatusNotFound, CodeNotFound},
	{ErrAttemptNotFound, http.StatusNotFound, CodeNotFound},
	{ErrTaskNotFound, http.StatusNotFound, CodeNotFound},
	{ErrQuestionNotFound, http.StatusNotFound, CodeNotFound},
}

// HandleServiceError 将业务错误映射为 HTTP 状态码与错误码，未知错误记录日志后返回 500
func HandleServiceError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			ErrorWithCode(c, m.status, m.code, err.Error())
			return
		}
	}
	LogInternalError(c, err)
}
