package controller

import (
	"edu_practice_backend/internal/service"
	"edu_practice_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ExamController 考试作答接口
type ExamController struct {
	ExamService *service.ExamAttemptService
}

func NewExamController(examService *service.ExamAttemptService) *ExamController {
	return &ExamController{ExamService: examService}
}

func parseAttemptID(ctx *gin.Context) (uint, bool) {
	attemptID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "考试作答ID无效")
		return 0, false
	}
	return uint(attemptID), true
}

// StartAttempt godoc
// @Summary 开始考试
// @Description 已有未超时的作答时返回该作答
// @Tags 考试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.StartAttemptReq true "试卷"
// @Success 201 {object} util.Response{data=model.ExamAttempt}
// @Failure 422 {object} util.Response "试卷未发布"
// @Router /api/exam-attempts [post]
func (c *ExamController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.StartAttemptReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.ExamService.StartAttempt(ctx.Request.Context(), user.UserID, req.PaperID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// GetAttempt godoc
// @Summary 获取考试作答
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.ExamAttempt}
// @Router /api/exam-attempts/{id} [get]
func (c *ExamController) GetAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := parseAttemptID(ctx)
	if !ok {
		return
	}

	attempt, err := c.ExamService.GetAttempt(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// SubmitItem godoc
// @Summary 提交考试题目
// @Description 每题只能提交一次，超时后提交被拒绝
// @Tags 考试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param paperItemId path int true "试卷题目ID"
// @Param request body service.SubmitExamItemReq true "作答"
// @Success 200 {object} util.Response{data=service.SubmitExamItemResult}
// @Failure 409 {object} util.Response "已提交或作答已结束"
// @Router /api/exam-attempts/{id}/items/{paperItemId}/answer [post]
func (c *ExamController) SubmitItem(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := parseAttemptID(ctx)
	if !ok {
		return
	}
	paperItemID, err := strconv.ParseUint(ctx.Param("paperItemId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "试卷题目ID无效")
		return
	}

	var req service.SubmitExamItemReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ExamService.SubmitItem(ctx.Request.Context(), user.UserID, attemptID, uint(paperItemID), req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Finish godoc
// @Summary 交卷
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.ExamAttempt}
// @Router /api/exam-attempts/{id}/finish [post]
func (c *ExamController) Finish(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := parseAttemptID(ctx)
	if !ok {
		return
	}

	attempt, err := c.ExamService.FinishByStudent(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
