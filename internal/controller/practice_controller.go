package controller

import (
	"edu_practice_backend/internal/service"
	"edu_practice_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// PracticeController 练习会话接口
type PracticeController struct {
	PracticeService *service.PracticeSessionService
}

func NewPracticeController(practiceService *service.PracticeSessionService) *PracticeController {
	return &PracticeController{PracticeService: practiceService}
}

func parseSessionParams(ctx *gin.Context) (uint, int, bool) {
	sessionID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "练习会话ID无效")
		return 0, 0, false
	}
	seq, err := strconv.Atoi(ctx.Param("seq"))
	if err != nil || seq <= 0 {
		util.BadRequest(ctx, "题目序号无效")
		return 0, 0, false
	}
	return uint(sessionID), seq, true
}

// CreateSession godoc
// @Summary 创建练习会话
// @Description 按模式与筛选条件抽题，复习模式从到期错题中抽取
// @Tags 练习
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreatePracticeSessionReq true "练习设置"
// @Success 201 {object} util.Response{data=model.PracticeSession}
// @Failure 422 {object} util.Response "题库为空"
// @Router /api/practice-sessions [post]
func (c *PracticeController) CreateSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreatePracticeSessionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.PracticeService.CreateSession(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// GetSession godoc
// @Summary 获取练习会话
// @Tags 练习
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.PracticeSession}
// @Router /api/practice-sessions/{id} [get]
func (c *PracticeController) GetSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	sessionID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "练习会话ID无效")
		return
	}

	session, err := c.PracticeService.GetSession(ctx.Request.Context(), user.UserID, uint(sessionID))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// SubmitAnswer godoc
// @Summary 提交练习作答
// @Description 客观题立即判分，主观题进入人工批改
// @Tags 练习
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param seq path int true "题目序号"
// @Param request body service.SubmitPracticeAnswerReq true "作答"
// @Success 200 {object} util.Response{data=service.SubmitPracticeAnswerResult}
// @Failure 409 {object} util.Response "已作答或会话已结束"
// @Router /api/practice-sessions/{id}/items/{seq}/answer [post]
func (c *PracticeController) SubmitAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, seq, ok := parseSessionParams(ctx)
	if !ok {
		return
	}

	var req service.SubmitPracticeAnswerReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.PracticeService.SubmitAnswer(ctx.Request.Context(), user.UserID, sessionID, seq, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// SkipItem godoc
// @Summary 跳过题目
// @Tags 练习
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param seq path int true "题目序号"
// @Success 200 {object} util.Response{data=model.PracticeSessionItem}
// @Router /api/practice-sessions/{id}/items/{seq}/skip [post]
func (c *PracticeController) SkipItem(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, seq, ok := parseSessionParams(ctx)
	if !ok {
		return
	}

	item, err := c.PracticeService.SkipItem(ctx.Request.Context(), user.UserID, sessionID, seq)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, item)
}

// Finish godoc
// @Summary 结束练习
// @Description outcome 为 completed 时要求所有题目已作答或跳过
// @Tags 练习
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param request body service.FinishPracticeReq true "结束方式"
// @Success 200 {object} util.Response{data=model.PracticeSession}
// @Router /api/practice-sessions/{id}/finish [post]
func (c *PracticeController) Finish(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	sessionID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "练习会话ID无效")
		return
	}

	var req service.FinishPracticeReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.PracticeService.Finalize(ctx.Request.Context(), user.UserID, uint(sessionID), req.Outcome)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, session)
}
