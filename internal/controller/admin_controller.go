package controller

import (
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/service"
	"edu_practice_backend/internal/util"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// AdminController 运维与批改接口
type AdminController struct {
	TimeoutService *service.ExamTimeoutService
	GradingService *service.ManualGradingService
	ReviewService  *service.ReviewSchedulerService
}

func NewAdminController(timeoutService *service.ExamTimeoutService, gradingService *service.ManualGradingService, reviewService *service.ReviewSchedulerService) *AdminController {
	return &AdminController{
		TimeoutService: timeoutService,
		GradingService: gradingService,
		ReviewService:  reviewService,
	}
}

type GenerateReviewTasksReq struct {
	RunDate string `json:"runDate"`
}

func parseTaskID(ctx *gin.Context) (uint, bool) {
	taskID, err := strconv.ParseUint(ctx.Param("taskId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "批改任务ID无效")
		return 0, false
	}
	return uint(taskID), true
}

// ScanTimeouts godoc
// @Summary 手动触发考试超时扫描
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.TimeoutScanResult}
// @Router /api/admin/exam-timeout-scan [post]
func (c *AdminController) ScanTimeouts(ctx *gin.Context) {
	result, err := c.TimeoutService.ScanTimeouts(ctx.Request.Context(), model.ScanTriggerManual)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// LastTimeoutScan godoc
// @Summary 最近一次超时扫描报告
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.TimeoutScanResult}
// @Failure 404 {object} util.Response "尚未扫描"
// @Router /api/admin/exam-timeout-scan/last [get]
func (c *AdminController) LastTimeoutScan(ctx *gin.Context) {
	report, err := c.TimeoutService.LastReport(ctx.Request.Context())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	if report == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, report)
}

// ListGradingTasks godoc
// @Summary 批改任务列表
// @Tags 批改
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending|assigned|done|reopen"
// @Param limit query int false "数量，默认50"
// @Success 200 {object} util.Response{data=map[string]interface{}}
// @Router /api/admin/manual-grading [get]
func (c *AdminController) ListGradingTasks(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	tasks, err := c.GradingService.ListTasks(ctx.Request.Context(), model.GradingTaskStatus(ctx.Query("status")), limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"tasks": tasks,
	})
}

// ClaimGradingTask godoc
// @Summary 领取批改任务
// @Description 默认领取人为当前用户
// @Tags 批改
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param taskId path int true "任务ID"
// @Param request body service.ClaimTaskReq false "领取人"
// @Success 200 {object} util.Response{data=model.ManualGradingTask}
// @Failure 409 {object} util.Response "已被他人领取"
// @Router /api/admin/manual-grading/{taskId}/claim [post]
func (c *AdminController) ClaimGradingTask(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	taskID, ok := parseTaskID(ctx)
	if !ok {
		return
	}

	var req service.ClaimTaskReq
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	if req.AssigneeID == 0 {
		req.AssigneeID = user.UserID
	}

	task, err := c.GradingService.Claim(ctx.Request.Context(), taskID, req.AssigneeID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, task)
}

// SubmitGrade godoc
// @Summary 提交批改结果
// @Tags 批改
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param taskId path int true "任务ID"
// @Param request body service.SubmitGradeReq true "评分"
// @Success 200 {object} util.Response{data=model.ManualGradingTask}
// @Failure 400 {object} util.Response "分数无效"
// @Router /api/admin/manual-grading/{taskId}/submit [post]
func (c *AdminController) SubmitGrade(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	taskID, ok := parseTaskID(ctx)
	if !ok {
		return
	}

	var req service.SubmitGradeReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	task, err := c.GradingService.SubmitGrade(ctx.Request.Context(), taskID, user.UserID, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, task)
}

// ReopenGradingTask godoc
// @Summary 重新打开批改任务
// @Tags 批改
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param taskId path int true "任务ID"
// @Param request body service.ReopenTaskReq true "原因"
// @Success 200 {object} util.Response{data=model.ManualGradingTask}
// @Router /api/admin/manual-grading/{taskId}/reopen [post]
func (c *AdminController) ReopenGradingTask(ctx *gin.Context) {
	taskID, ok := parseTaskID(ctx)
	if !ok {
		return
	}

	var req service.ReopenTaskReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	task, err := c.GradingService.Reopen(ctx.Request.Context(), taskID, req.Reason)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, task)
}

// GenerateReviewTasks godoc
// @Summary 生成每日复习任务
// @Description 可重复执行，已存在的任务不会重复生成
// @Tags 复习
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GenerateReviewTasksReq false "日期，默认今天"
// @Success 200 {object} util.Response{data=service.DailyGenerationResult}
// @Failure 409 {object} util.Response "并发冲突，稍后重试"
// @Router /api/admin/review-tasks/generate [post]
func (c *AdminController) GenerateReviewTasks(ctx *gin.Context) {
	var req GenerateReviewTasksReq
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	runDate, err := util.ParseDate(req.RunDate, time.Now())
	if err != nil {
		util.BadRequest(ctx, "日期格式应为 YYYY-MM-DD")
		return
	}

	result, err := c.ReviewService.GenerateDailyTasks(ctx.Request.Context(), runDate)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ExportReviewTasks godoc
// @Summary 导出每日复习任务
// @Tags 复习
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param runDate query string false "日期 YYYY-MM-DD，默认今天"
// @Success 200 {file} file
// @Router /api/admin/review-tasks/export [get]
func (c *AdminController) ExportReviewTasks(ctx *gin.Context) {
	runDate, err := util.ParseDate(ctx.Query("runDate"), time.Now())
	if err != nil {
		util.BadRequest(ctx, "日期格式应为 YYYY-MM-DD")
		return
	}

	data, err := c.ReviewService.ExportDailyTasks(ctx.Request.Context(), runDate)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	filename := fmt.Sprintf("review_tasks_%s.xlsx", runDate.Format(util.DateFormat))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	ctx.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
