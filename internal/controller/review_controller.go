package controller

import (
	"edu_practice_backend/internal/service"
	"edu_practice_backend/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ReviewController 错题复习接口
type ReviewController struct {
	ReviewService *service.ReviewSchedulerService
}

func NewReviewController(reviewService *service.ReviewSchedulerService) *ReviewController {
	return &ReviewController{ReviewService: reviewService}
}

// GetDue godoc
// @Summary 获取到期错题
// @Tags 复习
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量，默认20"
// @Success 200 {object} util.Response{data=map[string]interface{}}
// @Router /api/review/due [get]
func (c *ReviewController) GetDue(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	entries, err := c.ReviewService.DueEntries(ctx.Request.Context(), user.UserID, time.Now(), limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"entries": entries,
	})
}

// GetDailyTasks godoc
// @Summary 获取当天复习任务
// @Tags 复习
// @Produce json
// @Security BearerAuth
// @Param runDate query string false "日期 YYYY-MM-DD，默认今天"
// @Success 200 {object} util.Response{data=map[string]interface{}}
// @Router /api/review/daily-tasks [get]
func (c *ReviewController) GetDailyTasks(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	runDate, err := util.ParseDate(ctx.Query("runDate"), time.Now())
	if err != nil {
		util.BadRequest(ctx, "日期格式应为 YYYY-MM-DD")
		return
	}

	tasks, err := c.ReviewService.ListDailyTasks(ctx.Request.Context(), runDate, user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"runDate": runDate.Format(util.DateFormat),
		"tasks":   tasks,
	})
}
