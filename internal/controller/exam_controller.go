package controller

import (
	"oabt_client/internal/service"
	"oabt_client/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Exams *service.ExamService
	Hub   *service.ExamHub
}

func NewExamController(exams *service.ExamService, hub *service.ExamHub) *ExamController {
	return &ExamController{Exams: exams, Hub: hub}
}

type SelectOptionRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Option     string `json:"option" binding:"required"`
}

// Open godoc
// @Summary 开始或恢复考试
// @Description 拉取题目并开始计时；未到期的截止时间会被沿用
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamSnapshot} "成功"
// @Failure 401 {object} util.Response "未登录"
// @Failure 409 {object} util.Response "试卷没有题目"
// @Router /api/exams/{testId} [post]
func (c *ExamController) Open(ctx *gin.Context) {
	session, err := c.Exams.Open(ctx.Request.Context(), ctx.Param("testId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session.Snapshot())
}

// Get godoc
// @Summary 考试快照
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamSnapshot} "成功"
// @Failure 404 {object} util.Response "考试未打开"
// @Router /api/exams/{testId} [get]
func (c *ExamController) Get(ctx *gin.Context) {
	session, err := c.Exams.Get(ctx.Param("testId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session.Snapshot())
}

// SelectOption godoc
// @Summary 作答
// @Description 每题只记录第一次作答，重复作答被忽略
// @Tags 考试
// @Accept  json
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Param   body body SelectOptionRequest true "题目和选项"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 409 {object} util.Response "考试已结束"
// @Router /api/exams/{testId}/answers [post]
func (c *ExamController) SelectOption(ctx *gin.Context) {
	var req SelectOptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	session, err := c.Exams.Get(ctx.Param("testId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	recorded, err := session.SelectOption(req.QuestionID, req.Option)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"recorded": recorded,
		"snapshot": session.Snapshot(),
	})
}

// Next godoc
// @Summary 下一题
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamSnapshot} "成功"
// @Router /api/exams/{testId}/next [post]
func (c *ExamController) Next(ctx *gin.Context) {
	c.act(ctx, (*service.ExamSession).Next)
}

// Prev godoc
// @Summary 上一题
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamSnapshot} "成功"
// @Router /api/exams/{testId}/prev [post]
func (c *ExamController) Prev(ctx *gin.Context) {
	c.act(ctx, (*service.ExamSession).Prev)
}

// Finish godoc
// @Summary 交卷
// @Description 重复交卷或超时后交卷不会重复提交
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamSnapshot} "成功"
// @Router /api/exams/{testId}/finish [post]
func (c *ExamController) Finish(ctx *gin.Context) {
	c.act(ctx, (*service.ExamSession).Finish)
}

// Retry godoc
// @Summary 重新作答
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamSnapshot} "成功"
// @Failure 409 {object} util.Response "考试尚未结束"
// @Router /api/exams/{testId}/retry [post]
func (c *ExamController) Retry(ctx *gin.Context) {
	c.act(ctx, func(s *service.ExamSession) error {
		return s.Retry(ctx.Request.Context())
	})
}

// Close godoc
// @Summary 离开考试页面
// @Description 停止计时，保留截止时间以便回来继续
// @Tags 考试
// @Produce  json
// @Param   testId path string true "试卷 ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/exams/{testId} [delete]
func (c *ExamController) Close(ctx *gin.Context) {
	if err := c.Exams.Close(ctx.Param("testId")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Stream godoc
// @Summary 考试状态推送
// @Description websocket，每次 tick 和状态变化推送快照，可发送 SELECT_OPTION/NEXT/PREV/FINISH
// @Tags 考试
// @Param   testId path string true "试卷 ID"
// @Router /api/exams/{testId}/ws [get]
func (c *ExamController) Stream(ctx *gin.Context) {
	testID := ctx.Param("testId")
	if _, err := c.Exams.Get(testID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	service.ServeExamWs(c.Hub, ctx.Writer, ctx.Request, testID)
}

func (c *ExamController) act(ctx *gin.Context, action func(*service.ExamSession) error) {
	session, err := c.Exams.Get(ctx.Param("testId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if err := action(session); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session.Snapshot())
}
