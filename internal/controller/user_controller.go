package controller

import (
	"oabt_client/internal/middleware"
	"oabt_client/internal/model"
	"oabt_client/internal/service"
	"oabt_client/internal/util"

	"github.com/gin-gonic/gin"
)

// UserController 个人资料、历史、排行榜和代币
type UserController struct {
	Backend *service.BackendService
}

func NewUserController(backend *service.BackendService) *UserController {
	return &UserController{Backend: backend}
}

// GetProfile godoc
// @Summary 当前用户资料
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Failure 401 {object} util.Response "未登录"
// @Router /api/profile [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	userID := middleware.UserID(ctx)
	if userID == "" {
		util.Unauthorized(ctx)
		return
	}
	user, err := c.Backend.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary 修改昵称和表情
// @Tags 用户
// @Accept  json
// @Produce  json
// @Param   body body model.UpdateUserRequest true "新资料"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Failure 409 {object} util.Response "昵称已被占用"
// @Router /api/profile [put]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	var req model.UpdateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.Nickname == "" && req.Emoji == "" {
		util.BadRequest(ctx, "nickname or emoji is required")
		return
	}

	user, err := c.Backend.UpdateUser(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// GetHistory godoc
// @Summary 做题历史
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.HistoryItem} "成功"
// @Router /api/profile/history [get]
func (c *UserController) GetHistory(ctx *gin.Context) {
	userID := middleware.UserID(ctx)
	if userID == "" {
		util.Unauthorized(ctx)
		return
	}
	history, err := c.Backend.GetHistory(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, history)
}

// GetLeaderboard godoc
// @Summary 排行榜
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.LeaderboardEntry} "成功"
// @Router /api/leaderboard [get]
func (c *UserController) GetLeaderboard(ctx *gin.Context) {
	board, err := c.Backend.GetLeaderboard(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, board)
}

// ClaimReward godoc
// @Summary 领取奖励
// @Tags 代币
// @Accept  json
// @Produce  json
// @Param   body body model.RewardRequest true "奖励类型 ad_watch | daily_login"
// @Success 200 {object} util.Response{data=model.RewardResult} "成功"
// @Failure 409 {object} util.Response "今日已领取"
// @Router /api/rewards [post]
func (c *UserController) ClaimReward(ctx *gin.Context) {
	var req model.RewardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := c.Backend.ClaimReward(ctx.Request.Context(), req.RewardType)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// SpendTokens godoc
// @Summary 消费代币
// @Tags 代币
// @Accept  json
// @Produce  json
// @Param   body body model.SpendTokensRequest true "数量和用途"
// @Success 200 {object} util.Response{data=model.SpendTokensResult} "成功"
// @Failure 402 {object} util.Response "余额不足"
// @Router /api/tokens/spend [post]
func (c *UserController) SpendTokens(ctx *gin.Context) {
	var req model.SpendTokensRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := c.Backend.SpendTokens(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
