package controller

import (
	"oabt_client/internal/model"
	"oabt_client/internal/service"
	"oabt_client/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// Register godoc
// @Summary 注册
// @Description 以昵称和表情注册，返回 token 时写入本地凭据
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body model.RegisterRequest true "注册信息"
// @Success 201 {object} util.Response{data=model.AuthResponse} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "昵称已被占用"
// @Router /api/auth/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req model.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.AuthService.Register(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, resp)
}

// SocialLogin godoc
// @Summary 社交登录
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body model.SocialLoginRequest true "身份提供方的 id token"
// @Success 200 {object} util.Response{data=model.AuthResponse} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/auth/social-login [post]
func (c *AuthController) SocialLogin(ctx *gin.Context) {
	var req model.SocialLoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.AuthService.SocialLogin(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// Logout godoc
// @Summary 退出登录
// @Description 清除本地保存的全部凭据
// @Tags 认证
// @Produce  json
// @Success 200 {object} util.Response "成功"
// @Router /api/auth/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	if err := c.AuthService.Logout(ctx.Request.Context()); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Status godoc
// @Summary 登录状态
// @Description 必要时会刷新 token
// @Tags 认证
// @Produce  json
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/auth/status [get]
func (c *AuthController) Status(ctx *gin.Context) {
	loggedIn, err := c.AuthService.LoggedIn(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	userID := ""
	if loggedIn {
		userID, _ = c.AuthService.Tokens.UserID(ctx.Request.Context())
	}
	util.Success(ctx, gin.H{
		"loggedIn": loggedIn,
		"userId":   userID,
	})
}
