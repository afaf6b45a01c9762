package controller

import (
	"oabt_client/internal/middleware"
	"oabt_client/internal/service"
	"oabt_client/internal/util"

	"github.com/gin-gonic/gin"
)

// TestController 试卷列表与分类
type TestController struct {
	Backend *service.BackendService
}

func NewTestController(backend *service.BackendService) *TestController {
	return &TestController{Backend: backend}
}

// ListTests godoc
// @Summary 试卷列表
// @Tags 试卷
// @Produce  json
// @Param   category query string false "分类"
// @Success 200 {object} util.Response{data=[]model.Test} "成功"
// @Failure 401 {object} util.Response "未登录"
// @Router /api/tests [get]
func (c *TestController) ListTests(ctx *gin.Context) {
	tests, err := c.Backend.ListTests(ctx.Request.Context(), ctx.Query("category"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, tests)
}

// ListCategories godoc
// @Summary 试卷分类
// @Tags 试卷
// @Produce  json
// @Success 200 {object} util.Response{data=[]string} "成功"
// @Router /api/tests/categories [get]
func (c *TestController) ListCategories(ctx *gin.Context) {
	categories, err := c.Backend.ListCategories(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, categories)
}

// RandomUnsolved godoc
// @Summary 随机一套未做过的试卷
// @Tags 试卷
// @Produce  json
// @Success 200 {object} util.Response{data=model.Test} "成功"
// @Failure 404 {object} util.Response "全部做完"
// @Router /api/tests/random-unsolved [get]
func (c *TestController) RandomUnsolved(ctx *gin.Context) {
	test, err := c.Backend.RandomUnsolvedTest(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, test)
}
