package controller

import (
	"context"
	"net/http"
	"oabt_client/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 本地存储的连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	Store  Pinger
	Driver string
}

func NewHealthController(store Pinger, driver string) *HealthController {
	return &HealthController{Store: store, Driver: driver}
}

// @Summary 健康检查
// @Description 检查本地存储是否可用
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := c.Store.Ping(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"storage": c.Driver,
		},
	})
}
