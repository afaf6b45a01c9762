package app

import (
	"oabt_client/internal/middleware"
	"oabt_client/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要本地凭据的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.RequireLogin(s.tokens))
	{
		a.registerTestRoutes(authGroup, c)
		a.registerExamRoutes(authGroup, c)
		a.registerProfileRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)

		auth := public.Group("/auth")
		auth.POST("/register", c.auth.Register)
		auth.POST("/social-login", c.auth.SocialLogin)
		auth.POST("/logout", c.auth.Logout)
		auth.GET("/status", c.auth.Status)
	}
}

func (a *App) registerTestRoutes(group *gin.RouterGroup, c *controllers) {
	tests := group.Group("/tests")
	{
		tests.GET("", c.test.ListTests)
		tests.GET("/categories", c.test.ListCategories)
		tests.GET("/random-unsolved", c.test.RandomUnsolved)
	}
}

func (a *App) registerExamRoutes(group *gin.RouterGroup, c *controllers) {
	exams := group.Group("/exams/:testId")
	{
		exams.POST("", c.exam.Open)
		exams.GET("", c.exam.Get)
		exams.DELETE("", c.exam.Close)
		exams.POST("/answers", c.exam.SelectOption)
		exams.POST("/next", c.exam.Next)
		exams.POST("/prev", c.exam.Prev)
		exams.POST("/finish", c.exam.Finish)
		exams.POST("/retry", c.exam.Retry)
		exams.GET("/ws", c.exam.Stream)
	}
}

func (a *App) registerProfileRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/profile", c.user.GetProfile)
	group.PUT("/profile", c.user.UpdateProfile)
	group.GET("/profile/history", c.user.GetHistory)
	group.GET("/leaderboard", c.user.GetLeaderboard)
	group.POST("/rewards", c.user.ClaimReward)
	group.POST("/tokens/spend", c.user.SpendTokens)
}
