package util

import (
	"errors"
	"net/http"
	"oabt_client/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, ErrAuthenticationRequired.Error())
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

// HandleError 按错误分类映射状态码：认证失效 401，后端业务错误原样透传，其余视为网络故障
func HandleError(c *gin.Context, err error) {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		Unauthorized(c)
	case errors.As(err, &apiErr):
		Error(c, apiErr.Status, apiErr.Message)
	case errors.Is(err, ErrSessionNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrOptionNotFound):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrSessionNotActive), errors.Is(err, ErrSessionNotTerminal), errors.Is(err, ErrNoQuestions):
		Error(c, http.StatusConflict, err.Error())
	default:
		logger.Log.Error("Upstream request failed", zap.Error(err))
		Error(c, http.StatusBadGateway, "Backend unavailable")
	}
}
