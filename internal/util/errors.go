package util

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired 无可用 token，调用方需回到登录页
	ErrAuthenticationRequired = errors.New("AUTHENTICATION_REQUIRED")
	ErrMalformedToken         = errors.New("malformed token")
	ErrKeyNotFound            = errors.New("key not found")
	ErrSessionNotFound        = errors.New("exam session not found")
	ErrSessionNotActive       = errors.New("exam session is not in progress")
	ErrSessionNotTerminal     = errors.New("exam session has not finished")
	ErrQuestionNotFound       = errors.New("question not found")
	ErrOptionNotFound         = errors.New("option not found")
	ErrNoQuestions            = errors.New("test has no questions")
)

// APIError 后端返回的非 2xx 响应，Message 原样展示给用户
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}
