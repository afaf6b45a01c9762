package util

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry 读取 access token 的 exp 声明。
// 签名由后端校验，客户端只关心过期时间，所以这里不验签。
func TokenExpiry(tokenString string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	return exp.Time, nil
}

// TokenSubject 读取 user_id 声明，后端登录响应缺少 id 时兜底使用
func TokenSubject(tokenString string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return ""
	}
	if id, ok := claims["user_id"].(string); ok {
		return id
	}
	sub, _ := claims.GetSubject()
	return sub
}
