package service

import (
	"strings"
	"sync/atomic"
)

// BackendURL 后端根地址，配置热更新时原子替换
type BackendURL struct {
	v atomic.Value
}

func NewBackendURL(raw string) *BackendURL {
	u := &BackendURL{}
	u.Set(raw)
	return u
}

func (u *BackendURL) Set(raw string) {
	u.v.Store(strings.TrimRight(raw, "/"))
}

func (u *BackendURL) String() string {
	s, _ := u.v.Load().(string)
	return s
}

// Join 拼接 endpoint，endpoint 以 / 开头
func (u *BackendURL) Join(endpoint string) string {
	return u.String() + endpoint
}
