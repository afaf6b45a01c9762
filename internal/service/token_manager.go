package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"oabt_client/internal/model"
	"oabt_client/internal/repository"
	"oabt_client/internal/util"
	"oabt_client/pkg/logger"
	"oabt_client/pkg/monitoring"
	"oabt_client/pkg/tracing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	refreshPath           = "/auth/refresh"
	defaultRefreshMargin  = time.Hour
	defaultRefreshTimeout = 15 * time.Second
)

// TokenSource 提供当前可用的 access token；返回空串表示未登录
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// TokenManager 持有本地存储中的 access/refresh token 对，
// 在过期前刷新，并保证同一时刻最多只有一个刷新请求在途。
type TokenManager struct {
	Store   repository.KVStore
	Backend *BackendURL
	HTTP    *http.Client

	// RefreshMargin 距离过期不足该时长即刷新
	RefreshMargin  time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time

	group singleflight.Group
}

func NewTokenManager(store repository.KVStore, backend *BackendURL, client *http.Client, margin time.Duration) *TokenManager {
	if client == nil {
		client = &http.Client{Timeout: defaultRefreshTimeout}
	}
	if margin <= 0 {
		margin = defaultRefreshMargin
	}
	return &TokenManager{
		Store:          store,
		Backend:        backend,
		HTTP:           client,
		RefreshMargin:  margin,
		RefreshTimeout: defaultRefreshTimeout,
		Now:            time.Now,
	}
}

// GetValidToken 返回可直接使用的 access token。
// 未登录返回 ""；即将过期或无法解析时触发刷新，刷新失败同样返回 ""。
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	token, err := m.Store.Get(ctx, util.KeyAuthToken)
	if errors.Is(err, util.ErrKeyNotFound) || (err == nil && token == "") {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}

	if !m.expiringSoon(token) {
		return token, nil
	}
	return m.refresh(ctx)
}

func (m *TokenManager) expiringSoon(token string) bool {
	exp, err := util.TokenExpiry(token)
	if err != nil {
		logger.Log.Warn("Stored access token could not be decoded, refreshing", zap.Error(err))
		return true
	}
	return exp.Sub(m.Now()) < m.RefreshMargin
}

// refresh 合并并发刷新：所有等待者拿到同一个结果。
// 刷新本身使用脱离调用方的 context，单个调用方放弃等待不会打断其他人。
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.RefreshTimeout)
		defer cancel()
		return m.performRefresh(rctx), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *TokenManager) performRefresh(ctx context.Context) string {
	refreshToken, err := m.Store.Get(ctx, util.KeyRefreshToken)
	if err != nil || refreshToken == "" {
		if err != nil && !errors.Is(err, util.ErrKeyNotFound) {
			logger.Log.Error("Failed to read refresh token", zap.Error(err))
		}
		monitoring.TokenRefreshCounter.WithLabelValues("no_refresh_token").Inc()
		m.clearQuietly(ctx)
		return ""
	}

	resp, err := m.callRefresh(ctx, refreshToken)
	if err != nil {
		logger.Log.Error("Token refresh failed", zap.Error(err))
		monitoring.TokenRefreshCounter.WithLabelValues("failed").Inc()
		m.clearQuietly(ctx)
		return ""
	}

	if err := m.Store.MultiSet(ctx, map[string]string{
		util.KeyAuthToken:    resp.AccessToken,
		util.KeyRefreshToken: resp.RefreshToken,
	}); err != nil {
		logger.Log.Error("Failed to persist refreshed tokens", zap.Error(err))
		monitoring.TokenRefreshCounter.WithLabelValues("failed").Inc()
		m.clearQuietly(ctx)
		return ""
	}

	monitoring.TokenRefreshCounter.WithLabelValues("success").Inc()
	logger.Log.Debug("Access token refreshed")
	return resp.AccessToken
}

func (m *TokenManager) callRefresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	payload, err := json.Marshal(model.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Backend.Join(refreshPath), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	spanCtx, span := tracing.StartClientSpan(ctx, req)
	defer span.End()
	req = req.WithContext(spanCtx)

	started := time.Now()
	resp, err := m.HTTP.Do(req)
	if err != nil {
		monitoring.ObserveUpstream(http.MethodPost, refreshPath, 0, started)
		return nil, err
	}
	defer resp.Body.Close()
	monitoring.ObserveUpstream(http.MethodPost, refreshPath, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var body model.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, errors.New("refresh response has no access token")
	}
	// 后端不轮换 refresh token 时沿用旧值
	if body.RefreshToken == "" {
		body.RefreshToken = refreshToken
	}
	return &body, nil
}

// ClearTokens 删除三个凭据字段
func (m *TokenManager) ClearTokens(ctx context.Context) error {
	return m.Store.MultiRemove(ctx, util.KeyAuthToken, util.KeyRefreshToken, util.KeyUserID)
}

func (m *TokenManager) clearQuietly(ctx context.Context) {
	if err := m.ClearTokens(ctx); err != nil {
		logger.Log.Error("Failed to clear credentials", zap.Error(err))
	}
}

// SaveTokens 原子写入三个凭据字段
func (m *TokenManager) SaveTokens(ctx context.Context, accessToken, refreshToken, userID string) error {
	return m.Store.MultiSet(ctx, map[string]string{
		util.KeyAuthToken:    accessToken,
		util.KeyRefreshToken: refreshToken,
		util.KeyUserID:       userID,
	})
}

// UserID 返回当前登录用户 id，未登录返回 ""
func (m *TokenManager) UserID(ctx context.Context) (string, error) {
	id, err := m.Store.Get(ctx, util.KeyUserID)
	if errors.Is(err, util.ErrKeyNotFound) {
		return "", nil
	}
	return id, err
}

// Reset 清空凭据并丢弃在途刷新的结果，供测试和切换账号使用
func (m *TokenManager) Reset(ctx context.Context) error {
	m.group.Forget("refresh")
	return m.ClearTokens(ctx)
}
