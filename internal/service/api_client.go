package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"oabt_client/internal/util"
	"oabt_client/pkg/monitoring"
	"oabt_client/pkg/tracing"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// APIClient 给后端请求加 bearer 认证，token 失效(401)时重取一次 token 并重试一次
type APIClient struct {
	Backend *BackendURL
	Tokens  TokenSource
	HTTP    *http.Client
}

func NewAPIClient(backend *BackendURL, tokens TokenSource, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{Backend: backend, Tokens: tokens, HTTP: client}
}

// Do 发送请求。requireAuth 时拿不到 token 直接返回 ErrAuthenticationRequired，不发请求。
// 401 只重试一次，重试的响应原样返回（即使仍是错误状态）。
func (c *APIClient) Do(ctx context.Context, method, endpoint string, body interface{}, requireAuth bool) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
		}
	}

	token := ""
	if requireAuth {
		var err error
		if token, err = c.acquireToken(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(ctx, method, endpoint, payload, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || !requireAuth {
		return resp, nil
	}

	drain(resp)
	if token, err = c.acquireToken(ctx); err != nil {
		return nil, err
	}
	return c.send(ctx, method, endpoint, payload, token)
}

func (c *APIClient) Get(ctx context.Context, endpoint string, requireAuth bool) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, requireAuth)
}

func (c *APIClient) Post(ctx context.Context, endpoint string, data interface{}, requireAuth bool) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, data, requireAuth)
}

func (c *APIClient) Put(ctx context.Context, endpoint string, data interface{}, requireAuth bool) (*http.Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, data, requireAuth)
}

func (c *APIClient) acquireToken(ctx context.Context) (string, error) {
	token, err := c.Tokens.GetValidToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", util.ErrAuthenticationRequired
	}
	return token, nil
}

func (c *APIClient) send(ctx context.Context, method, endpoint string, payload []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Backend.Join(endpoint), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	route := routeLabel(endpoint)
	spanCtx, span := tracing.StartClientSpan(ctx, req)
	defer span.End()
	req = req.WithContext(spanCtx)
	span.SetAttributes(attribute.String("http.route", route))

	started := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		monitoring.ObserveUpstream(method, route, 0, started)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	monitoring.ObserveUpstream(method, route, resp.StatusCode, started)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// DecodeJSON 读取并关闭响应体。非 2xx 转成 *util.APIError，message 保留后端原文
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &util.APIError{Status: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// routeLabel 去掉 query 并把 id 段折叠，避免指标基数爆炸
func routeLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if looksLikeID(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	if _, err := uuid.Parse(seg); err == nil {
		return true
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
