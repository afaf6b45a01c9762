package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"oabt_client/internal/model"
)

// BackendService 后端接口的类型化封装，所有调用都经过 APIClient
type BackendService struct {
	API *APIClient
}

func NewBackendService(api *APIClient) *BackendService {
	return &BackendService{API: api}
}

func (s *BackendService) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	var out model.AuthResponse
	if err := s.call(ctx, http.MethodPost, "/register", req, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) SocialLogin(ctx context.Context, req model.SocialLoginRequest) (*model.AuthResponse, error) {
	var out model.AuthResponse
	if err := s.call(ctx, http.MethodPost, "/auth/social-login", req, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) UpdateUser(ctx context.Context, req model.UpdateUserRequest) (*model.User, error) {
	var out model.User
	if err := s.call(ctx, http.MethodPost, "/user/update", req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	if err := s.call(ctx, http.MethodGet, "/user/"+url.PathEscape(userID), nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) GetHistory(ctx context.Context, userID string) ([]model.HistoryItem, error) {
	out := []model.HistoryItem{}
	if err := s.call(ctx, http.MethodGet, "/user/history/"+url.PathEscape(userID), nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BackendService) GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	out := []model.LeaderboardEntry{}
	if err := s.call(ctx, http.MethodGet, "/leaderboard", nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTests category 为空时返回全部
func (s *BackendService) ListTests(ctx context.Context, category string) ([]model.Test, error) {
	endpoint := "/tests"
	if category != "" {
		endpoint += "?" + url.Values{"category": {category}}.Encode()
	}
	out := []model.Test{}
	if err := s.call(ctx, http.MethodGet, endpoint, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BackendService) ListCategories(ctx context.Context) ([]string, error) {
	out := []string{}
	if err := s.call(ctx, http.MethodGet, "/tests/categories", nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BackendService) GetTestQuestions(ctx context.Context, testID string) ([]model.Question, error) {
	out := []model.Question{}
	if err := s.call(ctx, http.MethodGet, "/test/"+url.PathEscape(testID), nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BackendService) SubmitTest(ctx context.Context, testID string, score int) (*model.SubmitTestResult, error) {
	var out model.SubmitTestResult
	req := model.SubmitTestRequest{TestID: testID, Score: score}
	if err := s.call(ctx, http.MethodPost, "/submit-test", req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) ClaimReward(ctx context.Context, rewardType string) (*model.RewardResult, error) {
	var out model.RewardResult
	req := model.RewardRequest{RewardType: rewardType}
	if err := s.call(ctx, http.MethodPost, "/api/v1/user/reward", req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) SpendTokens(ctx context.Context, req model.SpendTokensRequest) (*model.SpendTokensResult, error) {
	var out model.SpendTokensResult
	if err := s.call(ctx, http.MethodPost, "/api/v1/user/spend-tokens", req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RandomUnsolvedTest 首页“随便来一套”，所有题都做过时后端返回 404
func (s *BackendService) RandomUnsolvedTest(ctx context.Context, userID string) (*model.Test, error) {
	var out model.Test
	endpoint := "/api/v1/test/random-unsolved?" + url.Values{"userId": {userID}}.Encode()
	if err := s.call(ctx, http.MethodGet, endpoint, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BackendService) call(ctx context.Context, method, endpoint string, body interface{}, requireAuth bool, out interface{}) error {
	resp, err := s.API.Do(ctx, method, endpoint, body, requireAuth)
	if err != nil {
		return err
	}
	if err := DecodeJSON(resp, out); err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return nil
}
