package service

import (
	"context"
	"fmt"
	"oabt_client/internal/model"
	"oabt_client/internal/util"
	"oabt_client/pkg/logger"

	"go.uber.org/zap"
)

// AuthService 登录状态：注册/社交登录后落盘凭据，退出时清除
type AuthService struct {
	Backend *BackendService
	Tokens  *TokenManager
}

func NewAuthService(backend *BackendService, tokens *TokenManager) *AuthService {
	return &AuthService{
		Backend: backend,
		Tokens:  tokens,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	resp, err := s.Backend.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, resp); err != nil {
		return nil, err
	}
	logger.Log.Info("User registered", zap.String("userId", resp.ID))
	return resp, nil
}

func (s *AuthService) SocialLogin(ctx context.Context, req model.SocialLoginRequest) (*model.AuthResponse, error) {
	resp, err := s.Backend.SocialLogin(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, resp); err != nil {
		return nil, err
	}
	logger.Log.Info("Social login succeeded", zap.String("provider", req.Provider), zap.String("userId", resp.ID))
	return resp, nil
}

// persist 有 token 时三项一起写入；老接口只返回 id，则只记住 USER_ID
func (s *AuthService) persist(ctx context.Context, resp *model.AuthResponse) error {
	if resp.ID == "" && resp.User != nil {
		resp.ID = resp.User.ID
	}
	if resp.ID == "" && resp.AccessToken != "" {
		resp.ID = util.TokenSubject(resp.AccessToken)
	}

	if resp.AccessToken == "" {
		if resp.ID == "" {
			return nil
		}
		if err := s.Tokens.Store.Set(ctx, util.KeyUserID, resp.ID); err != nil {
			return fmt.Errorf("save user id: %w", err)
		}
		return nil
	}

	if err := s.Tokens.SaveTokens(ctx, resp.AccessToken, resp.RefreshToken, resp.ID); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.Tokens.Reset(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	logger.Log.Info("User logged out")
	return nil
}

// LoggedIn 是否持有可用 token（必要时会触发刷新）
func (s *AuthService) LoggedIn(ctx context.Context) (bool, error) {
	token, err := s.Tokens.GetValidToken(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// CurrentUser 读取当前用户资料，未登录返回 ErrAuthenticationRequired
func (s *AuthService) CurrentUser(ctx context.Context) (*model.User, error) {
	userID, err := s.Tokens.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read user id: %w", err)
	}
	if userID == "" {
		return nil, util.ErrAuthenticationRequired
	}
	return s.Backend.GetUser(ctx, userID)
}
