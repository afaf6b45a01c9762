package model

type User struct {
	ID             string `json:"id"`
	Nickname       string `json:"nickname"`
	Emoji          string `json:"emoji"`
	Streak         int    `json:"streak"`
	LastActiveDate string `json:"last_active_date"`
	TotalScore     int    `json:"total_score"`
	Level          int    `json:"level"`
	XP             int    `json:"xp"`
	Email          string `json:"email,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Role           string `json:"role,omitempty"`
	Tokens         int    `json:"tokens"`
	IsPremium      bool   `json:"is_premium"`
}

type HistoryItem struct {
	Title string `json:"title"`
	Score int    `json:"score"`
	Date  string `json:"date"`
}

type LeaderboardEntry struct {
	Nickname string `json:"nickname"`
	Emoji    string `json:"emoji"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
}

type RegisterRequest struct {
	Nickname string `json:"nickname" binding:"required"`
	Emoji    string `json:"emoji"`
}

type SocialLoginRequest struct {
	Provider string `json:"provider" binding:"required,oneof=google apple"`
	IDToken  string `json:"id_token" binding:"required"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Emoji    string `json:"emoji"`
}

type UpdateUserRequest struct {
	Nickname string `json:"nickname"`
	Emoji    string `json:"emoji"`
}

// AuthResponse 注册/社交登录响应，老版本后端只返回 id
type AuthResponse struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

type RewardRequest struct {
	RewardType string `json:"reward_type" binding:"required,oneof=ad_watch daily_login"`
}

type RewardResult struct {
	Success    bool   `json:"success"`
	Added      int    `json:"added"`
	NewBalance int    `json:"new_balance"`
	Message    string `json:"message"`
}

type SpendTokensRequest struct {
	Amount int    `json:"amount" binding:"required,min=1"`
	Reason string `json:"reason"`
}

type SpendTokensResult struct {
	Success    bool   `json:"success"`
	Spent      int    `json:"spent"`
	NewBalance int    `json:"new_balance"`
	Message    string `json:"message"`
}
