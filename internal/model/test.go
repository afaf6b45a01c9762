package model

// Test 试卷列表项
type Test struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Completed   bool   `json:"completed"`
}

// SubmitTestRequest POST /submit-test 请求体，用户身份由 bearer token 决定
type SubmitTestRequest struct {
	TestID string `json:"test_id"`
	Score  int    `json:"score"`
}

// SubmitTestResult 后端结算结果，客户端只透传不解释
type SubmitTestResult struct {
	Success       bool `json:"success"`
	StreakUpdated bool `json:"streak_updated"`
	CurrentStreak int  `json:"current_streak"`
	ScoreAdded    int  `json:"score_added"`
	NewLevel      int  `json:"new_level"`
	NewXP         int  `json:"new_xp"`
	LeveledUp     bool `json:"leveled_up"`
}
