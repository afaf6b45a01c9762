package model

// Option 题目选项，每道题恰好一个 IsCorrect
type Option struct {
	Text      string `json:"option_text"`
	IsCorrect bool   `json:"is_correct"`
}

type Solution struct {
	ExplanationText  string  `json:"explanation_text"`
	VideoSolutionURL *string `json:"video_solution_url,omitempty"`
}

// Question GET /test/{id} 返回的题目，加载后不再修改
type Question struct {
	ID         string   `json:"id"`
	TestID     string   `json:"test_id,omitempty"`
	Category   string   `json:"category,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Text       string   `json:"question_text"`
	Options    []Option `json:"options"`
	Solution   Solution `json:"solution"`
	ImageURL   *string  `json:"image_url,omitempty"`
}

// CorrectOption 返回正确选项的文本
func (q *Question) CorrectOption() (string, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.Text, true
		}
	}
	return "", false
}

// HasOption 判断选项文本是否属于该题
func (q *Question) HasOption(text string) bool {
	for _, o := range q.Options {
		if o.Text == text {
			return true
		}
	}
	return false
}

// Clone 深拷贝，打乱选项时不影响调用方持有的原始数据
func (q Question) Clone() Question {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	q.Options = opts
	return q
}
