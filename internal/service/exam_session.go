package service

import (
	"context"
	"oabt_client/internal/model"
	"oabt_client/internal/util"
	"oabt_client/pkg/logger"
	"oabt_client/pkg/monitoring"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type ExamState string

const (
	ExamLoading    ExamState = "loading"
	ExamInProgress ExamState = "in_progress"
	ExamFinished   ExamState = "finished"
	ExamTimedOut   ExamState = "timed_out"
)

// PointsPerCorrect 每答对一题的得分
const PointsPerCorrect = 2

const (
	defaultExamDuration  = 2 * time.Minute
	defaultTickInterval  = time.Second
	defaultSubmitTimeout = 15 * time.Second
)

// Submitter 交卷接口，由 BackendService 实现
type Submitter interface {
	SubmitTest(ctx context.Context, testID string, score int) (*model.SubmitTestResult, error)
}

type ExamOptions struct {
	Duration      time.Duration
	TickInterval  time.Duration
	SubmitTimeout time.Duration
	// AutoAdvance 作答后自动跳到下一题
	AutoAdvance bool

	Now  func() time.Time
	Rand Rand

	// OnChange 在状态变化和每次 tick 后被调用，不持有锁
	OnChange func(ExamSnapshot)
}

func (o *ExamOptions) withDefaults() {
	if o.Duration <= 0 {
		o.Duration = defaultExamDuration
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = defaultSubmitTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = globalRand{}
	}
}

type ExamSummary struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Empty   int `json:"empty"`
}

// Summarize 由题目和作答记录推导统计，不依赖会话状态
func Summarize(questions []model.Question, answers map[string]string) ExamSummary {
	sum := ExamSummary{Total: len(questions)}
	answered := 0
	for i := range questions {
		selected, ok := answers[questions[i].ID]
		if !ok {
			continue
		}
		answered++
		if correct, found := questions[i].CorrectOption(); found && correct == selected {
			sum.Correct++
		}
	}
	sum.Wrong = answered - sum.Correct
	sum.Empty = sum.Total - answered
	return sum
}

// snapshotSeq 所有快照共用的递增序号，订阅端据此丢弃乱序到达的旧帧
var snapshotSeq atomic.Uint64

type ExamSnapshot struct {
	Seq          uint64                  `json:"seq"`
	TestID       string                  `json:"testId"`
	State        ExamState               `json:"state"`
	Questions    []model.Question        `json:"questions"`
	CurrentIndex int                     `json:"currentIndex"`
	Answers      map[string]string       `json:"answers"`
	Score        int                     `json:"score"`
	Deadline     time.Time               `json:"deadline"`
	RemainingMs  int64                   `json:"remainingMs"`
	Summary      *ExamSummary            `json:"summary,omitempty"`
	Submitted    bool                    `json:"submitted"`
	Result       *model.SubmitTestResult `json:"result,omitempty"`
	SubmitError  string                  `json:"submitError,omitempty"`
}

// ExamSession 一次限时作答。
// 所有状态由 mu 保护；截止时间 key 的读写也在锁内完成，
// 过期的 tick（generation 不一致）不会再修改状态或 key。
type ExamSession struct {
	testID    string
	opts      ExamOptions
	deadlines *DeadlineStore
	submitter Submitter

	mu        sync.Mutex
	state     ExamState
	source    []model.Question
	questions []model.Question
	answers   map[string]string
	score     int
	current   int
	deadline  time.Time
	remaining time.Duration

	submitted bool
	result    *model.SubmitTestResult
	submitErr error

	// generation 标记计时协程；attempt 标记一轮作答，只在进入作答时递增
	generation uint64
	attempt    uint64
	stopTick   chan struct{}
	closed     bool

	submissions sync.WaitGroup
}

func NewExamSession(testID string, deadlines *DeadlineStore, submitter Submitter, opts ExamOptions) *ExamSession {
	opts.withDefaults()
	return &ExamSession{
		testID:    testID,
		opts:      opts,
		deadlines: deadlines,
		submitter: submitter,
		state:     ExamLoading,
		answers:   map[string]string{},
	}
}

func (s *ExamSession) TestID() string { return s.testID }

// Start 题目加载完成后进入作答：打乱题目，恢复或新建截止时间，启动计时
func (s *ExamSession) Start(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return util.ErrNoQuestions
	}

	s.mu.Lock()
	if s.state != ExamLoading || s.closed {
		s.mu.Unlock()
		return util.ErrSessionNotActive
	}

	now := s.opts.Now()
	deadline, err := s.deadlines.Resolve(ctx, s.testID, now, s.opts.Duration)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.source = questions
	s.questions = shuffleQuestions(s.opts.Rand, questions)
	s.enterInProgressLocked(deadline)
	s.tickLocked(now)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Log.Info("Exam started",
		zap.String("testId", s.testID),
		zap.Int("questions", len(questions)),
		zap.Time("deadline", deadline))
	s.notify(snap)
	return nil
}

func (s *ExamSession) enterInProgressLocked(deadline time.Time) {
	s.state = ExamInProgress
	s.attempt++
	s.answers = map[string]string{}
	s.score = 0
	s.current = 0
	s.deadline = deadline
	s.remaining = deadline.Sub(s.opts.Now())
	s.submitted = false
	s.result = nil
	s.submitErr = nil
	s.startTickerLocked()
}

// SelectOption 记录作答。已作答的题直接忽略（首次作答有效），返回是否记录
func (s *ExamSession) SelectOption(questionID, option string) (bool, error) {
	s.mu.Lock()
	if s.expireIfDueLocked() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return false, util.ErrSessionNotActive
	}
	if s.state != ExamInProgress {
		s.mu.Unlock()
		return false, util.ErrSessionNotActive
	}

	idx := s.indexOfLocked(questionID)
	if idx < 0 {
		s.mu.Unlock()
		return false, util.ErrQuestionNotFound
	}
	q := &s.questions[idx]
	if !q.HasOption(option) {
		s.mu.Unlock()
		return false, util.ErrOptionNotFound
	}
	if _, answered := s.answers[questionID]; answered {
		s.mu.Unlock()
		return false, nil
	}

	s.answers[questionID] = option
	if correct, ok := q.CorrectOption(); ok && correct == option {
		s.score += PointsPerCorrect
	}
	if s.opts.AutoAdvance && s.current < len(s.questions)-1 {
		s.current++
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true, nil
}

// Next 到最后一题时不动
func (s *ExamSession) Next() error {
	return s.move(1)
}

// Prev 到第一题时不动
func (s *ExamSession) Prev() error {
	return s.move(-1)
}

func (s *ExamSession) move(delta int) error {
	s.mu.Lock()
	if s.state != ExamInProgress {
		s.mu.Unlock()
		return util.ErrSessionNotActive
	}
	next := s.current + delta
	if next < 0 || next >= len(s.questions) {
		s.mu.Unlock()
		return nil
	}
	s.current = next
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Current 当前题目
func (s *ExamSession) Current() (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.questions) {
		return model.Question{}, false
	}
	return s.questions[s.current].Clone(), true
}

// Finish 交卷。已结束（含超时）时是空操作，不会重复提交
func (s *ExamSession) Finish() error {
	s.mu.Lock()
	if s.expireIfDueLocked() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}
	switch s.state {
	case ExamFinished, ExamTimedOut:
		s.mu.Unlock()
		return nil
	case ExamLoading:
		s.mu.Unlock()
		return util.ErrSessionNotActive
	}

	s.terminateLocked(ExamFinished)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Tick 按当前时间重算剩余时间，到点则超时交卷。计时协程每个周期调用一次
func (s *ExamSession) Tick() {
	s.mu.Lock()
	if s.state != ExamInProgress || s.closed {
		s.mu.Unlock()
		return
	}
	s.tickLocked(s.opts.Now())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *ExamSession) tickFrom(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != ExamInProgress {
		s.mu.Unlock()
		return
	}
	s.tickLocked(s.opts.Now())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// tickLocked 返回是否因此超时
func (s *ExamSession) tickLocked(now time.Time) bool {
	s.remaining = s.deadline.Sub(now)
	if s.remaining > 0 {
		return false
	}
	s.remaining = 0
	s.terminateLocked(ExamTimedOut)
	return true
}

func (s *ExamSession) expireIfDueLocked() bool {
	if s.state != ExamInProgress {
		return false
	}
	return s.tickLocked(s.opts.Now())
}

// terminateLocked 离开作答：停计时、删截止时间、触发唯一一次提交
func (s *ExamSession) terminateLocked(state ExamState) {
	s.state = state
	s.stopTickerLocked()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
	if err := s.deadlines.Clear(ctx, s.testID); err != nil {
		logger.Log.Error("Failed to clear exam deadline", zap.String("testId", s.testID), zap.Error(err))
	}
	cancel()

	if s.submitted {
		return
	}
	s.submitted = true

	trigger := "finish"
	if state == ExamTimedOut {
		trigger = "timeout"
	}
	s.submissions.Add(1)
	go s.submit(s.attempt, trigger, s.score)
}

// submit 后台提交，失败只记录日志，不影响已进入的结束状态
func (s *ExamSession) submit(attempt uint64, trigger string, score int) {
	defer s.submissions.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
	defer cancel()

	res, err := s.submitter.SubmitTest(ctx, s.testID, score)
	if err != nil {
		monitoring.ExamSubmissionCounter.WithLabelValues(trigger, "failed").Inc()
		logger.Log.Error("Exam submission failed",
			zap.String("testId", s.testID),
			zap.String("trigger", trigger),
			zap.Int("score", score),
			zap.Error(err))
	} else {
		monitoring.ExamSubmissionCounter.WithLabelValues(trigger, "success").Inc()
		logger.Log.Info("Exam submitted",
			zap.String("testId", s.testID),
			zap.String("trigger", trigger),
			zap.Int("score", score),
			zap.Bool("leveledUp", res.LeveledUp))
	}

	s.mu.Lock()
	// 提交期间已经 Retry，结果属于上一轮作答
	if attempt != s.attempt {
		s.mu.Unlock()
		return
	}
	s.result = res
	s.submitErr = err
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// WaitSubmitted 等待所有在途提交结束
func (s *ExamSession) WaitSubmitted() {
	s.submissions.Wait()
}

// Retry 从结束状态重新开始：新的截止时间，重新打乱，清空作答和分数
func (s *ExamSession) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return util.ErrSessionNotActive
	}
	if s.state != ExamFinished && s.state != ExamTimedOut {
		s.mu.Unlock()
		return util.ErrSessionNotTerminal
	}

	// 旧计时器必须在新计时器启动前完全停止
	s.stopTickerLocked()

	now := s.opts.Now()
	deadline := now.Add(s.opts.Duration)
	if err := s.deadlines.Save(ctx, s.testID, deadline); err != nil {
		s.mu.Unlock()
		return err
	}

	s.questions = shuffleQuestions(s.opts.Rand, s.source)
	s.enterInProgressLocked(deadline)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Log.Info("Exam restarted", zap.String("testId", s.testID), zap.Time("deadline", deadline))
	s.notify(snap)
	return nil
}

// Close 页面卸载：停止计时但保留截止时间，重新进入时继续倒计时
func (s *ExamSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopTickerLocked()
	s.mu.Unlock()
}

func (s *ExamSession) State() ExamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ExamSession) Snapshot() ExamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ExamSession) snapshotLocked() ExamSnapshot {
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	questions := make([]model.Question, len(s.questions))
	for i := range s.questions {
		questions[i] = s.questions[i].Clone()
	}

	snap := ExamSnapshot{
		Seq:          snapshotSeq.Add(1),
		TestID:       s.testID,
		State:        s.state,
		Questions:    questions,
		CurrentIndex: s.current,
		Answers:      answers,
		Score:        s.score,
		Deadline:     s.deadline,
		RemainingMs:  s.remaining.Milliseconds(),
		Submitted:    s.submitted,
		Result:       s.result,
	}
	if s.submitErr != nil {
		snap.SubmitError = s.submitErr.Error()
	}
	if s.state == ExamFinished || s.state == ExamTimedOut {
		sum := Summarize(s.questions, s.answers)
		snap.Summary = &sum
	}
	return snap
}

func (s *ExamSession) indexOfLocked(questionID string) int {
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

func (s *ExamSession) startTickerLocked() {
	s.stopTickerLocked()
	stop := make(chan struct{})
	s.stopTick = stop
	go s.runTicker(s.generation, stop)
}

// stopTickerLocked 递增 generation，使已排队的 tick 失效
func (s *ExamSession) stopTickerLocked() {
	s.generation++
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *ExamSession) runTicker(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tickFrom(gen)
		}
	}
}

func (s *ExamSession) notify(snap ExamSnapshot) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}
}
