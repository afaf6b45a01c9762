package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oabt_client/internal/model"
	"oabt_client/internal/repository"
	"oabt_client/internal/util"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSubmitter struct {
	calls  int32
	mu     sync.Mutex
	scores []int
	err    error
}

func (r *recordingSubmitter) SubmitTest(_ context.Context, testID string, score int) (*model.SubmitTestResult, error) {
	atomic.AddInt32(&r.calls, 1)
	r.mu.Lock()
	r.scores = append(r.scores, score)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &model.SubmitTestResult{Success: true, ScoreAdded: score}, nil
}

func (r *recordingSubmitter) count() int {
	return int(atomic.LoadInt32(&r.calls))
}

func threeQuestions() []model.Question {
	mk := func(id, correct string, wrong ...string) model.Question {
		q := model.Question{ID: id, Text: "question " + id}
		q.Options = append(q.Options, model.Option{Text: correct, IsCorrect: true})
		for _, w := range wrong {
			q.Options = append(q.Options, model.Option{Text: w})
		}
		return q
	}
	return []model.Question{
		mk("q1", "A", "B", "C"),
		mk("q2", "D", "E", "F"),
		mk("q3", "G", "H", "I"),
	}
}

type examFixture struct {
	session   *ExamSession
	store     *repository.MemoryKVRepository
	clock     *fakeClock
	submitter *recordingSubmitter
}

func newExamFixture(t *testing.T, testID string, opts ExamOptions) *examFixture {
	t.Helper()
	f := &examFixture{
		store:     repository.NewMemoryKVRepository(),
		clock:     newFakeClock(),
		submitter: &recordingSubmitter{},
	}
	opts.Now = f.clock.Now
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(1, 2))
	}
	// 真实计时器不参与测试，由测试直接调用 Tick
	opts.TickInterval = time.Hour
	f.session = NewExamSession(testID, NewDeadlineStore(f.store), f.submitter, opts)
	t.Cleanup(f.session.Close)
	return f
}

func (f *examFixture) storedDeadline(t *testing.T, testID string) (int64, bool) {
	t.Helper()
	raw, err := f.store.Get(context.Background(), util.TimerKey(testID))
	if errors.Is(err, util.ErrKeyNotFound) {
		return 0, false
	}
	if err != nil {
		t.Fatal(err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.Fatalf("deadline %q is not unix millis: %v", raw, err)
	}
	return ms, true
}

func TestThreeQuestionScenario(t *testing.T) {
	f := newExamFixture(t, "t1", ExamOptions{})
	if err := f.session.Start(context.Background(), threeQuestions()); err != nil {
		t.Fatal(err)
	}

	mustSelect := func(q, opt string) {
		t.Helper()
		if ok, err := f.session.SelectOption(q, opt); err != nil || !ok {
			t.Fatalf("select %s/%s: %v %v", q, opt, ok, err)
		}
	}
	mustSelect("q1", "A")
	mustSelect("q2", "E")

	if err := f.session.Finish(); err != nil {
		t.Fatal(err)
	}
	f.session.WaitSubmitted()

	snap := f.session.Snapshot()
	if snap.State != ExamFinished {
		t.Fatalf("expected finished, got %s", snap.State)
	}
	if snap.Score != 2 {
		t.Errorf("expected score 2, got %d", snap.Score)
	}
	want := ExamSummary{Total: 3, Correct: 1, Wrong: 1, Empty: 1}
	if snap.Summary == nil || *snap.Summary != want {
		t.Errorf("expected summary %+v, got %+v", want, snap.Summary)
	}
	if _, ok := f.storedDeadline(t, "t1"); ok {
		t.Error("deadline key should be removed after finish")
	}
	if f.submitter.count() != 1 || f.submitter.scores[0] != 2 {
		t.Errorf("expected one submission with score 2, got %v", f.submitter.scores)
	}
	if snap.Result == nil || !snap.Result.Success {
		t.Errorf("submission result should be surfaced, got %+v", snap.Result)
	}
}

func TestTimeoutScenario(t *testing.T) {
	f := newExamFixture(t, "t2", ExamOptions{})
	deadline := f.clock.Now().UnixMilli() + 120000
	f.store.Set(context.Background(), util.TimerKey("t2"), strconv.FormatInt(deadline, 10))

	if err := f.session.Start(context.Background(), threeQuestions()); err != nil {
		t.Fatal(err)
	}
	if got := f.session.Snapshot().Deadline.UnixMilli(); got != deadline {
		t.Fatalf("stored deadline should be reused, got %d want %d", got, deadline)
	}

	f.clock.Advance(120 * time.Second)
	f.session.Tick()
	f.session.Tick()
	f.session.WaitSubmitted()

	snap := f.session.Snapshot()
	if snap.State != ExamTimedOut {
		t.Fatalf("expected timed out, got %s", snap.State)
	}
	if snap.RemainingMs != 0 {
		t.Errorf("remaining should clamp to 0, got %d", snap.RemainingMs)
	}
	if _, ok := f.storedDeadline(t, "t2"); ok {
		t.Error("deadline key should be removed on timeout")
	}
	if f.submitter.count() != 1 {
		t.Errorf("expected exactly one submission, got %d", f.submitter.count())
	}

	// 超时后再交卷不会重复提交
	if err := f.session.Finish(); err != nil {
		t.Fatal(err)
	}
	f.session.WaitSubmitted()
	if f.submitter.count() != 1 {
		t.Errorf("finish after timeout must not resubmit, got %d", f.submitter.count())
	}
}

func TestFinishTwiceSubmitsOnce(t *testing.T) {
	f := newExamFixture(t, "t3", ExamOptions{})
	f.session.Start(context.Background(), threeQuestions())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.session.Finish()
		}()
	}
	wg.Wait()
	f.session.WaitSubmitted()

	if f.submitter.count() != 1 {
		t.Errorf("expected one submission, got %d", f.submitter.count())
	}
}

func TestDeadlineResumedAndRefreshed(t *testing.T) {
	ctx := context.Background()

	t.Run("future deadline is reused", func(t *testing.T) {
		f := newExamFixture(t, "t4", ExamOptions{})
		future := f.clock.Now().Add(30 * time.Second).UnixMilli()
		f.store.Set(ctx, util.TimerKey("t4"), strconv.FormatInt(future, 10))

		f.session.Start(ctx, threeQuestions())
		if got, _ := f.storedDeadline(t, "t4"); got != future {
			t.Errorf("expected %d, got %d", future, got)
		}
		if rem := f.session.Snapshot().RemainingMs; rem != 30000 {
			t.Errorf("expected 30000ms remaining, got %d", rem)
		}
	})

	t.Run("elapsed deadline starts fresh", func(t *testing.T) {
		f := newExamFixture(t, "t5", ExamOptions{})
		past := f.clock.Now().Add(-time.Second).UnixMilli()
		f.store.Set(ctx, util.TimerKey("t5"), strconv.FormatInt(past, 10))

		f.session.Start(ctx, threeQuestions())
		want := f.clock.Now().Add(2 * time.Minute).UnixMilli()
		if got, _ := f.storedDeadline(t, "t5"); got != want {
			t.Errorf("expected fresh deadline %d, got %d", want, got)
		}
		if f.session.State() != ExamInProgress {
			t.Errorf("expected in progress, got %s", f.session.State())
		}
	})

	t.Run("absent deadline starts fresh", func(t *testing.T) {
		f := newExamFixture(t, "", ExamOptions{Duration: 5 * time.Minute})
		f.session.Start(ctx, threeQuestions())
		want := f.clock.Now().Add(5 * time.Minute).UnixMilli()
		if got, ok := f.storedDeadline(t, ""); !ok || got != want {
			t.Errorf("expected %d under the default key, got %d", want, got)
		}
		if _, err := f.store.Get(ctx, "TIMER_END_TIME_default"); err != nil {
			t.Errorf("empty test id should use the default key: %v", err)
		}
	})
}

func TestCloseKeepsDeadlineForReentry(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture(t, "t6", ExamOptions{})
	f.session.Start(ctx, threeQuestions())
	first := f.session.Snapshot().Deadline
	f.session.Close()

	f.clock.Advance(40 * time.Second)
	f.session.Tick()
	if _, ok := f.storedDeadline(t, "t6"); !ok {
		t.Fatal("close must keep the persisted deadline")
	}

	again := NewExamSession("t6", NewDeadlineStore(f.store), f.submitter, ExamOptions{Now: f.clock.Now, TickInterval: time.Hour})
	defer again.Close()
	again.Start(ctx, threeQuestions())
	snap := again.Snapshot()
	if !snap.Deadline.Equal(first) {
		t.Errorf("re-entry should resume deadline %v, got %v", first, snap.Deadline)
	}
	if snap.RemainingMs != 80000 {
		t.Errorf("expected 80000ms remaining, got %d", snap.RemainingMs)
	}
	if f.submitter.count() != 0 {
		t.Errorf("close must not submit, got %d", f.submitter.count())
	}
}

func TestSelectOptionFirstAnswerWins(t *testing.T) {
	f := newExamFixture(t, "t7", ExamOptions{})
	f.session.Start(context.Background(), threeQuestions())

	if ok, _ := f.session.SelectOption("q1", "B"); !ok {
		t.Fatal("first answer should be recorded")
	}
	if ok, err := f.session.SelectOption("q1", "A"); ok || err != nil {
		t.Fatalf("second answer should be ignored silently, got %v %v", ok, err)
	}

	snap := f.session.Snapshot()
	if snap.Answers["q1"] != "B" || snap.Score != 0 {
		t.Errorf("expected wrong first answer kept with score 0, got %+v score=%d", snap.Answers, snap.Score)
	}

	if _, err := f.session.SelectOption("nope", "A"); !errors.Is(err, util.ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound, got %v", err)
	}
	if _, err := f.session.SelectOption("q2", "Z"); !errors.Is(err, util.ErrOptionNotFound) {
		t.Errorf("expected ErrOptionNotFound, got %v", err)
	}
}

func TestScoreInvariant(t *testing.T) {
	f := newExamFixture(t, "t8", ExamOptions{})
	f.session.Start(context.Background(), threeQuestions())
	for _, pick := range [][2]string{{"q1", "A"}, {"q2", "D"}, {"q3", "H"}, {"q1", "B"}} {
		f.session.SelectOption(pick[0], pick[1])
	}
	snap := f.session.Snapshot()
	sum := Summarize(snap.Questions, snap.Answers)
	if snap.Score != PointsPerCorrect*sum.Correct {
		t.Errorf("score %d does not match %d correct answers", snap.Score, sum.Correct)
	}
	if snap.Score != 4 {
		t.Errorf("expected score 4, got %d", snap.Score)
	}
}

func TestAnswerAfterDeadlineTimesOut(t *testing.T) {
	f := newExamFixture(t, "t9", ExamOptions{})
	f.session.Start(context.Background(), threeQuestions())
	f.clock.Advance(3 * time.Minute)

	if _, err := f.session.SelectOption("q1", "A"); !errors.Is(err, util.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
	f.session.WaitSubmitted()
	if f.session.State() != ExamTimedOut || f.submitter.count() != 1 {
		t.Errorf("expected timeout with one submission, got %s / %d", f.session.State(), f.submitter.count())
	}
}

func TestAutoAdvanceAndNavigation(t *testing.T) {
	f := newExamFixture(t, "t10", ExamOptions{AutoAdvance: true})
	f.session.Start(context.Background(), threeQuestions())

	first, _ := f.session.Current()
	f.session.SelectOption(first.ID, first.Options[0].Text)
	if idx := f.session.Snapshot().CurrentIndex; idx != 1 {
		t.Errorf("expected auto-advance to 1, got %d", idx)
	}

	f.session.Next()
	f.session.Next()
	if idx := f.session.Snapshot().CurrentIndex; idx != 2 {
		t.Errorf("next should stop at last question, got %d", idx)
	}
	f.session.Prev()
	f.session.Prev()
	f.session.Prev()
	if idx := f.session.Snapshot().CurrentIndex; idx != 0 {
		t.Errorf("prev should stop at first question, got %d", idx)
	}
}

func TestRetryResetsAttempt(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture(t, "t11", ExamOptions{})
	f.session.Start(ctx, threeQuestions())

	if err := f.session.Retry(ctx); !errors.Is(err, util.ErrSessionNotTerminal) {
		t.Fatalf("retry while in progress should fail, got %v", err)
	}

	f.session.SelectOption("q1", "A")
	f.session.Finish()
	f.session.WaitSubmitted()

	f.clock.Advance(10 * time.Second)
	if err := f.session.Retry(ctx); err != nil {
		t.Fatal(err)
	}

	snap := f.session.Snapshot()
	if snap.State != ExamInProgress || snap.Score != 0 || len(snap.Answers) != 0 || snap.CurrentIndex != 0 {
		t.Errorf("retry should clear the attempt, got %+v", snap)
	}
	if snap.Submitted || snap.Result != nil {
		t.Errorf("retry should clear the previous submission, got %+v", snap)
	}
	want := f.clock.Now().Add(2 * time.Minute).UnixMilli()
	if got, ok := f.storedDeadline(t, "t11"); !ok || got != want {
		t.Errorf("expected fresh deadline %d, got %d", want, got)
	}

	f.session.Finish()
	f.session.WaitSubmitted()
	if f.submitter.count() != 2 {
		t.Errorf("each attempt submits once, got %d", f.submitter.count())
	}
}

func TestSubmissionFailureDoesNotBlockResults(t *testing.T) {
	f := newExamFixture(t, "t12", ExamOptions{})
	f.submitter.err = errors.New("connection refused")
	f.session.Start(context.Background(), threeQuestions())

	if err := f.session.Finish(); err != nil {
		t.Fatal(err)
	}
	if f.session.State() != ExamFinished {
		t.Fatal("state must move to finished before the submission completes")
	}
	f.session.WaitSubmitted()
	if snap := f.session.Snapshot(); snap.SubmitError == "" {
		t.Error("submission error should be surfaced")
	}
}

func TestStartRejectsEmptyQuestionSet(t *testing.T) {
	f := newExamFixture(t, "t13", ExamOptions{})
	if err := f.session.Start(context.Background(), nil); !errors.Is(err, util.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if f.session.State() != ExamLoading {
		t.Errorf("expected loading, got %s", f.session.State())
	}
	if f.store.Len() != 0 {
		t.Error("no deadline should be written")
	}
}

func TestTickerGoroutineTimesOut(t *testing.T) {
	store := repository.NewMemoryKVRepository()
	sub := &recordingSubmitter{}
	changes := make(chan ExamSnapshot, 64)
	s := NewExamSession("t14", NewDeadlineStore(store), sub, ExamOptions{
		Duration:     50 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		OnChange: func(snap ExamSnapshot) {
			select {
			case changes <- snap:
			default:
			}
		},
	})
	defer s.Close()
	s.Start(context.Background(), threeQuestions())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-changes:
			if snap.State != ExamTimedOut {
				continue
			}
			s.WaitSubmitted()
			if sub.count() != 1 {
				t.Errorf("expected one submission, got %d", sub.count())
			}
			return
		case <-timeout:
			t.Fatal("ticker never timed the exam out")
		}
	}
}

// gatedSubmitter 在 release 关闭前阻塞交卷
type gatedSubmitter struct {
	release chan struct{}
}

func (g *gatedSubmitter) SubmitTest(_ context.Context, testID string, score int) (*model.SubmitTestResult, error) {
	<-g.release
	return &model.SubmitTestResult{Success: true, ScoreAdded: score, LeveledUp: true, NewLevel: 3}, nil
}

func TestCloseDuringSubmissionKeepsResult(t *testing.T) {
	clock := newFakeClock()
	sub := &gatedSubmitter{release: make(chan struct{})}
	s := NewExamSession("t15", NewDeadlineStore(repository.NewMemoryKVRepository()), sub, ExamOptions{
		Now:          clock.Now,
		Rand:         rand.New(rand.NewPCG(1, 2)),
		TickInterval: time.Hour,
	})
	s.Start(context.Background(), threeQuestions())
	s.SelectOption("q1", "A")

	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	// 页面在交卷返回前卸载
	s.Close()
	close(sub.release)
	s.WaitSubmitted()

	snap := s.Snapshot()
	if snap.Result == nil {
		t.Fatal("submission result must survive close")
	}
	if !snap.Result.LeveledUp || snap.Result.ScoreAdded != 2 || snap.Result.NewLevel != 3 {
		t.Errorf("unexpected result %+v", snap.Result)
	}
}

func TestSnapshotSequenceIncreases(t *testing.T) {
	f := newExamFixture(t, "t16", ExamOptions{})
	f.session.Start(context.Background(), threeQuestions())

	first := f.session.Snapshot()
	f.clock.Advance(time.Second)
	f.session.Tick()
	f.session.Finish()
	last := f.session.Snapshot()

	if last.Seq <= first.Seq {
		t.Errorf("expected increasing sequence, got %d then %d", first.Seq, last.Seq)
	}
}
