package service

import (
	"context"
	"oabt_client/internal/model"
	"oabt_client/internal/util"
	"oabt_client/pkg/logger"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ExamBackend 考试需要的后端能力，BackendService 满足该接口
type ExamBackend interface {
	GetTestQuestions(ctx context.Context, testID string) ([]model.Question, error)
	Submitter
}

// ExamService 每个 testId 至多一个进行中的会话
type ExamService struct {
	Backend   ExamBackend
	Deadlines *DeadlineStore
	Hub       *ExamHub
	Options   ExamOptions

	mu       sync.Mutex
	sessions map[string]*ExamSession
	opening  singleflight.Group
	// retired 被替换的已结束会话仍可能有在途交卷
	retired sync.WaitGroup
}

func NewExamService(backend ExamBackend, deadlines *DeadlineStore, hub *ExamHub, opts ExamOptions) *ExamService {
	s := &ExamService{
		Backend:   backend,
		Deadlines: deadlines,
		Hub:       hub,
		Options:   opts,
		sessions:  make(map[string]*ExamSession),
	}
	if hub != nil {
		hub.Lookup = s.Get
	}
	return s
}

// Open 打开考试：进行中的会话直接返回（页面重新进入），
// 已结束的会话被替换，否则拉题并开始计时。同一 testId 的并发 Open 只拉一次题。
func (s *ExamService) Open(ctx context.Context, testID string) (*ExamSession, error) {
	if session, ok := s.live(testID); ok {
		return session, nil
	}

	v, err, _ := s.opening.Do(testID, func() (interface{}, error) {
		if session, ok := s.live(testID); ok {
			return session, nil
		}

		questions, err := s.Backend.GetTestQuestions(ctx, testID)
		if err != nil {
			return nil, err
		}

		opts := s.Options
		if s.Hub != nil {
			opts.OnChange = s.Hub.Publish
		}
		session := NewExamSession(testID, s.Deadlines, s.Backend, opts)
		if err := session.Start(ctx, questions); err != nil {
			session.Close()
			return nil, err
		}

		s.mu.Lock()
		s.sessions[testID] = session
		s.mu.Unlock()
		return session, nil
	})
	if err != nil {
		logger.Log.Warn("Failed to open exam", zap.String("testId", testID), zap.Error(err))
		return nil, err
	}
	return v.(*ExamSession), nil
}

// live 返回未结束的会话；已结束的会话从表中移除，交卷结果仍由后台协程写回
func (s *ExamService) live(testID string) (*ExamSession, bool) {
	s.mu.Lock()
	session, ok := s.sessions[testID]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	switch session.State() {
	case ExamFinished, ExamTimedOut:
		delete(s.sessions, testID)
		s.mu.Unlock()
		session.Close()
		s.retired.Add(1)
		go func() {
			defer s.retired.Done()
			session.WaitSubmitted()
		}()
		return nil, false
	}
	s.mu.Unlock()
	return session, true
}

func (s *ExamService) Get(testID string) (*ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[testID]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return session, nil
}

// Close 卸载会话：停止计时，保留截止时间
func (s *ExamService) Close(testID string) error {
	s.mu.Lock()
	session, ok := s.sessions[testID]
	delete(s.sessions, testID)
	s.mu.Unlock()

	if !ok {
		return util.ErrSessionNotFound
	}
	session.Close()
	return nil
}

// CloseAll 退出前调用，等待在途的交卷请求完成
func (s *ExamService) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*ExamSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
		session.WaitSubmitted()
	}
	s.retired.Wait()
}
