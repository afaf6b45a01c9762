package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oabt_client/internal/repository"
	"oabt_client/internal/util"

	"github.com/golang-jwt/jwt/v5"
)

func tokenExpiringIn(t *testing.T, d time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(d).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func seedCredentials(t *testing.T, store repository.KVStore, access, refresh, userID string) {
	t.Helper()
	pairs := map[string]string{util.KeyUserID: userID}
	if access != "" {
		pairs[util.KeyAuthToken] = access
	}
	if refresh != "" {
		pairs[util.KeyRefreshToken] = refresh
	}
	if err := store.MultiSet(context.Background(), pairs); err != nil {
		t.Fatal(err)
	}
}

// countingStore 统计读取 AUTH_TOKEN 的次数，用于确认并发调用方都已进入刷新流程
type countingStore struct {
	repository.KVStore
	mu      sync.Mutex
	reads   int
	reached chan struct{}
	target  int
}

func newCountingStore(inner repository.KVStore, target int) *countingStore {
	return &countingStore{KVStore: inner, target: target, reached: make(chan struct{})}
}

func (s *countingStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.KVStore.Get(ctx, key)
	if key == util.KeyAuthToken {
		s.mu.Lock()
		s.reads++
		if s.reads == s.target {
			close(s.reached)
		}
		s.mu.Unlock()
	}
	return v, err
}

// staticTokens 固定返回的 TokenSource
type staticTokens struct {
	tokens []string
	calls  int32
}

func (s *staticTokens) GetValidToken(context.Context) (string, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i >= len(s.tokens) {
		return s.tokens[len(s.tokens)-1], nil
	}
	return s.tokens[i], nil
}
