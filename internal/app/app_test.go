package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"oabt_client/internal/config"
	"oabt_client/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type backendStub struct {
	*httptest.Server
	mu   sync.Mutex
	auth map[string]string
}

func newBackendStub(t *testing.T) *backendStub {
	t.Helper()
	claims := jwt.MapClaims{"user_id": "user-1", "exp": time.Now().Add(24 * time.Hour).Unix()}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	b := &backendStub{auth: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"message":       "ok",
			"access_token":  access,
			"refresh_token": "refresh-1",
		})
	})
	mux.HandleFunc("/tests", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.auth[r.URL.Path] = r.Header.Get("Authorization")
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"t1","title":"Tarih","category":"KPSS"}]`))
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *backendStub) authFor(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[path]
}

func newTestApp(t *testing.T, backendURL string) *App {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Mode: gin.TestMode},
		API:       config.APIConfig{BaseURL: backendURL, Timeout: 5 * time.Second},
		Auth:      config.AuthConfig{RefreshMargin: time.Hour},
		Exam:      config.ExamConfig{Duration: 2 * time.Minute, TickInterval: time.Second, SubmitTimeout: 5 * time.Second},
		Storage:   config.StorageConfig{Driver: util.StorageMemory},
		Log:       config.LogConfig{File: filepath.Join(t.TempDir(), "client.log")},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:8081"}},
		RateLimit: config.RateLimitConfig{MaxRequests: 1000, WindowMinutes: 1},
	}
	a, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func serve(a *App, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:50000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func TestHealthWithMemoryStore(t *testing.T) {
	a := newTestApp(t, "http://127.0.0.1:1")

	w := serve(a, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	a := newTestApp(t, "http://127.0.0.1:1")

	for _, path := range []string{"/api/tests", "/api/profile", "/api/exams/t1"} {
		w := serve(a, http.MethodGet, path, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestRegisterThenListTests(t *testing.T) {
	backend := newBackendStub(t)
	a := newTestApp(t, backend.URL)

	w := serve(a, http.MethodPost, "/api/auth/register", `{"nickname":"ada","emoji":"🦊"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = serve(a, http.MethodGet, "/api/auth/status", "")
	var status struct {
		Data struct {
			LoggedIn bool   `json:"loggedIn"`
			UserID   string `json:"userId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Data.LoggedIn || status.Data.UserID != "user-1" {
		t.Errorf("unexpected status %+v", status.Data)
	}

	w = serve(a, http.MethodGet, "/api/tests", "")
	if w.Code != http.StatusOK {
		t.Fatalf("tests: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := backend.authFor("/tests"); !strings.HasPrefix(got, "Bearer ") {
		t.Errorf("expected bearer token upstream, got %q", got)
	}

	w = serve(a, http.MethodPost, "/api/auth/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if w = serve(a, http.MethodGet, "/api/tests", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestRemoteClientsRejected(t *testing.T) {
	a := newTestApp(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.7:41000"
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for remote client, got %d", w.Code)
	}
}

func TestConfigCallbackSwapsBackendURL(t *testing.T) {
	a := newTestApp(t, "http://old.example")

	next := *a.Config
	next.API.BaseURL = "http://new.example/"
	a.ApplyConfig(&next)

	if got := a.backendURL.String(); got != "http://new.example" {
		t.Errorf("expected swapped backend url, got %q", got)
	}
}
