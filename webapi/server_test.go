package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genforge/core"
	"genforge/imagegen"
	"genforge/logging"
	"genforge/metrics"
	"genforge/orchestrator"
	"genforge/pool"
	"genforge/shutdown"

	"go.uber.org/zap/zapcore"
)

type fakeRunner struct {
	record orchestrator.GenerationRecord
	err    error
	gotReq orchestrator.Request
	calls  int
}

func (r *fakeRunner) Run(_ context.Context, req orchestrator.Request, _ imagegen.ProgressSink) (orchestrator.GenerationRecord, error) {
	r.calls++
	r.gotReq = req
	return r.record, r.err
}

func testLogger() *logging.Logger {
	return logging.NewLoggerWithCore(zapcore.NewNopCore())
}

func newTestServer(t *testing.T, config ServerConfig, runner *fakeRunner, manager *shutdown.Manager) (*Server, *pool.AccountPool) {
	t.Helper()

	accountPool, err := pool.New(
		[]core.CredentialConfig{{APIKey: "key-1", MaxConcurrent: 2}},
		pool.Config{PollInterval: 2 * time.Millisecond},
		testLogger(),
	)
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}

	s, err := NewServer(config, runner, accountPool, metrics.NewStore(10), manager, testLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s, accountPool
}

func postGenerate(t *testing.T, s *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(body)))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleGenerate_Success(t *testing.T) {
	runner := &fakeRunner{record: orchestrator.GenerationRecord{
		ID:        "gen-1",
		Succeeded: 2,
		Failed:    1,
		Elapsed:   3 * time.Second,
		Archives:  []orchestrator.ArchiveSummary{{Name: "images.zip", Files: 2, SizeBytes: 512}},
	}}
	s, _ := newTestServer(t, ServerConfig{}, runner, nil)

	w := postGenerate(t, s, `{"user_id":"u1","platform":"twitter","prompts":["a","b","c"]}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.GenerationID != "gen-1" || resp.Succeeded != 2 || resp.Failed != 1 {
		t.Errorf("response = %+v, want gen-1 with 2/1", resp)
	}
	if resp.ElapsedMS != 3000 {
		t.Errorf("ElapsedMS = %d, want 3000", resp.ElapsedMS)
	}
	if len(resp.Archives) != 1 || resp.Archives[0].Name != "images.zip" {
		t.Errorf("Archives = %+v, want images.zip", resp.Archives)
	}
	if runner.gotReq.Platform != "twitter" || len(runner.gotReq.Prompts) != 3 {
		t.Errorf("runner request = %+v", runner.gotReq)
	}
}

func TestHandleGenerate_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing user", `{"prompts":["a"]}`},
		{"bad base64 reference", `{"user_id":"u1","prompts":["a"],"reference":"***"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			s, _ := newTestServer(t, ServerConfig{}, runner, nil)

			w := postGenerate(t, s, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if runner.calls != 0 {
				t.Errorf("runner called %d times, want 0", runner.calls)
			}
		})
	}
}

func TestHandleGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no prompts", orchestrator.ErrNoPrompts, http.StatusBadRequest},
		{"too many prompts", orchestrator.ErrTooManyPrompts, http.StatusBadRequest},
		{"pipeline failure", errors.New("upstream exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, ServerConfig{}, &fakeRunner{err: tt.err}, nil)

			w := postGenerate(t, s, `{"user_id":"u1","prompts":["a"]}`, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleGenerate_RejectedDuringShutdown(t *testing.T) {
	manager := shutdown.NewManager(testLogger(), shutdown.WithTimeout(time.Second))
	runner := &fakeRunner{}
	s, _ := newTestServer(t, ServerConfig{}, runner, manager)

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	w := postGenerate(t, s, `{"user_id":"u1","prompts":["a"]}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
}

func TestHandleGenerate_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{}, &fakeRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generate", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestAuth_RequiredWhenHashConfigured(t *testing.T) {
	hash, err := HashToken("secret-token")
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	s, _ := newTestServer(t, ServerConfig{TokenHash: hash}, &fakeRunner{}, nil)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret-token", http.StatusUnauthorized},
		{"valid token", "Bearer secret-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := postGenerate(t, s, `{"user_id":"u1","prompts":["a"]}`, headers)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuth_HealthBypassesAuth(t *testing.T) {
	hash, err := HashToken("secret-token")
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	s, _ := newTestServer(t, ServerConfig{TokenHash: hash}, &fakeRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{}, &fakeRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Pool.TotalCapacity != 2 {
		t.Errorf("Pool.TotalCapacity = %d, want 2", resp.Pool.TotalCapacity)
	}
	if resp.Batches == nil {
		t.Error("Batches missing from stats")
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	s, accountPool := newTestServer(t, ServerConfig{}, &fakeRunner{}, nil)

	// Rate-limit the only credential into cooldown.
	cred, err := accountPool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	accountPool.Release(cred, false, true)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "degraded") {
		t.Errorf("body = %s, want degraded status", w.Body.String())
	}
}

func TestHashToken_EmptyRejected(t *testing.T) {
	if _, err := HashToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("HashToken(\"\") error = %v, want ErrEmptyToken", err)
	}
}
