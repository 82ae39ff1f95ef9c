package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"aksara/internal/auth"
	"aksara/internal/config"
	"aksara/internal/models"
	"aksara/internal/service/ai"
	"aksara/internal/service/assistant"
	"aksara/internal/storage"
	"aksara/internal/worker"
)

func TestHandlersEndToEndFlow(t *testing.T) {
	srv := newTestServer(t)

	username := fmt.Sprintf("tester_%d", time.Now().UnixNano()%1_000_000)
	regResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users/register", map[string]string{
		"username":     username,
		"display_name": "Tester",
		"email":        username + "@example.com",
		"password":     "password123",
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var reg models.AuthResponse
	decodeData(t, regResp, &reg)
	if reg.AccessToken == "" || reg.RefreshToken == "" || reg.User.ID == "" {
		t.Fatalf("register should auto-login: %+v", reg)
	}
	if reg.User.Role != models.RoleUser || !reg.User.IsActive {
		t.Fatalf("unexpected registered user: %+v", reg.User)
	}

	loginResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": "password123",
	}, nil)
	assertStatus(t, loginResp, http.StatusAccepted)
	var login models.AuthResponse
	decodeData(t, loginResp, &login)
	authHeader := bearer(login.AccessToken)

	profileResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/users/profile", nil, authHeader)
	assertStatus(t, profileResp, http.StatusOK)
	var profile models.User
	decodeData(t, profileResp, &profile)
	if profile.Username != username {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	// First message starts a conversation.
	firstMessage := "Hello, remember my name is Bob."
	sendResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{
		"input": firstMessage,
	}, authHeader)
	assertStatus(t, sendResp, http.StatusOK)
	var chat models.ChatResponse
	decodeData(t, sendResp, &chat)
	if chat.ConversationID == "" || chat.Output == "" || chat.Input != firstMessage {
		t.Fatalf("unexpected chat response: %+v", chat)
	}

	sendResp = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{
		"input":           "What is my name?",
		"chat_history_id": chat.ConversationID,
		"temperature":     0.5,
		"max_tokens":      256,
	}, authHeader)
	assertStatus(t, sendResp, http.StatusOK)
	if got := countMessages(t, srv.db, chat.ConversationID); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}

	listResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/chat/histories", nil, authHeader)
	assertStatus(t, listResp, http.StatusOK)
	var list []models.ConversationSummary
	decodeData(t, listResp, &list)
	if len(list) != 1 || list[0].TotalMessages != 4 || list[0].Title != firstMessage {
		t.Fatalf("unexpected history list: %+v", list)
	}

	detailResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/chat/histories/"+chat.ConversationID, nil, authHeader)
	assertStatus(t, detailResp, http.StatusOK)
	var detail models.ConversationDetail
	decodeData(t, detailResp, &detail)
	if len(detail.Messages) != 4 || detail.Messages[0].Text != firstMessage || detail.Messages[1].Sender != models.SenderAssistant {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	delResp := doJSONRequest(t, srv.router, http.MethodDelete, "/api/chat/histories/"+chat.ConversationID, nil, authHeader)
	assertStatus(t, delResp, http.StatusOK)
	missing := doJSONRequest(t, srv.router, http.MethodGet, "/api/chat/histories/"+chat.ConversationID, nil, authHeader)
	assertStatus(t, missing, http.StatusNotFound)
	assertErrorCode(t, missing, http.StatusNotFound)

	logoutResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users/logout", nil, authHeader)
	assertStatus(t, logoutResp, http.StatusOK)
	afterLogout := doJSONRequest(t, srv.router, http.MethodGet, "/api/users/profile", nil, authHeader)
	assertStatus(t, afterLogout, http.StatusUnauthorized)
}

func TestLoginRejections(t *testing.T) {
	srv := newTestServer(t)
	user, _ := srv.registerUser(t, "linda")

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users/login", map[string]string{
		"username": "linda", "password": "wrong-password",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/users/login", map[string]string{"username": "linda"}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	if _, err := srv.assistant.SetActive(context.Background(), user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/users/login", map[string]string{
		"username": "linda", "password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	if !strings.Contains(resp.Body.String(), "inactive") {
		t.Fatalf("expected inactive message, got %s", resp.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	srv.registerUser(t, "mira")

	cases := []map[string]string{
		{"username": "mira", "email": "other@example.com", "password": "password123"},
		{"username": "mira2", "email": "mira@example.com", "password": "password123"},
		{"username": "mira3", "email": "not-an-email", "password": "password123"},
		{"username": "mira4", "email": "mira4@example.com", "password": "short"},
	}
	for i, body := range cases {
		resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users/register", body, nil)
		assertStatus(t, resp, http.StatusBadRequest)
		if i == 0 && !strings.Contains(resp.Body.String(), "username") {
			t.Fatalf("expected username conflict message, got %s", resp.Body.String())
		}
	}
}

func TestRefreshToken(t *testing.T) {
	srv := newTestServer(t)
	_, tokens := srv.registerUser(t, "rafi")

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users/refresh-token", nil, bearer(tokens.RefreshToken))
	assertStatus(t, resp, http.StatusOK)
	var refreshed models.RefreshResponse
	decodeData(t, resp, &refreshed)
	if refreshed.AccessToken == "" || refreshed.AccessToken == tokens.AccessToken {
		t.Fatalf("expected a fresh access token, got %+v", refreshed)
	}
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/users/profile", nil, bearer(refreshed.AccessToken)), http.StatusOK)

	// an access token cannot be used as a refresh token and vice versa
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/users/refresh-token", nil, bearer(tokens.AccessToken)), http.StatusUnauthorized)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/users/profile", nil, bearer(tokens.RefreshToken)), http.StatusUnauthorized)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/users/refresh-token", nil, nil), http.StatusUnauthorized)
}

func TestProfileUpdates(t *testing.T) {
	srv := newTestServer(t)
	user, tokens := srv.registerUser(t, "nina")
	other, _ := srv.registerUser(t, "omar")
	authHeader := bearer(tokens.AccessToken)

	resp := doJSONRequest(t, srv.router, http.MethodPut, "/api/users/"+other.ID, map[string]string{
		"username": "hijack", "email": "hijack@example.com",
	}, authHeader)
	assertStatus(t, resp, http.StatusForbidden)

	resp = doJSONRequest(t, srv.router, http.MethodPut, "/api/users/"+user.ID, map[string]string{
		"username": "omar", "email": "nina@example.com",
	}, authHeader)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, srv.router, http.MethodPut, "/api/users/"+user.ID, map[string]string{
		"username": "nina_k", "display_name": "Nina K", "email": "nina.k@example.com",
	}, authHeader)
	assertStatus(t, resp, http.StatusOK)
	var updated models.User
	decodeData(t, resp, &updated)
	if updated.Username != "nina_k" || updated.DisplayName != "Nina K" || updated.Email != "nina.k@example.com" {
		t.Fatalf("unexpected updated profile: %+v", updated)
	}

	path := "/api/users/update-password/" + user.ID
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPut, path, map[string]string{
		"old_password": "nope-nope", "new_password": "newpassword1",
	}, authHeader), http.StatusBadRequest)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPut, path, map[string]string{
		"old_password": "password123", "new_password": "short",
	}, authHeader), http.StatusBadRequest)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPut, path, map[string]string{
		"old_password": "password123", "new_password": "newpassword1",
	}, authHeader), http.StatusOK)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPut, "/api/users/update-password/"+other.ID, map[string]string{
		"old_password": "password123", "new_password": "newpassword1",
	}, authHeader), http.StatusForbidden)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/users/login", map[string]string{
		"username": "nina_k", "password": "newpassword1",
	}, nil)
	assertStatus(t, resp, http.StatusAccepted)
}

func TestChatValidationAndFailures(t *testing.T) {
	srv := newTestServer(t)
	_, tokens := srv.registerUser(t, "cici")
	authHeader := bearer(tokens.AccessToken)

	invalid := []map[string]any{
		{"input": "   "},
		{"input": "hi", "temperature": 1.5},
		{"input": "hi", "temperature": -0.1},
		{"input": "hi", "max_tokens": 0},
		{"input": "hi", "max_tokens": 5000},
	}
	for _, body := range invalid {
		resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", body, authHeader)
		assertStatus(t, resp, http.StatusBadRequest)
	}

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{
		"input": "hi", "chat_history_id": "does-not-exist",
	}, authHeader)
	assertStatus(t, resp, http.StatusNotFound)

	srv.replier.FailWith(errors.New("provider unavailable"))
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{"input": "hi"}, authHeader)
	assertStatus(t, resp, http.StatusBadGateway)
	srv.replier.FailWith(nil)

	var count int
	if err := srv.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed reply must not persist a conversation, found %d", count)
	}

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/chat/histories", nil, nil), http.StatusUnauthorized)
}

func TestChatIsolatedBetweenUsers(t *testing.T) {
	srv := newTestServer(t)
	_, alice := srv.registerUser(t, "alice")
	_, bob := srv.registerUser(t, "bobby")

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{"input": "secret"}, bearer(alice.AccessToken))
	assertStatus(t, resp, http.StatusOK)
	var chat models.ChatResponse
	decodeData(t, resp, &chat)

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/chat/histories/"+chat.ConversationID, nil, bearer(bob.AccessToken)), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/chat/histories/"+chat.ConversationID, nil, bearer(bob.AccessToken)), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{
		"input": "peek", "chat_history_id": chat.ConversationID,
	}, bearer(bob.AccessToken)), http.StatusNotFound)
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	admin, _, err := srv.assistant.EnsureAdmin(ctx, config.AdminSeed{})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	adminTokens, err := srv.auth.IssuePair(ctx, admin)
	if err != nil {
		t.Fatalf("admin tokens: %v", err)
	}
	adminHeader := bearer(adminTokens.AccessToken)
	user, userTokens := srv.registerUser(t, "umar")
	userHeader := bearer(userTokens.AccessToken)

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/statistics", nil, userHeader), http.StatusForbidden)

	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/statistics", nil, adminHeader)
	assertStatus(t, resp, http.StatusOK)
	var stats models.Statistics
	decodeData(t, resp, &stats)
	if stats.TotalUsers != 2 || stats.AdminUsers != 1 || stats.RegularUsers != 1 || stats.ActiveUsers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/users", nil, adminHeader)
	assertStatus(t, resp, http.StatusOK)
	var users []models.User
	decodeData(t, resp, &users)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/admin/users", map[string]any{
		"username": "vera", "email": "vera@example.com", "password": "password123", "role": "ADMIN",
	}, adminHeader)
	assertStatus(t, resp, http.StatusCreated)
	var vera models.User
	decodeData(t, resp, &vera)
	if vera.Role != models.RoleAdmin {
		t.Fatalf("expected created admin, got %+v", vera)
	}

	resp = doJSONRequest(t, srv.router, http.MethodPatch, "/api/admin/users/"+user.ID+"/change-role", map[string]string{"role": "ROOT"}, adminHeader)
	assertStatus(t, resp, http.StatusBadRequest)
	resp = doJSONRequest(t, srv.router, http.MethodPatch, "/api/admin/users/"+user.ID+"/change-role", map[string]string{"role": "ADMIN"}, adminHeader)
	assertStatus(t, resp, http.StatusOK)
	var promoted models.User
	decodeData(t, resp, &promoted)
	if promoted.Role != models.RoleAdmin {
		t.Fatalf("expected promotion, got %+v", promoted)
	}

	resp = doJSONRequest(t, srv.router, http.MethodPatch, "/api/admin/users/"+user.ID+"/toggle-active", map[string]any{}, adminHeader)
	assertStatus(t, resp, http.StatusBadRequest)
	resp = doJSONRequest(t, srv.router, http.MethodPatch, "/api/admin/users/"+user.ID+"/toggle-active", map[string]any{"is_active": false}, adminHeader)
	assertStatus(t, resp, http.StatusOK)
	if srv.workers.cancelled.Load() != 1 {
		t.Fatalf("deactivation should cancel queued replies")
	}
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/users/profile", nil, userHeader), http.StatusUnauthorized)

	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/users/"+user.ID, nil, adminHeader)
	assertStatus(t, resp, http.StatusOK)

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/admin/users/"+admin.ID, nil, adminHeader), http.StatusBadRequest)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/admin/users/"+user.ID, nil, adminHeader), http.StatusOK)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/users/"+user.ID, nil, adminHeader), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/admin/users/"+user.ID, nil, adminHeader), http.StatusNotFound)
}

func TestBusyWorkersMapTo429(t *testing.T) {
	srv := newTestServer(t)
	_, tokens := srv.registerUser(t, "busy")
	srv.workers.err = worker.ErrDispatcherBusy

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/message", map[string]any{"input": "hi"}, bearer(tokens.AccessToken))
	assertStatus(t, resp, http.StatusTooManyRequests)
	assertErrorCode(t, resp, http.StatusTooManyRequests)
	if !strings.Contains(resp.Body.String(), busyMessage) {
		t.Fatalf("expected busy message, got %s", resp.Body.String())
	}
}

func TestHealthAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/health", nil, map[string]string{requestIDHeader: "req-1"})
	assertStatus(t, resp, http.StatusOK)
	if resp.Header().Get(requestIDHeader) != "req-1" {
		t.Fatalf("request id not echoed: %q", resp.Header().Get(requestIDHeader))
	}
	resp = doJSONRequest(t, srv.router, http.MethodGet, "/health", nil, nil)
	if resp.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}

// --- helpers ---

type testServer struct {
	router    *gin.Engine
	db        *sql.DB
	assistant *assistant.Service
	auth      *auth.Service
	replier   *ai.MockReplier
	workers   *recordingWorkers
}

// recordingWorkers wraps the real manager so tests can inject errors and observe cancellations.
type recordingWorkers struct {
	*worker.Manager
	err       error
	cancelled atomic.Int32
}

func (r *recordingWorkers) Reply(ctx context.Context, req worker.ReplyRequest) (*worker.ReplyResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.Manager.Reply(ctx, req)
}

func (r *recordingWorkers) CancelUser(userID string) {
	r.cancelled.Add(1)
	r.Manager.CancelUser(userID)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc := assistant.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour, 24*time.Hour)
	replier := ai.NewMockReplier("mock")
	manager := worker.NewManager(svc, replier, worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8}, nil, nil)
	workers := &recordingWorkers{Manager: manager}
	t.Cleanup(func() {
		manager.Close()
		db.Close()
	})

	handler := NewHandler(svc, authSvc, workers, config.ChatConfig{DefaultMaxTokens: 512}, nil)
	router := gin.New()
	router.Use(RequestLogger(handler.logger), Recovery(handler.logger))
	handler.RegisterRoutes(router)
	return &testServer{router: router, db: db, assistant: svc, auth: authSvc, replier: replier, workers: workers}
}

func (s *testServer) registerUser(t *testing.T, username string) (models.User, models.AuthResponse) {
	t.Helper()
	resp := doJSONRequest(t, s.router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)
	var tokens models.AuthResponse
	decodeData(t, resp, &tokens)
	return tokens.User, tokens
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env models.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d (want %d), body: %s", rec.Code, want, rec.Body.String())
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	var env models.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error == nil || env.Error.ErrorCode != want {
		t.Fatalf("expected error_code %d, got %+v", want, env.Error)
	}
}

func countMessages(t *testing.T, db *sql.DB, conversationID string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return count
}
