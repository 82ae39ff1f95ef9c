package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"aksara/internal/models"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"message": message}
	if status >= 300 {
		body["error"] = map[string]int{"error_code": status}
	} else if data != nil {
		body["data"] = data
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestGatewayLoginDecodesEnvelope(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.URL.Path != "/api/users/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req models.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Username != "alice" || req.Password != "secret1" {
			t.Errorf("unexpected credentials %+v", req)
		}
		writeEnvelope(w, http.StatusAccepted, "login successful", models.AuthResponse{
			AccessToken:  "a1",
			RefreshToken: "r1",
			TokenType:    "bearer",
			User:         models.User{ID: "u1", Username: "alice", Role: models.RoleAdmin},
		})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Save("stale", "", nil)
	g := NewGateway(srv.URL+"/", store, 0, nil)
	resp, err := g.Login(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken != "a1" || resp.User.Role != models.RoleAdmin {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotAuth != "" {
		t.Fatalf("login must not send the stored token, got %q", gotAuth)
	}
}

func TestGatewayLoginRejectedWrapsInvalidCredentials(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, status, "invalid username or password", nil)
		}))
		hooked := false
		g := NewGateway(srv.URL, NewMemoryStore(), 0, nil)
		g.OnUnauthorized(func() { hooked = true })
		_, err := g.Login(context.Background(), "alice", "wrong12")
		srv.Close()

		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("status %d: expected ErrInvalidCredentials, got %v", status, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != status || apiErr.Message != "invalid username or password" {
			t.Fatalf("status %d: expected APIError with message, got %v", status, err)
		}
		if hooked {
			t.Fatalf("status %d: login rejection must not run the unauthorized hook", status)
		}
	}
}

func TestGatewayRegisterRejectionKeepsServerReason(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, http.StatusBadRequest, "username already taken", nil)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	if err := store.Save("old", "", &models.User{ID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	g := NewGateway(srv.URL, store, 0, nil)
	_, err := g.Register(context.Background(), models.RegisterRequest{Username: "taken", Email: "t@example.com", Password: "password123"})

	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("register rejection reported as invalid credentials: %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "username already taken" {
		t.Fatalf("expected APIError with the server reason, got %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("register must not send the stored token, got %q", gotAuth)
	}
	if store.Token() != "old" {
		t.Fatalf("register rejection must not touch the stored session")
	}
}

func TestGatewayAttachesBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeEnvelope(w, http.StatusUnauthorized, "missing token", nil)
			return
		}
		switch r.URL.Path {
		case "/api/chat/histories":
			writeEnvelope(w, http.StatusOK, "ok", []models.ConversationSummary{{ConversationID: "c1", Title: "First"}})
		case "/api/chat/message":
			var req models.ChatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Temperature == nil || *req.Temperature != 0.7 || req.MaxTokens == nil || *req.MaxTokens != 512 {
				t.Errorf("unexpected chat options %+v", req)
			}
			writeEnvelope(w, http.StatusOK, "ok", models.ChatResponse{ConversationID: "c1", Input: req.Input, Output: "hi"})
		default:
			writeEnvelope(w, http.StatusNotFound, "not found", nil)
		}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Save("tok", "ref", &models.User{ID: "u1"})
	g := NewGateway(srv.URL, store, 0, nil)

	list, err := g.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ConversationID != "c1" {
		t.Fatalf("unexpected list %+v", list)
	}
	reply, err := g.SendMessage(context.Background(), "c1", "hello", SendOptions{Temperature: 0.7, MaxTokens: 512})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Output != "hi" || reply.Input != "hello" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	_, err = g.GetConversation(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if store.Token() != "tok" {
		t.Fatalf("non-401 errors must keep the session")
	}
}

func TestGatewayUnauthorizedClearsStoreAndRunsHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, "token expired", nil)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Save("expired", "ref", &models.User{ID: "u1"})
	g := NewGateway(srv.URL, store, 0, nil)
	var hooks atomic.Int32
	g.OnUnauthorized(func() { hooks.Add(1) })

	_, err := g.Profile(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if store.Token() != "" || store.User() != nil {
		t.Fatalf("401 should clear the store")
	}
	if hooks.Load() != 1 {
		t.Fatalf("hook calls = %d, want 1", hooks.Load())
	}
}

func TestGatewayRefreshUsesRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/refresh-token" || r.Header.Get("Authorization") != "Bearer ref" {
			writeEnvelope(w, http.StatusUnauthorized, "bad refresh", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "token refreshed", models.RefreshResponse{AccessToken: "fresh", TokenType: "bearer"})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Save("old", "ref", &models.User{ID: "u1"})
	g := NewGateway(srv.URL, store, 0, nil)
	token, err := g.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token != "fresh" || store.Token() != "fresh" || store.RefreshToken() != "ref" {
		t.Fatalf("unexpected store after refresh: %q %q", store.Token(), store.RefreshToken())
	}

	empty := NewGateway(srv.URL, NewMemoryStore(), 0, nil)
	if _, err := empty.Refresh(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh without token should fail with ErrUnauthorized, got %v", err)
	}
}

func TestGatewayLogoutSendsRefreshToken(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, http.StatusOK, "logged out", nil)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Save("tok", "ref", nil)
	g := NewGateway(srv.URL, store, 0, nil)
	if err := g.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if body["refresh_token"] != "ref" {
		t.Fatalf("logout body = %v", body)
	}
}
