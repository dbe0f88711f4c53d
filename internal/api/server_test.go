package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/auth"
	"solana-sniper-bot/internal/blacklist"
	"solana-sniper-bot/internal/journal"
	"solana-sniper-bot/internal/market"
)

type stubBot struct {
	stopped      bool
	resumed      bool
	resetName    string
	bannedAddr   string
	bannedReason string
}

func (b *stubBot) Status() map[string]interface{} {
	return map[string]interface{}{"running": true}
}

func (b *stubBot) OpenPositions() []market.Position {
	return []market.Position{{Address: "MintAAA111", EntryPrice: 1.0, Status: market.PositionOpen}}
}

func (b *stubBot) ClosedPositions() []market.Position { return nil }

func (b *stubBot) ActiveBreakers() []string { return []string{"daily_loss"} }

func (b *stubBot) ResetBreaker(name string) error {
	if name != "daily_loss" {
		return fmt.Errorf("unknown breaker %s", name)
	}
	b.resetName = name
	return nil
}

func (b *stubBot) EmergencyStop(reason string) { b.stopped = true }
func (b *stubBot) Resume()                     { b.resumed = true }

func (b *stubBot) BanToken(address, reason string) error {
	b.bannedAddr = address
	b.bannedReason = reason
	return nil
}

func (b *stubBot) Blacklist() ([]blacklist.Entry, []blacklist.Entry) { return nil, nil }

func (b *stubBot) RecentTrades(ctx context.Context, limit int) ([]journal.TradeRecord, error) {
	return nil, fmt.Errorf("journal disabled")
}

func testServer(t *testing.T) (*Server, *stubBot, string) {
	t.Helper()
	hash, err := auth.HashPassword("secret99")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	authService := auth.NewService(auth.Config{
		Enabled:       true,
		Username:      "operator",
		PasswordHash:  hash,
		JWTSecret:     "test-secret",
		TokenDuration: time.Hour,
	})

	bot := &stubBot{}
	srv := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, bot, authService, zerolog.Nop())

	token, err := authService.Login("operator", "secret99")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return srv, bot, token
}

func doRequest(srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, _, _ := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/status", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv, _, _ := testServer(t)

	w := doRequest(srv, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestLoginAndStatus(t *testing.T) {
	srv, _, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "operator",
		"password": "secret99",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("missing token in response: %s", w.Body.String())
	}

	w = doRequest(srv, http.MethodGet, "/api/status", resp.Token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status failed with %d", w.Code)
	}
}

func TestLoginBadPassword(t *testing.T) {
	srv, _, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "operator",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestEmergencyStopAndResume(t *testing.T) {
	srv, bot, token := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/control/emergency-stop", token, map[string]string{"reason": "fat finger"})
	if w.Code != http.StatusOK {
		t.Fatalf("emergency stop failed with %d", w.Code)
	}
	if !bot.stopped {
		t.Error("bot should be stopped")
	}

	w = doRequest(srv, http.MethodPost, "/api/control/resume", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resume failed with %d", w.Code)
	}
	if !bot.resumed {
		t.Error("bot should be resumed")
	}
}

func TestResetBreaker(t *testing.T) {
	srv, bot, token := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/breakers/daily_loss/reset", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset failed with %d", w.Code)
	}
	if bot.resetName != "daily_loss" {
		t.Errorf("expected daily_loss reset, got %q", bot.resetName)
	}

	w = doRequest(srv, http.MethodPost, "/api/breakers/bogus/reset", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown breaker, got %d", w.Code)
	}
}

func TestBanToken(t *testing.T) {
	srv, bot, token := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/blacklist", token, map[string]string{
		"address": "MintRUG111",
		"reason":  "honeypot",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ban failed with %d", w.Code)
	}
	if bot.bannedAddr != "MintRUG111" || bot.bannedReason != "honeypot" {
		t.Errorf("ban not forwarded: %q %q", bot.bannedAddr, bot.bannedReason)
	}

	w = doRequest(srv, http.MethodPost, "/api/blacklist", token, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing address, got %d", w.Code)
	}
}

func TestTradesUnavailableWithoutJournal(t *testing.T) {
	srv, _, token := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/trades", token, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
