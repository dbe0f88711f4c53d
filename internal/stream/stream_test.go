package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/market"
)

// feedServer is a websocket test server that sends scripted messages to each
// connection.
func feedServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection open so the client does not enter a
		// reconnect cycle mid-test.
		time.Sleep(time.Second)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamDispatchesMessages(t *testing.T) {
	srv := feedServer(t, []string{
		`{"type":"new_token","data":{"address":"MintAAA111","symbol":"AAA","price_usd":0.001}}`,
		`{"type":"tick","data":{"address":"MintAAA111","price_usd":0.0012,"volume_usd":500,"buys":10,"sells":2,"timestamp":1000}}`,
		`{"type":"bar","data":{"address":"MintAAA111","open":0.001,"high":0.0013,"low":0.001,"close":0.0012,"volume":900,"timestamp":60000}}`,
		`{"type":"lp_burn","data":{}}`,
		`not json`,
	})
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(srv)
	s := NewMarketStream(cfg, zerolog.Nop())

	tokens := make(chan market.TokenSnapshot, 1)
	ticks := make(chan market.Tick, 1)
	bars := make(chan market.Bar, 1)
	s.SetNewTokenCallback(func(ts market.TokenSnapshot) { tokens <- ts })
	s.SetTickCallback(func(tk market.Tick) { ticks <- tk })
	s.SetBarCallback(func(b market.Bar) { bars <- b })

	s.Start()
	defer s.Stop()

	select {
	case ts := <-tokens:
		if ts.Address != "MintAAA111" {
			t.Errorf("unexpected token address %s", ts.Address)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("new token callback not invoked")
	}
	select {
	case tk := <-ticks:
		if tk.PriceUSD != 0.0012 {
			t.Errorf("unexpected tick price %f", tk.PriceUSD)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tick callback not invoked")
	}
	select {
	case b := <-bars:
		if b.Close != 0.0012 {
			t.Errorf("unexpected bar close %f", b.Close)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bar callback not invoked")
	}
}

func TestStreamReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- struct{}{}
		// Drop the connection immediately to force a reconnect.
		conn.Close()
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(srv)
	cfg.ReconnectDelay = 10 * time.Millisecond
	s := NewMarketStream(cfg, zerolog.Nop())

	s.Start()
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-conns:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected at least 2 connections, got %d", i)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	srv := feedServer(t, nil)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(srv)
	s := NewMarketStream(cfg, zerolog.Nop())

	s.Start()
	s.Start()
	if !s.IsRunning() {
		t.Fatal("stream should be running")
	}
	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Fatal("stream should be stopped")
	}
}
