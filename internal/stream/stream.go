// Package stream maintains the WebSocket feed of market data: new token
// launches, ticks, and sampled bars. The feed is the bot's only push input;
// everything else is pulled over HTTP by the data broker.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/market"
)

// Message types carried on the feed.
const (
	msgNewToken = "new_token"
	msgTick     = "tick"
	msgBar      = "bar"
)

// envelope is the wire framing of a feed message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Config holds stream connection settings.
type Config struct {
	URL              string        `json:"url"`
	ReconnectDelay   time.Duration `json:"reconnect_delay"`
	MaxReconnectWait time.Duration `json:"max_reconnect_wait"`
	ReadTimeout      time.Duration `json:"read_timeout"`
}

// DefaultConfig returns stream settings suitable for a public feed.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:   2 * time.Second,
		MaxReconnectWait: time.Minute,
		ReadTimeout:      90 * time.Second,
	}
}

// MarketStream consumes the market data WebSocket and fans messages out to
// callbacks. It reconnects with increasing backoff until stopped.
type MarketStream struct {
	mu        sync.RWMutex
	cfg       Config
	conn      *websocket.Conn
	isRunning bool
	stopChan  chan struct{}
	logger    zerolog.Logger

	onNewToken func(market.TokenSnapshot)
	onTick     func(market.Tick)
	onBar      func(market.Bar)

	messagesSeen int64
	lastMessage  time.Time
	reconnects   int
}

// NewMarketStream creates a stream for the configured feed URL.
func NewMarketStream(cfg Config, logger zerolog.Logger) *MarketStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = time.Minute
	}
	return &MarketStream{
		cfg:      cfg,
		stopChan: make(chan struct{}),
		logger:   logger.With().Str("component", "MarketStream").Logger(),
	}
}

// SetNewTokenCallback sets the callback for token launch announcements.
func (s *MarketStream) SetNewTokenCallback(cb func(market.TokenSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNewToken = cb
}

// SetTickCallback sets the callback for tick updates.
func (s *MarketStream) SetTickCallback(cb func(market.Tick)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = cb
}

// SetBarCallback sets the callback for sampled bars.
func (s *MarketStream) SetBarCallback(cb func(market.Bar)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBar = cb
}

// Start begins consuming the feed in a background goroutine.
func (s *MarketStream) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.connectLoop()
	s.logger.Info().Str("url", s.cfg.URL).Msg("market stream started")
}

// Stop closes the connection and stops reconnecting.
func (s *MarketStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.logger.Info().Msg("market stream stopped")
}

// IsRunning returns true if the stream is running.
func (s *MarketStream) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Stats returns feed health counters.
func (s *MarketStream) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"running":       s.isRunning,
		"messages_seen": s.messagesSeen,
		"last_message":  s.lastMessage,
		"reconnects":    s.reconnects,
	}
}

// connectLoop dials the feed and re-dials on failure with increasing delay,
// capped at MaxReconnectWait. A successful session resets the delay.
func (s *MarketStream) connectLoop() {
	delay := s.cfg.ReconnectDelay

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.cfg.URL, nil)
		if err != nil {
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("feed connection failed")
			select {
			case <-s.stopChan:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.cfg.MaxReconnectWait {
				delay = s.cfg.MaxReconnectWait
			}
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.logger.Info().Msg("feed connected")
		delay = s.cfg.ReconnectDelay

		s.readLoop(conn)

		conn.Close()
		select {
		case <-s.stopChan:
			return
		default:
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
		}
	}
}

// readLoop reads until the connection errors or the stream stops.
func (s *MarketStream) readLoop(conn *websocket.Conn) {
	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.logger.Warn().Err(err).Msg("feed read error")
			}
			return
		}
		s.handleMessage(data)
	}
}

func (s *MarketStream) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn().Err(err).Msg("unparseable feed message dropped")
		return
	}

	s.mu.Lock()
	s.messagesSeen++
	s.lastMessage = time.Now()
	onNewToken, onTick, onBar := s.onNewToken, s.onTick, s.onBar
	s.mu.Unlock()

	switch env.Type {
	case msgNewToken:
		var snap market.TokenSnapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			s.logger.Warn().Err(err).Msg("bad new_token payload")
			return
		}
		if onNewToken != nil {
			onNewToken(snap)
		}
	case msgTick:
		var tick market.Tick
		if err := json.Unmarshal(env.Data, &tick); err != nil {
			s.logger.Warn().Err(err).Msg("bad tick payload")
			return
		}
		if onTick != nil {
			onTick(tick)
		}
	case msgBar:
		var bar market.Bar
		if err := json.Unmarshal(env.Data, &bar); err != nil {
			s.logger.Warn().Err(err).Msg("bad bar payload")
			return
		}
		if onBar != nil {
			onBar(bar)
		}
	default:
		// Unknown message types are ignored so feed additions do not
		// break older bots.
	}
}
