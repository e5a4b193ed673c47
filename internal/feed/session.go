// Package feed maintains the websocket session with the broker: candle
// subscriptions in, trade messages out. The core pipeline only sees
// ticks; everything connection-shaped lives here.
package feed

import (
	"fmt"
	"sync"
	"time"

	"eo-trader/pkg/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TickHandler receives every decoded tick in arrival order.
type TickHandler func(types.Tick)

// Session is the live feed connection for all tracked assets. It
// reconnects with exponential backoff; the pipeline tolerates the
// resulting duplicate or late ticks via its late-data rejection path.
type Session struct {
	config  types.FeedConfig
	assets  []string
	handler TickHandler

	conn     *websocket.Conn
	connMu   sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// envelope is the action-tagged wire format. Candle messages carry the
// OHLC values as [open, close, high, low].
type envelope struct {
	Action  string    `json:"action"`
	Asset   string    `json:"asset,omitempty"`
	Message []float64 `json:"message,omitempty"`
	Epoch   int64     `json:"epoch,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// NewSession creates a session delivering ticks for the given assets to
// the handler.
func NewSession(config types.FeedConfig, assets []string, handler TickHandler) *Session {
	return &Session{
		config:   config,
		assets:   assets,
		handler:  handler,
		stopChan: make(chan struct{}),
	}
}

// Start runs the connection manager in the background.
func (s *Session) Start() {
	go s.connectionManager()
}

// Stop closes the session.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// SendSignal writes an issued signal back to the broker as a trade
// message. The session does not confirm or track execution.
func (s *Session) SendSignal(signal types.TradeSignal) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("feed not connected, dropping %s signal for %s", signal.Direction, signal.Asset)
	}

	price, _ := signal.Price.Float64()
	msg := map[string]interface{}{
		"action":    "trade",
		"asset":     signal.Asset,
		"direction": string(signal.Direction),
		"price":     price,
	}
	return conn.WriteJSON(msg)
}

// connectionManager keeps one connection alive, backing off on failure.
func (s *Session) connectionManager() {
	backoff := s.config.ReconnectDelay

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Error().Err(err).Int("retry_in", backoff).Msg("feed connection failed")
			select {
			case <-s.stopChan:
				return
			case <-time.After(time.Duration(backoff) * time.Second):
			}

			backoff *= 2
			if backoff > 30 {
				backoff = 30
			}
			continue
		}
		backoff = s.config.ReconnectDelay

		if err := s.subscribe(); err != nil {
			log.Error().Err(err).Msg("subscription failed")
		}

		s.readMessages()

		log.Warn().Msg("feed connection lost, reconnecting")
		select {
		case <-s.stopChan:
			return
		case <-time.After(time.Duration(s.config.ReconnectDelay) * time.Second):
		}
	}
}

func (s *Session) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to feed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	log.Info().Str("url", s.config.URL).Int("assets", len(s.assets)).Msg("connected to feed")

	go s.keepAlive()
	return nil
}

// subscribe sends one candle subscription per asset, staggered slightly.
func (s *Session) subscribe() error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for _, asset := range s.assets {
		msg := map[string]interface{}{
			"action":    "subscribe",
			"asset":     asset,
			"subscribe": 1,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", asset, err)
		}
		log.Info().Str("asset", asset).Msg("subscribed")
		time.Sleep(200 * time.Millisecond)
	}
	return nil
}

func (s *Session) readMessages() {
	defer func() {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
	}()

	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			return
		}

		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			log.Warn().Err(err).Msg("feed read error")
			return
		}

		s.handleMessage(msg)
	}
}

func (s *Session) handleMessage(msg envelope) {
	switch msg.Action {
	case "candles":
		tick, err := decodeTick(msg)
		if err != nil {
			log.Warn().Err(err).Str("asset", msg.Asset).Msg("dropping undecodable candle message")
			return
		}
		s.handler(tick)

	case "error":
		log.Error().Str("message", msg.Error).Msg("feed error")

	case "ping":
		// keepAlive answers on its own schedule
	}
}

// decodeTick converts a candles message to a Tick. The broker sends the
// values ordered open, close, high, low.
func decodeTick(msg envelope) (types.Tick, error) {
	if len(msg.Message) < 4 {
		return types.Tick{}, fmt.Errorf("candles message has %d values, want 4", len(msg.Message))
	}

	ts := time.Now()
	if msg.Epoch > 0 {
		ts = time.Unix(msg.Epoch, 0)
	}

	return types.Tick{
		Asset:     msg.Asset,
		Timestamp: ts,
		Open:      decimal.NewFromFloat(msg.Message[0]),
		Close:     decimal.NewFromFloat(msg.Message[1]),
		High:      decimal.NewFromFloat(msg.Message[2]),
		Low:       decimal.NewFromFloat(msg.Message[3]),
	}, nil
}

// keepAlive pings the broker until the connection drops.
func (s *Session) keepAlive() {
	ticker := time.NewTicker(time.Duration(s.config.PingInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()

			if conn == nil {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{"action": "ping"}); err != nil {
				log.Warn().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
