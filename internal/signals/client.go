package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// QuoteClient consumes a premarket quote websocket feed and delivers parsed
// updates on a channel. Reconnection is signalled, not performed, so the
// caller controls backoff.
type QuoteClient struct {
	cfg         Config
	conn        *websocket.Conn
	quotes      chan QuoteUpdate
	reconnectCh chan struct{}
	closeCh     chan struct{}
	mu          sync.Mutex
	isConnected bool
	log         zerolog.Logger
}

// NewQuoteClient prepares a client for the configured feed URL.
func NewQuoteClient(cfg Config, log zerolog.Logger) (*QuoteClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("quote feed URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid quote feed URL: %w", err)
	}
	return &QuoteClient{
		cfg:         cfg,
		quotes:      make(chan QuoteUpdate, 256),
		reconnectCh: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		log:         log.With().Str("component", "quotefeed").Logger(),
	}, nil
}

// Connect dials the feed and starts the message and ping loops.
func (c *QuoteClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected {
		return fmt.Errorf("already connected")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.cfg.HandshakeTimeout

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("quote feed connection failed: %w", err)
	}

	c.conn = conn
	c.isConnected = true

	go c.messageLoop(ctx)
	go c.pingLoop(ctx)

	c.log.Info().Str("url", c.cfg.URL).Msg("quote feed connected")
	return nil
}

// Subscribe requests quotes for the given symbols.
func (c *QuoteClient) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return fmt.Errorf("not connected")
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}

	req := map[string]any{"action": "subscribe", "symbols": symbols}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	c.log.Info().Int("symbols", len(symbols)).Msg("subscribed to quote feed")
	return nil
}

// Quotes returns the channel of parsed quote updates.
func (c *QuoteClient) Quotes() <-chan QuoteUpdate { return c.quotes }

// ReconnectChannel signals when the connection was lost and the caller
// should dial again.
func (c *QuoteClient) ReconnectChannel() <-chan struct{} { return c.reconnectCh }

// IsConnected reports whether the feed connection is up.
func (c *QuoteClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close tears down the connection and stops the loops.
func (c *QuoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return nil
	}
	close(c.closeCh)
	err := c.conn.Close()
	c.conn = nil
	c.isConnected = false
	c.log.Info().Msg("quote feed closed")
	return err
}

type quoteMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	TS     int64   `json:"ts"`
}

// parseQuote decodes one feed message; non-quote messages return false.
func parseQuote(data []byte) (QuoteUpdate, bool) {
	var msg quoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return QuoteUpdate{}, false
	}
	if msg.Type != "quote" || msg.Symbol == "" || msg.Price <= 0 {
		return QuoteUpdate{}, false
	}
	at := time.Now().UTC()
	if msg.TS > 0 {
		at = time.UnixMilli(msg.TS).UTC()
	}
	return QuoteUpdate{Symbol: msg.Symbol, Price: msg.Price, At: at}, true
}

func (c *QuoteClient) messageLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
			c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

			messageType, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.log.Warn().Err(err).Msg("quote feed closed unexpectedly")
				} else {
					c.log.Error().Err(err).Msg("quote feed read error")
				}
				c.triggerReconnect()
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			if q, ok := parseQuote(data); ok {
				select {
				case c.quotes <- q:
				default:
					// Drop on a full buffer; quotes are superseded by the
					// next print anyway.
				}
			}
		}
	}
}

func (c *QuoteClient) pingLoop(ctx context.Context) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.log.Error().Err(err).Msg("quote feed ping failed")
				c.triggerReconnect()
				return
			}
		}
	}
}

func (c *QuoteClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *QuoteClient) triggerReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}
