package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
)

const (
	writeWait       = 10 * time.Second
	maxMessageBytes = 1 << 20
)

// Client manages the WebSocket connection to the relay. A Client is used for
// a single connection; log in again with a new Client.
type Client struct {
	url          string
	pingInterval time.Duration
	handler      domain.Handler
	dispatcher   *Dispatcher
	dialer       *websocket.Dialer
	log          zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

var _ domain.Relay = (*Client)(nil)

// NewClient creates a relay client that reports to handler.
func NewClient(url string, pingInterval time.Duration, handler domain.Handler) *Client {
	return &Client{
		url:          url,
		pingInterval: pingInterval,
		handler:      handler,
		dispatcher:   NewDispatcher(handler),
		dialer:       websocket.DefaultDialer,
		log:          log.With().Str("component", "signal").Logger(),
		closed:       make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and ping loops. The handler's
// OnRelayOpened runs on the read loop before any inbound message.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return &domain.RelayError{Op: "dial", Err: fmt.Errorf("already connected")}
	}

	c.log.Info().Str("url", c.url).Msg("connecting")

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return &domain.RelayError{Op: "dial", Err: err}
	}
	conn.SetReadLimit(maxMessageBytes)
	if c.pingInterval > 0 {
		_ = c.extendDeadline(conn)
		conn.SetPongHandler(func(string) error {
			return c.extendDeadline(conn)
		})
	}
	c.conn = conn

	go c.readLoop(conn)
	if c.pingInterval > 0 {
		go c.pingLoop(conn)
	}

	return nil
}

// Close shuts down the WebSocket connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn == nil {
			return
		}
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	})
}

// Send encodes ev and writes it to the relay.
func (c *Client) Send(ev domain.Event) error {
	data, err := Encode(ev)
	if err != nil {
		return &domain.RelayError{Op: "encode", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.isClosed() {
		return &domain.RelayError{Op: "write", Err: domain.ErrNotConnected}
	}

	c.log.Debug().Str("object", ev.Object()).Str("action", ev.Action()).Int("bytes", len(data)).Msg(">>>")
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &domain.RelayError{Op: "write", Err: err}
	}
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var cause error
	defer func() {
		c.Close()
		c.handler.OnRelayClosed(cause)
	}()

	c.handler.OnRelayOpened()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			cause = &domain.RelayError{Op: "read", Err: err}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("read error")
				c.handler.OnRelayError(cause)
			}
			return
		}

		c.log.Debug().Int("bytes", len(data)).Msg("<<<")
		c.dispatcher.Dispatch(data)

		// Handlers may block for a whole negotiation; pongs queued meanwhile
		// have not been read yet.
		if c.pingInterval > 0 {
			_ = c.extendDeadline(conn)
		}
	}
}

// extendDeadline allows two missed pongs before the read loop gives up.
func (c *Client) extendDeadline(conn *websocket.Conn) error {
	return conn.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				if !c.isClosed() {
					c.log.Warn().Err(err).Msg("ping error")
				}
				return
			}
		}
	}
}
