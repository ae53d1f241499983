package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"peercall/internal/domain"
	"peercall/internal/signal"
)

// client is one logged-in connection.
type client struct {
	hub  *Hub
	name string
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger
}

// enqueue queues ev for the write pump. Must be called with hub.mu held so
// that send is not closed underneath it.
func (c *client) enqueue(ev domain.Event) {
	data, err := signal.Encode(ev)
	if err != nil {
		c.log.Error().Err(err).Msg("encode")
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn().Str("action", ev.Action()).Msg("send queue full, dropping message")
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pongWait := 2 * c.hub.pingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		ev, err := signal.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("ignoring message")
			continue
		}
		c.hub.route(c, ev)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn().Err(err).Msg("write")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
