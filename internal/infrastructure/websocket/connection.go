package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"auction-marketplace/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Connection is one subscriber socket bound to a single channel. Outbound
// payloads go through a bounded buffer drained by writePump, so Send never
// blocks the relay.
type Connection struct {
	id      string
	channel string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	log     logger.Logger
}

func NewConnection(id, channel string, conn *websocket.Conn, sendBuffer int, log logger.Logger) *Connection {
	return &Connection{
		id:      id,
		channel: channel,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		log:     log,
	}
}

func (c *Connection) ID() string      { return c.id }
func (c *Connection) Channel() string { return c.channel }

// Send queues payload for delivery. It reports false when the connection is
// closed or its buffer is full.
func (c *Connection) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// writePump delivers queued payloads and pings the peer every heartbeat.
func (c *Connection) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump keeps the read side alive for control frames. Subscribers never
// send data; anything they do send is discarded.
func (c *Connection) readPump(heartbeat time.Duration, onClose func()) {
	defer func() {
		onClose()
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Connection closed unexpectedly", "connection_id", c.id, "error", err)
			}
			return
		}
	}
}
