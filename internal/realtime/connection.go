package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
	sendBuffer     = 64
)

// ErrConnectionClosed is returned by Send once the connection has shut down.
var ErrConnectionClosed = errors.New("realtime: connection closed")

type frame struct {
	payload []byte
	final   bool
	code    int
	reason  string
}

// Connection wraps a websocket with a single writer goroutine fed by a bounded queue.
type Connection struct {
	ID             string
	ConversationID uuid.UUID

	ws     *websocket.Conn
	send   chan frame
	once   sync.Once
	closed chan struct{}
}

// NewConnection wraps ws for the given conversation. Call Start to begin writing.
func NewConnection(conversationID uuid.UUID, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ws:             ws,
		send:           make(chan frame, sendBuffer),
		closed:         make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload. A full queue means the client is too slow; the connection is dropped.
func (c *Connection) Send(payload []byte) error {
	return c.enqueue(frame{payload: payload})
}

// Finish enqueues payload as the last frame; the socket closes once it has been written.
func (c *Connection) Finish(payload []byte, code int, reason string) error {
	return c.enqueue(frame{payload: payload, final: true, code: code, reason: reason})
}

func (c *Connection) enqueue(f frame) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case <-c.closed:
		return ErrConnectionClosed
	case c.send <- f:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return errors.New("realtime: send buffer exceeded")
	}
}

// Close sends a close frame and tears the socket down. Safe to call more than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// ReadLoop consumes inbound frames until the peer goes away. Clients are not expected to
// send data; reading keeps control frames (ping, pong, close) flowing.
func (c *Connection) ReadLoop() {
	defer c.Close(websocket.CloseNormalClosure, "")

	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case f := <-c.send:
			if err := c.write(websocket.TextMessage, f.payload); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
			if f.final {
				c.Close(f.code, f.reason)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
