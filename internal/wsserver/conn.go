package wsserver

import (
	"sync"
	"time"

	"TrackHub/internal/user"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// socket is the slice of *websocket.Conn the registry needs. Kept narrow so
// tests can drive the registry with in-memory fakes.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live subscriber connection. The bound user is absent until a
// session token is presented and resolves.
type Conn struct {
	id   string
	sock socket

	mu         sync.Mutex
	user       *user.User
	sessionKey string
	open       bool

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newConn(id string, sock socket, sendBuf int) *Conn {
	return &Conn{
		id:      id,
		sock:    sock,
		open:    true,
		sendCh:  make(chan []byte, sendBuf),
		closeCh: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// User returns the bound user, nil while unauthenticated.
func (c *Conn) User() *user.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Conn) bind(u *user.User, sessionKey string) {
	c.mu.Lock()
	c.user = u
	c.sessionKey = sessionKey
	c.mu.Unlock()
}

func (c *Conn) unbind() {
	c.mu.Lock()
	c.user = nil
	c.sessionKey = ""
	c.mu.Unlock()
}

func (c *Conn) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// enqueue hands a frame to the writer goroutine. A full queue drops the
// frame; delivery is best effort, never blocking the broadcaster.
func (c *Conn) enqueue(frame []byte) {
	select {
	case c.sendCh <- frame:
	default:
		zap.L().Warn("subscriber send queue full, dropping frame", zap.String("conn_id", c.id))
	}
}

// writerLoop serializes all writes to the underlying socket. On the first
// write error it closes the socket and exits; the read loop then observes
// the closed socket and removes the connection.
func (c *Conn) writerLoop() {
	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				zap.L().Warn("subscriber write failed", zap.String("conn_id", c.id), zap.Error(err))
				c.markClosed()
				_ = c.sock.Close()
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.markClosed()
		close(c.closeCh)
		_ = c.sock.Close()
	})
}
