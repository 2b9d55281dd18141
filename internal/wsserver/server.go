// Package wsserver implements the subscriber-facing push server: a registry
// of live WebSocket connections, session-derived identity binding, and
// authorization-filtered broadcast delivery.
package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"TrackHub/internal/session"
	"TrackHub/internal/user"
	"TrackHub/pkg/codec"
	"TrackHub/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultSendBuf = 128

// Message type discriminators on the subscriber channel.
const (
	MsgTypeConnection = "connection"
	MsgTypeLogout     = "logout"
	MsgTypeGPS        = "GPS"
)

// ClientMessage is a structured frame from a subscriber.
type ClientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// SessionStore resolves and destroys session keys. Implemented by
// session.Store.
type SessionStore interface {
	Get(ctx context.Context, key string) (*session.Session, error)
	Destroy(ctx context.Context, key string) error
}

// UserStore loads user records for identity binding. Implemented by
// user.Repo.
type UserStore interface {
	FindByID(id int64) (*user.User, error)
}

type MessageHandler func(id string, msg ClientMessage)
type DisconnectHandler func(id string)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server owns the live subscriber connection set.
type Server struct {
	sessions SessionStore
	users    UserStore

	addr    string
	sendBuf int

	mu    sync.RWMutex
	conns map[string]*Conn

	handlersMu   sync.RWMutex
	onMessage    []MessageHandler
	onDisconnect []DisconnectHandler
}

func NewServer(sessions SessionStore, users UserStore, cfg *config.WSConfig) *Server {
	addr := ":8080"
	sendBuf := defaultSendBuf
	if cfg != nil {
		if cfg.Port > 0 {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		if cfg.SendChannelSize > 0 {
			sendBuf = cfg.SendChannelSize
		}
	}
	return &Server{
		sessions: sessions,
		users:    users,
		addr:     addr,
		sendBuf:  sendBuf,
		conns:    make(map[string]*Conn),
	}
}

// Start serves the upgrade endpoint on the push port in a background
// goroutine.
func (s *Server) Start() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", s.HandleUpgrade)
	go func() {
		zap.L().Info("ws server listening", zap.String("addr", s.addr))
		if err := r.Run(s.addr); err != nil {
			zap.L().Error("ws server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) OnMessage(h MessageHandler) {
	s.handlersMu.Lock()
	s.onMessage = append(s.onMessage, h)
	s.handlersMu.Unlock()
}

func (s *Server) OnDisconnect(h DisconnectHandler) {
	s.handlersMu.Lock()
	s.onDisconnect = append(s.onDisconnect, h)
	s.handlersMu.Unlock()
}

// HandleUpgrade upgrades an HTTP request and runs the connection until it
// drops.
func (s *Server) HandleUpgrade(c *gin.Context) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("failed to upgrade to WebSocket", zap.Error(err))
		return
	}
	conn := s.accept(sock)
	s.readLoop(conn)
}

// accept registers a new subscriber connection, starts its writer and pushes
// the greeting carrying the assigned identity.
func (s *Server) accept(sock socket) *Conn {
	s.mu.Lock()
	id := uuid.NewString()
	for _, exists := s.conns[id]; exists; _, exists = s.conns[id] {
		id = uuid.NewString()
	}
	conn := newConn(id, sock, s.sendBuf)
	s.conns[id] = conn
	s.mu.Unlock()

	go conn.writerLoop()

	zap.L().Info("subscriber connected", zap.String("conn_id", id))
	greeting, err := json.Marshal(codec.Greeting{Message: "Hello from WebSocket server!", YourID: id})
	if err == nil {
		conn.enqueue(greeting)
	}
	return conn
}

func (s *Server) readLoop(conn *Conn) {
	for {
		_, raw, err := conn.sock.ReadMessage()
		if err != nil {
			zap.L().Info("subscriber disconnected", zap.String("conn_id", conn.id), zap.Error(err))
			s.remove(conn.id)
			return
		}
		s.handleMessage(conn, raw)
	}
}

// handleMessage runs the identity binding protocol. A malformed frame is
// logged and dropped; the connection stays up.
func (s *Server) handleMessage(conn *Conn, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		zap.L().Warn("invalid subscriber message",
			zap.String("conn_id", conn.id),
			zap.Int("len", len(raw)),
			zap.Error(err))
		return
	}

	switch msg.Type {
	case MsgTypeConnection:
		s.handleConnect(conn, msg.Token)
	case MsgTypeLogout:
		s.handleLogout(conn)
	}

	s.handlersMu.RLock()
	handlers := s.onMessage
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(conn.id, msg)
	}
}

// handleConnect binds the connection to the user behind the presented
// session token. Any failure leaves the connection up but unauthenticated.
func (s *Server) handleConnect(conn *Conn, token string) {
	if token == "" {
		return
	}
	key := session.ExtractKey(token)
	if key == "" {
		zap.L().Warn("subscriber presented malformed session token", zap.String("conn_id", conn.id))
		return
	}

	sess, err := s.sessions.Get(context.Background(), key)
	if err != nil {
		zap.L().Warn("session lookup failed",
			zap.String("conn_id", conn.id),
			zap.Error(err))
		return
	}
	u, err := s.users.FindByID(sess.UserID)
	if err != nil {
		zap.L().Warn("failed to load user for session",
			zap.String("conn_id", conn.id),
			zap.Int64("user_id", sess.UserID),
			zap.Error(err))
		return
	}
	conn.bind(u, key)
	zap.L().Info("subscriber authenticated",
		zap.String("conn_id", conn.id),
		zap.Int64("user_id", u.ID),
		zap.String("username", u.Username))
}

// handleLogout destroys the bound session and unbinds the user. When destroy
// fails the session is still valid server-side, so the binding stays and the
// failure is only logged.
func (s *Server) handleLogout(conn *Conn) {
	conn.mu.Lock()
	u := conn.user
	key := conn.sessionKey
	conn.mu.Unlock()
	if u == nil {
		return
	}
	zap.L().Info("subscriber logging out",
		zap.String("conn_id", conn.id),
		zap.String("username", u.Username))
	if key == "" {
		// bound without a session (Bind), nothing to destroy
		conn.unbind()
		return
	}
	if err := s.sessions.Destroy(context.Background(), key); err != nil {
		zap.L().Error("failed to destroy session on logout",
			zap.String("conn_id", conn.id),
			zap.Error(err))
		return
	}
	conn.unbind()
}

// Bind associates a connection with a user record.
func (s *Server) Bind(id string, u *user.User) {
	s.mu.RLock()
	conn, ok := s.conns[id]
	s.mu.RUnlock()
	if ok {
		conn.bind(u, "")
	}
}

// Unbind clears the user binding without closing the connection.
func (s *Server) Unbind(id string) {
	s.mu.RLock()
	conn, ok := s.conns[id]
	s.mu.RUnlock()
	if ok {
		conn.unbind()
	}
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	conn, ok := s.conns[id]
	if ok {
		delete(s.conns, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	conn.shutdown()

	s.handlersMu.RLock()
	handlers := s.onDisconnect
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(id)
	}
}

// Broadcast serializes v once and delivers it to every recipient that is
// live and open for writing. Recipients that dropped since resolution are
// silently skipped.
func (s *Server) Broadcast(v any, recipients []string) {
	if len(recipients) == 0 {
		return
	}
	frame, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("failed to marshal broadcast payload", zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range recipients {
		conn, ok := s.conns[id]
		if !ok || !conn.isOpen() {
			continue
		}
		conn.enqueue(frame)
	}
}

// ConnectionsForUser returns the identities of every live connection bound
// to userID. A user with several browser tabs has several entries.
func (s *Server) ConnectionsForUser(userID int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, conn := range s.conns {
		if u := conn.User(); u != nil && u.ID == userID {
			ids = append(ids, id)
		}
	}
	return ids
}

// ConnCount reports the size of the live set.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
