// Package tcpserver implements the device-facing telemetry listener and its
// registry of live connections.
package tcpserver

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"TrackHub/pkg/codec"
	"TrackHub/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultReadBufferSize = 4096

// DataHandler receives one raw read from a device connection.
type DataHandler func(id string, data []byte)

// DisconnectHandler is invoked after a connection leaves the live set, on
// both remote errors and explicit Close.
type DisconnectHandler func(id string)

type deviceConn struct {
	id     string
	nc     net.Conn
	remote string

	writeMu sync.Mutex
}

// Server owns the live device connection set. It is the only writer of that
// set; handlers observe connections through events and Send/Close only.
type Server struct {
	addr        string
	readBufSize int

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	mu    sync.RWMutex
	conns map[string]*deviceConn

	handlersMu   sync.RWMutex
	onData       []DataHandler
	onDisconnect []DisconnectHandler
}

func NewServer(cfg *config.TCPConfig) *Server {
	readBuf := defaultReadBufferSize
	addr := ":4567"
	if cfg != nil {
		if cfg.ReadBufferSize > 0 {
			readBuf = cfg.ReadBufferSize
		}
		// port 0 asks the kernel for an ephemeral port
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	return &Server{
		addr:        addr,
		readBufSize: readBuf,
		conns:       make(map[string]*deviceConn),
	}
}

// OnData registers a handler for device payloads. All registered handlers run
// for every read, in registration order.
func (s *Server) OnData(h DataHandler) {
	s.handlersMu.Lock()
	s.onData = append(s.onData, h)
	s.handlersMu.Unlock()
}

func (s *Server) OnDisconnect(h DisconnectHandler) {
	s.handlersMu.Lock()
	s.onDisconnect = append(s.onDisconnect, h)
	s.handlersMu.Unlock()
}

// Start begins listening and accepting device connections.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("tcp server already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.running.Store(true)
	zap.L().Info("tcp server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr reports the bound listener address, useful when the port was 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			zap.L().Error("tcp accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.handleConn(nc)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()

	// identity check and insert stay in one critical section so concurrent
	// accepts cannot race the collision retry
	s.mu.Lock()
	id := uuid.NewString()
	for _, exists := s.conns[id]; exists; _, exists = s.conns[id] {
		id = uuid.NewString()
	}
	c := &deviceConn{id: id, nc: nc, remote: nc.RemoteAddr().String()}
	s.conns[id] = c
	s.mu.Unlock()

	zap.L().Info("device connected",
		zap.String("conn_id", id),
		zap.String("remote", c.remote))

	// greet the device with its assigned identity
	greeting, err := codec.EncodeGreeting(&codec.Greeting{Message: "Hello from server!", YourID: id})
	if err == nil {
		c.writeMu.Lock()
		_, err = nc.Write(greeting)
		c.writeMu.Unlock()
	}
	if err != nil {
		zap.L().Warn("failed to send greeting", zap.String("conn_id", id), zap.Error(err))
	}

	buf := make([]byte, s.readBufSize)
	for {
		n, err := nc.Read(buf)
		if err != nil {
			zap.L().Info("device disconnected",
				zap.String("conn_id", id),
				zap.String("remote", c.remote),
				zap.Error(err))
			s.remove(id)
			return
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		s.handlersMu.RLock()
		handlers := s.onData
		s.handlersMu.RUnlock()
		for _, h := range handlers {
			h(id, data)
		}
	}
}

// remove drops the connection from the live set, closes the socket and fires
// disconnect handlers exactly once.
func (s *Server) remove(id string) {
	s.mu.Lock()
	c, ok := s.conns[id]
	if ok {
		delete(s.conns, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = c.nc.Close()

	s.handlersMu.RLock()
	handlers := s.onDisconnect
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(id)
	}
}

// Send writes raw bytes to one device connection. A write to a connection
// that has gone away is logged and swallowed; the registry never retries.
func (s *Server) Send(id string, data []byte) {
	s.mu.RLock()
	c, ok := s.conns[id]
	s.mu.RUnlock()
	if !ok {
		zap.L().Warn("send to unknown device connection", zap.String("conn_id", id))
		return
	}
	c.writeMu.Lock()
	_, err := c.nc.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		zap.L().Warn("device write failed", zap.String("conn_id", id), zap.Error(err))
	}
}

// Close force-closes one device connection. The read loop notices the closed
// socket and handles removal and disconnect events.
func (s *Server) Close(id string) {
	s.mu.RLock()
	c, ok := s.conns[id]
	s.mu.RUnlock()
	if !ok {
		zap.L().Warn("close of unknown device connection", zap.String("conn_id", id))
		return
	}
	_ = c.nc.Close()
}

// ConnCount reports the size of the live set.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Shutdown stops accepting and closes every live connection.
func (s *Server) Shutdown() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.nc.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	zap.L().Info("tcp server stopped")
}
