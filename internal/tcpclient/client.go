// Package tcpclient is the device-role counterpart of the telemetry listener:
// it keeps a single TCP connection alive, redialing after any error.
package tcpclient

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// redialDelay is the fixed wait before reconnecting after any error,
// connection-refused included. Bounded delay, unbounded attempts; stopping
// the loop is the operator's job via Close.
const redialDelay = time.Second

type DataHandler func(data []byte)

type Client struct {
	addr string

	mu sync.Mutex
	nc net.Conn

	closed atomic.Bool
	done   chan struct{}

	handlersMu sync.RWMutex
	onData     []DataHandler
}

func New(host string, port int) *Client {
	return &Client{
		addr: fmt.Sprintf("%s:%d", host, port),
		done: make(chan struct{}),
	}
}

func (c *Client) OnData(h DataHandler) {
	c.handlersMu.Lock()
	c.onData = append(c.onData, h)
	c.handlersMu.Unlock()
}

// Run dials and reads until Close. Every failure path sleeps the fixed
// redial delay and tries again.
func (c *Client) Run() {
	for !c.closed.Load() {
		nc, err := net.Dial("tcp", c.addr)
		if err != nil {
			zap.L().Warn("dial failed, retrying",
				zap.String("addr", c.addr),
				zap.Duration("delay", redialDelay),
				zap.Error(err))
			c.sleep()
			continue
		}

		c.mu.Lock()
		c.nc = nc
		c.mu.Unlock()
		zap.L().Info("connected", zap.String("addr", c.addr))

		c.readLoop(nc)
		if c.closed.Load() {
			return
		}
		zap.L().Info("connection lost, redialing",
			zap.String("addr", c.addr),
			zap.Duration("delay", redialDelay))
		c.sleep()
	}
}

func (c *Client) readLoop(nc net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if err != nil {
			_ = nc.Close()
			return
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		c.handlersMu.RLock()
		handlers := c.onData
		c.handlersMu.RUnlock()
		for _, h := range handlers {
			h(data)
		}
	}
}

func (c *Client) sleep() {
	select {
	case <-time.After(redialDelay):
	case <-c.done:
	}
}

// Send writes one payload on the current connection.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return fmt.Errorf("not connected to %s", c.addr)
	}
	if _, err := nc.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", c.addr, err)
	}
	return nil
}

// Close stops the redial loop and drops the connection.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	c.mu.Lock()
	if c.nc != nil {
		_ = c.nc.Close()
	}
	c.mu.Unlock()
}
