package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TrackHub/internal/session"
	"TrackHub/internal/user"
	"TrackHub/pkg/codec"
	"TrackHub/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	in chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 16)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	raw, ok := <-f.in
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, raw, nil
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write to closed socket")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
	return nil
}

func (f *fakeSocket) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

type fakeSessions struct {
	mu         sync.Mutex
	sessions   map[string]*session.Session
	destroyErr error
	destroyed  []string
}

func (f *fakeSessions) Get(ctx context.Context, key string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) Destroy(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	delete(f.sessions, key)
	f.destroyed = append(f.destroyed, key)
	return nil
}

type fakeUsers struct {
	users map[int64]*user.User
}

func (f *fakeUsers) FindByID(id int64) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func newTestServer(sessions *fakeSessions, users *fakeUsers) *Server {
	return NewServer(sessions, users, &config.WSConfig{SendChannelSize: 16})
}

func startConn(s *Server) (*Conn, *fakeSocket) {
	sock := newFakeSocket()
	conn := s.accept(sock)
	go s.readLoop(conn)
	return conn, sock
}

func waitFrames(t *testing.T, sock *fakeSocket, n int) [][]byte {
	t.Helper()
	require.Eventually(t, func() bool { return len(sock.frames()) >= n }, time.Second, 5*time.Millisecond)
	return sock.frames()
}

func TestAcceptSendsGreetingWithIdentity(t *testing.T) {
	s := newTestServer(&fakeSessions{}, &fakeUsers{})
	conn, sock := startConn(s)

	frames := waitFrames(t, sock, 1)
	var g codec.Greeting
	require.NoError(t, json.Unmarshal(frames[0], &g))
	assert.Equal(t, conn.ID(), g.YourID)
	assert.NotEmpty(t, g.Message)
	assert.Equal(t, 1, s.ConnCount())
}

func TestConnectionMessageBindsUser(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "raw session key", token: "key-1"},
		{name: "signed cookie form", token: "s%3Akey-1.c2lnbmF0dXJl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{sessions: map[string]*session.Session{
				"key-1": {UserID: 7, Username: "alice"},
			}}
			users := &fakeUsers{users: map[int64]*user.User{
				7: {ID: 7, Username: "alice"},
			}}
			s := newTestServer(sessions, users)
			conn, sock := startConn(s)

			assert.Empty(t, s.ConnectionsForUser(7))

			sock.in <- []byte(fmt.Sprintf(`{"type":"connection","token":"%s"}`, tt.token))
			require.Eventually(t, func() bool {
				return len(s.ConnectionsForUser(7)) == 1
			}, time.Second, 5*time.Millisecond)
			assert.Equal(t, []string{conn.ID()}, s.ConnectionsForUser(7))
		})
	}
}

func TestConnectionMessageWithUnknownSessionStaysUnbound(t *testing.T) {
	s := newTestServer(&fakeSessions{}, &fakeUsers{})
	conn, sock := startConn(s)

	sock.in <- []byte(`{"type":"connection","token":"no-such-session"}`)
	// connection must stay open and unauthenticated
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.ConnCount())
	assert.Nil(t, conn.User())
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	s := newTestServer(&fakeSessions{}, &fakeUsers{})
	_, sock := startConn(s)

	sock.in <- []byte(`{not json`)
	sock.in <- []byte(`42`)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.ConnCount())
}

func TestLogoutDestroysSessionAndUnbinds(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"key-1": {UserID: 7},
	}}
	users := &fakeUsers{users: map[int64]*user.User{7: {ID: 7, Username: "alice"}}}
	s := newTestServer(sessions, users)
	_, sock := startConn(s)

	sock.in <- []byte(`{"type":"connection","token":"key-1"}`)
	require.Eventually(t, func() bool { return len(s.ConnectionsForUser(7)) == 1 }, time.Second, 5*time.Millisecond)

	sock.in <- []byte(`{"type":"logout"}`)
	require.Eventually(t, func() bool { return len(s.ConnectionsForUser(7)) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"key-1"}, sessions.destroyed)
	// connection itself stays up
	assert.Equal(t, 1, s.ConnCount())
}

func TestLogoutKeepsBindingWhenDestroyFails(t *testing.T) {
	sessions := &fakeSessions{
		sessions:   map[string]*session.Session{"key-1": {UserID: 7}},
		destroyErr: errors.New("redis down"),
	}
	users := &fakeUsers{users: map[int64]*user.User{7: {ID: 7}}}
	s := newTestServer(sessions, users)
	_, sock := startConn(s)

	sock.in <- []byte(`{"type":"connection","token":"key-1"}`)
	require.Eventually(t, func() bool { return len(s.ConnectionsForUser(7)) == 1 }, time.Second, 5*time.Millisecond)

	// session is still valid server-side, so the binding must survive
	sock.in <- []byte(`{"type":"logout"}`)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.ConnectionsForUser(7), 1)
}

func TestLogoutAfterDirectBindSkipsSessionStore(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"": {UserID: 99}, // canary: a blank destroy would hit this entry
	}}
	s := newTestServer(sessions, &fakeUsers{})
	conn, sock := startConn(s)

	// bound directly, no session key behind the binding
	s.Bind(conn.ID(), &user.User{ID: 7, Username: "alice"})
	require.Eventually(t, func() bool { return len(s.ConnectionsForUser(7)) == 1 }, time.Second, 5*time.Millisecond)

	sock.in <- []byte(`{"type":"logout"}`)
	require.Eventually(t, func() bool { return len(s.ConnectionsForUser(7)) == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, sessions.destroyed, "logout without a session key must not touch the store")
	assert.Contains(t, sessions.sessions, "")
}

func TestBroadcastReachesOnlyRecipients(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"key-a": {UserID: 1},
	}}
	users := &fakeUsers{users: map[int64]*user.User{1: {ID: 1}}}
	s := newTestServer(sessions, users)

	bound, boundSock := startConn(s)
	_, strangerSock := startConn(s)

	boundSock.in <- []byte(`{"type":"connection","token":"key-a"}`)
	require.Eventually(t, func() bool { return len(s.ConnectionsForUser(1)) == 1 }, time.Second, 5*time.Millisecond)

	payload := map[string]any{"type": "GPS", "data": map[string]any{"imei": "123456789012345"}}
	s.Broadcast(payload, []string{bound.ID()})

	frames := waitFrames(t, boundSock, 2) // greeting + broadcast
	var got map[string]any
	require.NoError(t, json.Unmarshal(frames[1], &got))
	assert.Equal(t, "GPS", got["type"])

	// the unauthenticated connection got the greeting only
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, strangerSock.frames(), 1)
}

func TestBroadcastSkipsDepartedAndUnknownRecipients(t *testing.T) {
	s := newTestServer(&fakeSessions{}, &fakeUsers{})
	conn, sock := startConn(s)
	waitFrames(t, sock, 1)

	// drop the connection, then broadcast to its old identity
	sock.Close()
	require.Eventually(t, func() bool { return s.ConnCount() == 0 }, time.Second, 5*time.Millisecond)

	s.Broadcast(map[string]string{"type": "GPS"}, []string{conn.ID(), "never-existed"})
	assert.Len(t, sock.frames(), 1)
}

func TestDisconnectFiresHandlersAndRemoves(t *testing.T) {
	s := newTestServer(&fakeSessions{}, &fakeUsers{})

	var mu sync.Mutex
	var gone []string
	s.OnDisconnect(func(id string) {
		mu.Lock()
		gone = append(gone, id)
		mu.Unlock()
	})

	conn, sock := startConn(s)
	waitFrames(t, sock, 1)
	sock.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gone) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, conn.ID(), gone[0])
	mu.Unlock()
	assert.Equal(t, 0, s.ConnCount())
}
