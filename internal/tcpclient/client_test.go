package tcpclient

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reservePort grabs an ephemeral port and releases it so the client has a
// refused address to dial until the test brings a listener up.
func reservePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRunRedialsUntilListenerAppears(t *testing.T) {
	port := reservePort(t)
	c := New("127.0.0.1", port)

	var mu sync.Mutex
	var received [][]byte
	c.OnData(func(data []byte) {
		mu.Lock()
		received = append(received, data)
		mu.Unlock()
	})

	start := time.Now()
	runDone := make(chan struct{})
	go func() {
		c.Run()
		close(runDone)
	}()
	defer c.Close()

	// let at least one dial fail against the refused port
	time.Sleep(250 * time.Millisecond)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer ln.Close()

	require.NoError(t, ln.(*net.TCPListener).SetDeadline(time.Now().Add(3*redialDelay)))
	nc, err := ln.Accept()
	require.NoError(t, err, "client never redialed after the listener came up")
	defer nc.Close()

	// the first dial was refused, so the successful one came from a redial
	// spaced by the fixed delay
	assert.GreaterOrEqual(t, time.Since(start), redialDelay)

	_, err = nc.Write([]byte("hello device"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []byte("hello device"), received[0])
	mu.Unlock()
}

func TestCloseStopsRedialLoop(t *testing.T) {
	// nothing ever listens here; the loop sits in its redial sleep
	c := New("127.0.0.1", reservePort(t))
	runDone := make(chan struct{})
	go func() {
		c.Run()
		close(runDone)
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case <-runDone:
	case <-time.After(redialDelay / 2):
		t.Fatal("Run did not stop promptly after Close")
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	c := New("127.0.0.1", reservePort(t))
	assert.Error(t, c.Send([]byte{0x01}))
}
