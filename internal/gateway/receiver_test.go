package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexgw/go-vex-gateway/internal/buffer"
	"github.com/vexgw/go-vex-gateway/internal/logging"
	"github.com/vexgw/go-vex-gateway/internal/serial"
)

// scriptPort implements serial.Port: it hands out the scripted chunks, then
// keeps returning finalErr (io.EOF behaves like a read timeout).
type scriptPort struct {
	mu       sync.Mutex
	chunks   [][]byte
	idx      int
	finalErr error
	failedAt time.Time
}

func (p *scriptPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.idx < len(p.chunks) {
		n := copy(b, p.chunks[p.idx])
		p.idx++
		p.mu.Unlock()
		return n, nil
	}
	if p.finalErr != nil && !errors.Is(p.finalErr, io.EOF) && p.failedAt.IsZero() {
		p.failedAt = time.Now()
	}
	err := p.finalErr
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	return 0, err
}

func (p *scriptPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *scriptPort) Close() error                { return nil }

// FailTime returns when the port first returned its fatal error.
func (p *scriptPort) FailTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failedAt
}

func newReceiver(c *serial.Conn, b *buffer.Buffer, sel SelectFunc) *Receiver {
	return &Receiver{
		Conn:              c,
		Buf:               b,
		Select:            sel,
		Baud:              115200,
		ReconnectInterval: 20 * time.Millisecond,
		PollInterval:      time.Millisecond,
		Logger:            logging.Discard(),
	}
}

func runReceiver(t *testing.T, r *Receiver) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); r.Run(ctx) }()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("receiver did not exit after cancellation")
		}
	}
}

func TestReceiver_EndToEnd(t *testing.T) {
	port := &scriptPort{chunks: [][]byte{[]byte("A\nB\n"), []byte("C\n")}, finalErr: io.EOF}
	conn := serial.NewConn(10 * time.Millisecond)
	conn.SetOpener(func(string, int, time.Duration) (serial.Port, error) { return port, nil })
	buf := buffer.New(100)

	cancel := runReceiver(t, newReceiver(conn, buf, func() (string, error) { return "/dev/ttyACM1", nil }))
	defer cancel()

	require.Eventually(t, func() bool { return buf.Len() == 3 }, time.Second, time.Millisecond)
	got := buf.Since(1)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, "B", got[0].Text)
	assert.Equal(t, uint64(3), got[1].ID)
	assert.Equal(t, "C", got[1].Text)
	assert.Equal(t, "/dev/ttyACM1", conn.Status().Path)
}

func TestReceiver_PermissiveDecodeAndBlankLines(t *testing.T) {
	port := &scriptPort{
		chunks:   [][]byte{[]byte("ok\n \r\n"), {0xff, 'b', 'a', 'd', '\n'}},
		finalErr: io.EOF,
	}
	conn := serial.NewConn(10 * time.Millisecond)
	conn.SetOpener(func(string, int, time.Duration) (serial.Port, error) { return port, nil })
	buf := buffer.New(100)

	cancel := runReceiver(t, newReceiver(conn, buf, func() (string, error) { return "/dev/ttyACM1", nil }))
	defer cancel()

	require.Eventually(t, func() bool { return buf.Len() == 2 }, time.Second, time.Millisecond)
	got := buf.Since(0)
	assert.Equal(t, "ok", got[0].Text)
	assert.Equal(t, "�bad", got[1].Text, "invalid bytes replaced, never fatal")
}

func TestReceiver_PartialLineAcrossReads(t *testing.T) {
	port := &scriptPort{
		chunks:   [][]byte{[]byte("hel"), []byte("lo"), []byte(" world\n")},
		finalErr: io.EOF,
	}
	conn := serial.NewConn(10 * time.Millisecond)
	conn.SetOpener(func(string, int, time.Duration) (serial.Port, error) { return port, nil })
	buf := buffer.New(100)

	cancel := runReceiver(t, newReceiver(conn, buf, func() (string, error) { return "/dev/ttyACM1", nil }))
	defer cancel()

	require.Eventually(t, func() bool { return buf.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "hello world", buf.Since(0)[0].Text)
}

func TestReceiver_ReadFailureClosesAndReconnects(t *testing.T) {
	broken := &scriptPort{
		chunks:   [][]byte{[]byte("before\n")},
		finalErr: errors.New("read /dev/ttyACM1: input/output error"),
	}
	healthy := &scriptPort{finalErr: io.EOF}

	var mu sync.Mutex
	var opens []time.Time
	ports := []serial.Port{broken, healthy}
	conn := serial.NewConn(10 * time.Millisecond)
	conn.SetOpener(func(string, int, time.Duration) (serial.Port, error) {
		mu.Lock()
		defer mu.Unlock()
		opens = append(opens, time.Now())
		p := ports[0]
		if len(ports) > 1 {
			ports = ports[1:]
		}
		return p, nil
	})
	buf := buffer.New(100)

	r := newReceiver(conn, buf, func() (string, error) { return "/dev/ttyACM1", nil })
	r.ReconnectInterval = 200 * time.Millisecond
	cancel := runReceiver(t, r)
	defer cancel()

	// The failure must surface as "closed" before the next poll tick completes.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(opens) >= 1 && !broken.FailTime().IsZero() && !conn.IsOpen()
	}, time.Second, time.Millisecond)

	// And the loop recovers without operator intervention.
	require.Eventually(t, func() bool { return conn.IsOpen() }, 2*time.Second, time.Millisecond)
	mu.Lock()
	require.Len(t, opens, 2)
	gap := opens[1].Sub(broken.FailTime())
	mu.Unlock()
	assert.GreaterOrEqual(t, gap, r.ReconnectInterval-20*time.Millisecond,
		"reopen happened %v after the failure, want at least the reconnect interval", gap)
	assert.Equal(t, "before", buf.Since(0)[0].Text)
}

func TestReceiver_SelectFailureKeepsRunning(t *testing.T) {
	conn := serial.NewConn(10 * time.Millisecond)
	buf := buffer.New(100)
	var calls int32
	var mu sync.Mutex
	r := newReceiver(conn, buf, func() (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "", serial.ErrNoDeviceFound
	})
	cancel := runReceiver(t, r)
	defer cancel()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, time.Millisecond, "discovery failures must not stop the loop")
	assert.False(t, conn.IsOpen())
}
