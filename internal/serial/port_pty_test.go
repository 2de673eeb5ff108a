//go:build linux

package serial

import (
	"bytes"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// TestConn_PtyRoundTrip exercises the real tarm/serial open path against a
// pseudo-terminal instead of actual hardware.
func TestConn_PtyRoundTrip(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() { master.Close(); slave.Close() })

	c := NewConn(50 * time.Millisecond)
	require.NoError(t, c.Open(slave.Name(), 115200))
	t.Cleanup(c.Close)
	require.True(t, c.IsOpen())

	_, err = master.Write([]byte("pong\n"))
	require.NoError(t, err)

	var acc bytes.Buffer
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, rerr := c.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			if bytes.IndexByte(acc.Bytes(), '\n') >= 0 {
				break
			}
		}
		if rerr != nil {
			// Read timeouts surface as EOF; keep polling.
			time.Sleep(10 * time.Millisecond)
		}
	}
	require.Contains(t, acc.String(), "pong\n")

	_, err = c.Write([]byte("ping\n"))
	require.NoError(t, err)
	out := make([]byte, 64)
	n, err := master.Read(out)
	require.NoError(t, err)
	require.Contains(t, string(out[:n]), "ping")
}
