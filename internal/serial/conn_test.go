package serial

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePort implements Port for tests.
type fakePort struct {
	mu       sync.Mutex
	written  []byte
	reads    [][]byte
	idx      int
	writeErr error
	closed   bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.reads) {
		return 0, io.EOF // behaves like a read timeout with no data
	}
	n := copy(p, f.reads[f.idx])
	f.idx++
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func newTestConn(p Port) *Conn {
	c := NewConn(10 * time.Millisecond)
	c.SetOpener(func(string, int, time.Duration) (Port, error) { return p, nil })
	return c
}

func TestConn_OpenClose(t *testing.T) {
	fp := &fakePort{}
	c := newTestConn(fp)
	require.False(t, c.IsOpen())

	require.NoError(t, c.Open("/dev/ttyACM1", 115200))
	require.True(t, c.IsOpen())
	st := c.Status()
	require.True(t, st.Connected)
	require.Equal(t, "/dev/ttyACM1", st.Path)
	require.Equal(t, 115200, st.Baud)

	c.Close()
	c.Close() // idempotent
	require.False(t, c.IsOpen())
	require.True(t, fp.closed)
	require.False(t, c.Status().Connected)
}

func TestConn_OpenFailure(t *testing.T) {
	c := NewConn(10 * time.Millisecond)
	c.SetOpener(func(string, int, time.Duration) (Port, error) {
		return nil, errors.New("device busy")
	})
	err := c.Open("/dev/ttyACM1", 115200)
	require.ErrorIs(t, err, ErrOpen)
	require.False(t, c.IsOpen())
}

func TestConn_WriteWhenClosed(t *testing.T) {
	c := NewConn(10 * time.Millisecond)
	_, err := c.Write([]byte("hi\n"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestConn_ReadWhenClosed(t *testing.T) {
	c := NewConn(10 * time.Millisecond)
	_, err := c.Read(make([]byte, 16))
	require.ErrorIs(t, err, ErrClosed)
}

func TestConn_FailedWriteCommitsClosed(t *testing.T) {
	fp := &fakePort{writeErr: errors.New("input/output error")}
	c := newTestConn(fp)
	require.NoError(t, c.Open("/dev/ttyACM1", 115200))

	_, err := c.Write([]byte("hi\n"))
	require.ErrorIs(t, err, ErrWrite)
	// The failed write and the transition to Closed are one atomic step.
	require.False(t, c.IsOpen())
	require.True(t, fp.closed)

	_, err = c.Write([]byte("again\n"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestConn_WritePassesThrough(t *testing.T) {
	fp := &fakePort{}
	c := newTestConn(fp)
	require.NoError(t, c.Open("/dev/ttyACM1", 115200))
	n, err := c.Write([]byte("ping\n"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("ping\n"), fp.written)
}

func TestConn_ReopenReplacesHandle(t *testing.T) {
	first := &fakePort{}
	second := &fakePort{}
	ports := []Port{first, second}
	c := NewConn(10 * time.Millisecond)
	c.SetOpener(func(string, int, time.Duration) (Port, error) {
		p := ports[0]
		ports = ports[1:]
		return p, nil
	})
	require.NoError(t, c.Open("/dev/ttyACM1", 115200))
	require.NoError(t, c.Open("/dev/ttyACM2", 9600))
	require.True(t, first.closed)
	require.False(t, second.closed)
	require.Equal(t, "/dev/ttyACM2", c.Status().Path)
}
