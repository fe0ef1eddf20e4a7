package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/store"
	"github.com/seika-app/pomosync/src/types"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeConn implements types.Conn without a network.
type fakeConn struct {
	mu         sync.Mutex
	written    []types.Message
	writeErr   error
	closeCode  int
	closed     bool
	inbound    chan []byte
	closeErr   chan error
	done       chan struct{}
	closeOnce  sync.Once
	closeCalls int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		closeErr: make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.closed {
		return errors.New("write on closed connection")
	}
	msg, ok := v.(types.Message)
	if !ok {
		return errors.New("unexpected frame type")
	}
	c.written = append(c.written, msg)
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.closeErr:
		return nil, err
	case <-c.done:
		return nil, &types.CloseError{Code: types.CloseAbnormal}
	}
}

func (c *fakeConn) CloseWithCode(code int, _ string) error {
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
	return c.Close()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// deliver queues an inbound frame.
func (c *fakeConn) deliver(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.inbound <- data
}

// serverClose ends the read loop with the given close code.
func (c *fakeConn) serverClose(code int, reason string) {
	c.closeErr <- &types.CloseError{Code: code, Reason: reason}
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) frames() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) frameTypes() []string {
	var out []string
	for _, m := range c.frames() {
		out = append(out, m.Type)
	}
	return out
}

func (c *fakeConn) closedWith() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closed
}

// fakeDialer hands out fakeConns, or the errors queued in failures.
type fakeDialer struct {
	mu       sync.Mutex
	urls     []string
	conns    []*fakeConn
	failures []error
	failAll  error
}

func (d *fakeDialer) Dial(_ context.Context, rawURL string) (types.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, rawURL)
	if d.failAll != nil {
		return nil, d.failAll
	}
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) setFailAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

type harness struct {
	mgr    *Manager
	dialer *fakeDialer
	clock  *clockwork.FakeClock
	creds  store.Credentials
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	creds := store.Credentials{Store: store.NewMemoryStore()}
	require.NoError(t, creds.Store.Set(context.Background(), store.KeyCredential, "abc"))

	opts := DefaultOptions()
	opts.ServerURL = "ws://localhost:8000/ws/"
	opts.UserID = "u1"
	opts.Clock = clock
	if mutate != nil {
		mutate(&opts)
	}
	d := &fakeDialer{}
	m := New(opts, d, creds, zerolog.Nop())
	t.Cleanup(m.Disconnect)
	return &harness{mgr: m, dialer: d, clock: clock, creds: creds}
}

func (h *harness) waitStatus(t *testing.T, want types.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return h.mgr.Status() == want },
		waitFor, time.Millisecond, "status never became %s (now %s)", want, h.mgr.Status())
}

func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	n := h.dialer.connCount()
	h.mgr.Connect()
	h.waitStatus(t, types.StatusConnected)
	c := h.dialer.conn(n)
	require.NotNil(t, c)
	return c
}

func (h *harness) credential(t *testing.T) (string, error) {
	t.Helper()
	return h.creds.Credential(context.Background())
}
