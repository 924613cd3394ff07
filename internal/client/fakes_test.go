package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/chatlink/internal/chat"
	"github.com/omochice/chatlink/internal/client"
	"github.com/omochice/chatlink/internal/session"
)

const waitTimeout = 2 * time.Second

// fakeConn is a chat.Conn driven by the test.
type fakeConn struct {
	frames    chan []byte
	drop      chan struct{}
	dropOnce  sync.Once
	closeOnce sync.Once
	closed    chan struct{}

	// lingering reads keep going after Close until Drop, like a socket
	// whose reader has not noticed the close yet
	lingering bool
	eofSeen   atomic.Bool

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		drop:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	if c.lingering {
		select {
		case <-c.drop:
			c.eofSeen.Store(true)
			return nil, io.EOF
		case data := <-c.frames:
			return data, nil
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.drop:
		return nil, io.EOF
	case <-c.closed:
		return nil, io.EOF
	case data := <-c.frames:
		return data, nil
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return "fake"
}

// Drop simulates the server closing the connection.
func (c *fakeConn) Drop() {
	c.dropOnce.Do(func() { close(c.drop) })
}

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var _ chat.Conn = (*fakeConn)(nil)

// fakeDialer hands out a fresh fakeConn per successful dial.
type fakeDialer struct {
	mu     sync.Mutex
	fail   bool
	linger bool
	block  chan struct{}
	urls   []string

	opened chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{opened: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	fail, block, linger := d.fail, d.block, d.linger
	d.linger = false
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	conn.lingering = linger
	d.opened <- conn
	return conn, nil
}

func (d *fakeDialer) SetFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

// LingerNext makes the next successful dial return a lingering conn.
func (d *fakeDialer) LingerNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linger = true
}

func (d *fakeDialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) Next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case conn := <-d.opened:
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// fakeClock records armed timers; the test fires them by hand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	armed  chan *fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{armed: make(chan *fakeTimer, 64)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) client.Timer {
	t := &fakeTimer{delay: d, f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.armed <- t
	return t
}

func (c *fakeClock) Next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-c.armed:
		return timer
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for retry timer")
		return nil
	}
}

func (c *fakeClock) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback regardless of Stop, like a timer that already
// expired when Stop was called.
func (t *fakeTimer) Fire() {
	t.f()
}

// navCounter counts login redirects.
type navCounter struct {
	mu    sync.Mutex
	count int
}

func (n *navCounter) RedirectToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *navCounter) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// credentials is an Accessor with optional fields.
type credentials struct {
	token   string
	userID  int64
	hasUser bool
}

func (c credentials) Token() (string, bool) { return c.token, c.token != "" }
func (c credentials) UserID() (int64, bool) { return c.userID, c.hasUser }

// switchableCredentials is an Accessor whose credentials can be removed.
type switchableCredentials struct {
	mu      sync.Mutex
	token   string
	userID  int64
	present bool
}

func (c *switchableCredentials) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.present
}

func (c *switchableCredentials) UserID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.present
}

func (c *switchableCredentials) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = false
}

// fakeInput is an InputBuffer that counts resets.
type fakeInput struct {
	value  string
	resets int
}

func (f *fakeInput) Value() string { return f.value }

func (f *fakeInput) Reset() {
	f.value = ""
	f.resets++
}

type harness struct {
	m      *client.Manager
	dialer *fakeDialer
	clock  *fakeClock
	nav    *navCounter
}

func newHarness(t *testing.T, accessor session.Accessor) *harness {
	t.Helper()
	h := &harness{
		dialer: newFakeDialer(),
		clock:  newFakeClock(),
		nav:    &navCounter{},
	}
	m, err := client.New(
		client.Config{URL: "ws://chat.test/ws"},
		accessor,
		h.nav,
		h.dialer,
		client.WithClock(h.clock),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.m = m
	t.Cleanup(m.Teardown)
	return h
}

func waitState(t *testing.T, m *client.Manager, want client.State) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want %v", m.State(), want)
}

func waitLen(t *testing.T, store *chat.Store, want int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if store.Len() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store.Len() = %d, want %d", store.Len(), want)
}
