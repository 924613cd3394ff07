package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/omochice/chatlink/internal/chat"
	"github.com/omochice/chatlink/internal/session"
)

// Config holds connection settings.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8000/ws.
	// The session token is added as the "token" query parameter.
	URL          string
	Backoff      Backoff
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the timer source used for retries.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns the connection lifecycle.
//
// Every callback (dial result, inbound frame, close, retry timer, teardown)
// runs under mu, so each one observes and mutates state atomically. Each
// attempt gets a generation number; callbacks from a superseded attempt are
// dropped.
type Manager struct {
	cfg      Config
	endpoint *url.URL
	accessor session.Accessor
	nav      session.Navigator
	dialer   Dialer
	store    *chat.Store
	ingest   *chat.Ingestor
	clock    Clock
	logger   *slog.Logger
	changes  chan struct{}

	mu      sync.Mutex
	state   State
	retries int
	gen     uint64
	conn    chat.Conn
	cancel  context.CancelFunc
	timer   Timer
	closed  bool

	wg sync.WaitGroup
}

// New creates a Manager in StateDisconnected. The caller must call Teardown
// exactly once when it is done with the manager.
func New(cfg Config, accessor session.Accessor, nav session.Navigator, dialer Dialer, opts ...Option) (*Manager, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be ws or wss", cfg.URL)
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	m := &Manager{
		cfg:      cfg,
		endpoint: endpoint,
		accessor: accessor,
		nav:      nav,
		dialer:   dialer,
		clock:    realClock{},
		logger:   slog.Default(),
		store:    chat.NewStore(),
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ingest = chat.NewIngestor(m.store, m.logger)
	return m, nil
}

// Store returns the message store fed by this manager.
func (m *Manager) Store() *chat.Store {
	return m.store
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StateChanges returns a channel that receives a value after the state
// changes. Notifications coalesce; read State for the current value.
func (m *Manager) StateChanges() <-chan struct{} {
	return m.changes
}

// IsReady reports whether the connection is open.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

// Retries returns the number of consecutive failed attempts.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Connect starts a connection attempt. Without credentials it redirects to
// login and returns ErrUnauthenticated. While an attempt is connecting or
// open it returns ErrAlreadyActive and changes nothing.
func (m *Manager) Connect() error {
	m.mu.Lock()
	err := m.connectLocked()
	m.mu.Unlock()

	if errors.Is(err, ErrUnauthenticated) {
		m.nav.RedirectToLogin()
	}
	return err
}

func (m *Manager) connectLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.state.active() {
		return ErrAlreadyActive
	}

	sess, ok := session.Load(m.accessor)
	if !ok {
		m.logger.Warn("No session credentials, redirecting to login")
		m.stopTimerLocked()
		m.setStateLocked(StateDisconnected)
		return ErrUnauthenticated
	}

	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(StateConnecting)
	m.logger.Info("Connecting", "endpoint", m.endpoint.Redacted(), "user_id", sess.UserID, "attempt", m.retries+1)

	m.wg.Add(1)
	go m.run(ctx, gen, m.target(sess.Token))
	return nil
}

func (m *Manager) target(token string) string {
	u := *m.endpoint
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// run owns one connection attempt: dial, then read until the connection ends.
func (m *Manager) run(ctx context.Context, gen uint64, target string) {
	defer m.wg.Done()

	dialCtx, cancel := ctx, context.CancelFunc(func() {})
	if m.cfg.DialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
	}
	conn, err := m.dialer.Dial(dialCtx, target)
	cancel()
	if err != nil {
		m.onError(gen, err)
		return
	}
	if !m.onOpen(gen, conn) {
		_ = conn.Close()
		return
	}

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.onClose(gen, ErrTransportClosed)
			} else {
				m.onError(gen, err)
			}
			return
		}
		m.onFrame(gen, data)
	}
}

func (m *Manager) currentLocked(gen uint64) bool {
	return !m.closed && gen == m.gen
}

func (m *Manager) onOpen(gen uint64, conn chat.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(gen) || m.state != StateConnecting {
		return false
	}
	m.conn = conn
	m.retries = 0
	m.setStateLocked(StateOpen)
	m.logger.Info("Connected", "remote", conn.RemoteAddr())
	return true
}

func (m *Manager) onFrame(gen uint64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(gen) || m.state != StateOpen {
		return
	}
	// malformed frames are logged by the ingestor and do not affect the connection
	_ = m.ingest.Handle(data)
}

// onError downgrades a transport fault into a close, so closing is the only
// path into retry scheduling.
func (m *Manager) onError(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(gen) || !m.state.active() {
		return
	}
	m.logger.Warn("Transport error, closing connection", "error", err)
	m.closeConnLocked()
	m.onCloseLocked(fmt.Errorf("%w: %w", ErrTransportClosed, err))
}

func (m *Manager) onClose(gen uint64, reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(gen) || !m.state.active() {
		return
	}
	m.closeConnLocked()
	m.onCloseLocked(reason)
}

func (m *Manager) onCloseLocked(reason error) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.setStateLocked(StateClosed)
	m.logger.Info("Disconnected", "reason", reason)
	m.scheduleRetryLocked()
}

func (m *Manager) scheduleRetryLocked() {
	delay := m.cfg.Backoff.Delay(m.retries)
	m.retries++
	gen := m.gen
	m.logger.Info("Reconnecting", "in", delay, "retries", m.retries)
	m.timer = m.clock.AfterFunc(delay, func() { m.fireRetry(gen) })
}

func (m *Manager) fireRetry(gen uint64) {
	m.mu.Lock()
	if !m.currentLocked(gen) || m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	err := m.connectLocked()
	m.mu.Unlock()

	if errors.Is(err, ErrUnauthenticated) {
		m.nav.RedirectToLogin()
	}
}

// Teardown cancels any pending retry, closes the connection without
// scheduling a retry, waits for the connection goroutine to exit and
// discards the store. It is idempotent.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.closeConnLocked()
	m.setStateLocked(StateDisconnected)
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	m.store.Reset()
	m.logger.Debug("Connection manager torn down")
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeConnLocked() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.logger.Debug("Failed to close connection", "error", err)
	}
	m.conn = nil
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("State change", "from", m.state, "to", s)
	m.state = s
	select {
	case m.changes <- struct{}{}:
	default:
	}
}
