// Package stream owns the single live connection to the tracking backend and
// turns its frames into typed messages. There is no reconnect: once the
// connection ends the stream is finished.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetwatch/internal/metrics"
)

// Conn is one open transport connection delivering raw frames.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection ends.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a transport connection with the given credentials.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

const (
	defaultBufferSize   = 256
	defaultCloseTimeout = time.Second
)

type Option func(*Manager)

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithBufferSize sets the capacity of the message channel.
func WithBufferSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.buffer = n
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCloseTimeout bounds how long a local Close waits for room in a full
// buffer to deliver the final Closed message.
func WithCloseTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.closeTimeout = d
		}
	}
}

// WithMetrics records frame and connection counters on tracker.
func WithMetrics(tracker *metrics.Tracker) Option {
	return func(m *Manager) { m.metrics = tracker }
}

// Manager runs one connection for its whole lifetime.
type Manager struct {
	session      SessionStore
	dialer       Dialer
	log          *zap.Logger
	buffer       int
	closeTimeout time.Duration
	now          func() time.Time
	metrics      *metrics.Tracker

	mu      sync.Mutex
	conn    Conn
	opened  bool
	closing bool
	stop    chan struct{}
	done    chan struct{}
}

func NewManager(session SessionStore, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		session:      session,
		dialer:       dialer,
		log:          zap.NewNop(),
		buffer:       defaultBufferSize,
		closeTimeout: defaultCloseTimeout,
		now:          time.Now,
		metrics:      metrics.NewTracker(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open derives the credentials, dials once and starts reading. Frames are
// delivered on the returned channel strictly in arrival order; the channel
// is closed when the connection ends. Missing credentials abort before any
// dial and return ErrMissingCredentials.
func (m *Manager) Open(ctx context.Context) (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opened {
		return nil, ErrAlreadyOpen
	}

	blob, err := m.session.Load()
	if err != nil {
		m.log.Error("Failed to load stream session", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}
	creds, err := DecodeCredentials(blob)
	if err != nil {
		m.log.Error("No stream credentials in session, skipping connection", zap.Error(err))
		return nil, err
	}

	conn, err := m.dialer.Dial(ctx, creds)
	if err != nil {
		m.log.Error("Failed to open stream connection", zap.Error(err))
		return nil, fmt.Errorf("failed to open stream connection: %w", err)
	}

	m.opened = true
	m.conn = conn
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	out := make(chan Message, m.buffer)

	m.metrics.Update(func(s *metrics.StreamMetrics) { s.Connected = true })
	m.log.Info("Stream connection opened", zap.String("username", creds.Username))
	go m.readLoop(conn, out)
	return out, nil
}

// Close tears the connection down and waits for the reader to exit. It is
// idempotent and safe to call when Open failed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.opened || m.closing {
		done := m.done
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}
	m.closing = true
	close(m.stop)
	conn := m.conn
	m.mu.Unlock()

	err := conn.Close()
	<-m.done
	if err != nil && !errors.Is(err, ErrConnClosed) {
		return fmt.Errorf("failed to close stream connection: %w", err)
	}
	return nil
}

func (m *Manager) isClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

func (m *Manager) readLoop(conn Conn, out chan<- Message) {
	defer close(m.done)
	defer close(out)
	defer m.metrics.Update(func(s *metrics.StreamMetrics) { s.Connected = false })

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if m.isClosing() {
				m.log.Info("Stream connection closed")
				m.finish(out)
				return
			}
			m.log.Warn("Stream connection ended, not reconnecting", zap.Error(err))
			m.metrics.Update(func(s *metrics.StreamMetrics) { s.StreamErrors++ })
			m.send(out, Error{Err: err})
			m.send(out, Closed{Err: err})
			return
		}

		now := m.now()
		m.metrics.Update(func(s *metrics.StreamMetrics) {
			s.FramesReceived++
			s.LastMessageAt = now
		})

		frame, err := ParseFrame(data)
		if err != nil {
			m.metrics.Update(func(s *metrics.StreamMetrics) { s.MalformedFrames++ })
			m.log.Warn("Dropping malformed frame", zap.Error(err), zap.Int("size", len(data)))
			m.send(out, Error{Err: err})
			continue
		}

		for _, msg := range frame.Messages(now) {
			if !m.send(out, msg) {
				m.finish(out)
				return
			}
		}
	}
}

// finish delivers the final Closed after a local Close. A consumer that
// stopped reading gets closeTimeout to make room before the message is
// dropped.
func (m *Manager) finish(out chan<- Message) {
	timer := time.NewTimer(m.closeTimeout)
	defer timer.Stop()

	select {
	case out <- Closed{}:
	case <-timer.C:
		m.log.Warn("Consumer stopped reading, dropping final close message")
	}
}

// send blocks until the consumer takes msg or Close is called.
func (m *Manager) send(out chan<- Message, msg Message) bool {
	select {
	case out <- msg:
		return true
	case <-m.stop:
		return false
	}
}
