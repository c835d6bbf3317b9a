// Package conn manages the lifecycle of one handler connection: the
// Disconnected/Connecting/Connected/Failed state machine, bounded
// connect retries, and the repeatable health probe.
package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/handler"
	"github.com/txn2/tabular/pkg/taberr"
)

// State is the connection lifecycle state.
type State string

// Lifecycle states. Connecting is internal to Connect, which holds the
// manager lock for the whole attempt and never returns leaving the
// state there.
const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Failed       State = "failed"
)

const (
	defaultConnectAttempts  = 3
	defaultFailureThreshold = 3
	defaultConnectBackoff   = 200 * time.Millisecond
)

// Manager owns the connection state for one handler instance. All
// transitions are serialized behind its mutex; no two transitions are
// ever in flight concurrently for the same instance.
type Manager struct {
	mu     sync.Mutex
	state  State
	client apiclient.Doer

	connectAttempts  int
	failureThreshold int
	probeFailures    int
	lastErr          error

	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnectAttempts bounds the transient-failure retries inside one
// Connect call.
func WithConnectAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.connectAttempts = n
		}
	}
}

// WithFailureThreshold sets how many consecutive probe failures demote
// a Connected instance to Failed.
func WithFailureThreshold(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.failureThreshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(client apiclient.Doer, opts ...Option) *Manager {
	m := &Manager{
		state:            Disconnected,
		client:           client,
		connectAttempts:  defaultConnectAttempts,
		failureThreshold: defaultFailureThreshold,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error recorded by the most recent failed
// transition or probe.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connect attempts session setup. Transient transport failures are
// retried a bounded number of times with exponential backoff inside the
// call; authentication failures end the attempt immediately. On return
// the state is Connected or Failed, never Connecting.
func (m *Manager) Connect(ctx context.Context) handler.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Connecting
	m.probeFailures = 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultConnectBackoff
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(m.connectAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		err := m.client.Ping(ctx)
		if err == nil {
			return nil
		}
		if taberr.Is(err, taberr.KindAuthentication) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	if err != nil {
		m.state = Failed
		m.lastErr = err
		m.logger.Warn("connect failed", "error", err)
		return handler.Errored(err)
	}

	m.state = Connected
	m.lastErr = nil
	m.logger.Debug("connected")
	return handler.OK()
}

// Check is a read-only health probe, safe to call repeatedly. A healthy
// probe never changes the state. Repeated probe failures while
// Connected, past the configured threshold, demote the instance to
// Failed.
func (m *Manager) Check(ctx context.Context) handler.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected {
		if m.lastErr != nil {
			return handler.Errored(m.lastErr)
		}
		return handler.Errored(taberr.New(taberr.KindConnection, "not connected (state %s)", m.state))
	}

	if err := m.client.Ping(ctx); err != nil {
		m.probeFailures++
		m.lastErr = err
		if m.probeFailures >= m.failureThreshold {
			m.state = Failed
			m.logger.Warn("connection demoted to failed",
				"consecutive_failures", m.probeFailures, "error", err)
		}
		return handler.Errored(err)
	}

	m.probeFailures = 0
	return handler.OK()
}

// Disconnect releases the session and returns to Disconnected from any
// state.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Disconnected
	m.probeFailures = 0
	m.lastErr = nil
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Require returns nil when the instance is Connected, else a fail-fast
// connection error. Adapters call it before any network operation.
func (m *Manager) Require() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected {
		return taberr.New(taberr.KindConnection,
			"operation requires a connected handler (state %s)", m.state)
	}
	return nil
}
