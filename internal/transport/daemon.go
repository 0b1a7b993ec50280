package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultDaemonStartupTimeout bounds the bootstrap of the embedded Tor daemon.
const DefaultDaemonStartupTimeout = 3 * time.Minute

// TorDaemon runs an embedded Tor daemon whose SOCKS5 listener serves as
// the proxy for every client built with NewHTTPClient.
//
// Design decision: The origin drops connections from some networks, so a
// Tor route can be started in-process instead of requiring a system
// daemon. Bootstrapping takes one to three minutes.
type TorDaemon struct {
	startupTimeout time.Duration

	mu        sync.Mutex
	process   *tornago.TorProcess
	socksAddr string
}

// DaemonOption configures a TorDaemon.
type DaemonOption func(*TorDaemon)

// WithDaemonStartupTimeout sets the bootstrap timeout.
func WithDaemonStartupTimeout(d time.Duration) DaemonOption {
	return func(t *TorDaemon) {
		if d > 0 {
			t.startupTimeout = d
		}
	}
}

// NewTorDaemon creates an unstarted daemon.
func NewTorDaemon(opts ...DaemonOption) *TorDaemon {
	t := &TorDaemon{startupTimeout: DefaultDaemonStartupTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped. A ctx cancelled during startup stops the daemon again.
func (t *TorDaemon) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.process != nil {
		return nil
	}

	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(t.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // startup was abandoned
		return err
	}

	t.process = process
	t.socksAddr = process.SocksAddr()
	return nil
}

// SocksAddr returns the daemon's SOCKS5 address, or "" when not running.
func (t *TorDaemon) SocksAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socksAddr
}

// Running reports whether the daemon has been started and not stopped.
func (t *TorDaemon) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.process != nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted daemon
// and more than once.
func (t *TorDaemon) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.process == nil {
		return nil
	}
	err := t.process.Stop()
	t.process = nil
	t.socksAddr = ""
	return err
}
