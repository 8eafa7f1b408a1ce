package terminal

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/okorotkov/fleetsync/internal/domain"
)

// ErrProcessStartTimeout is returned when the terminal process does not
// appear within the configured wait after spawning.
var ErrProcessStartTimeout = errors.New("terminal process did not appear in time")

// LoginError is a credential rejection by the terminal, carrying the
// terminal's last error code.
type LoginError struct {
	Code    int
	Message string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("terminal login failed: code=%d %s", e.Code, e.Message)
}

// ProcessController abstracts OS-level control of the terminal executable so
// the gateway can be tested without spawning anything.
type ProcessController interface {
	// Kill force-terminates every running terminal process. Idempotent.
	Kill(ctx context.Context) error
	Spawn(ctx context.Context) error
	Running(ctx context.Context) (bool, error)
}

// ExecController drives the real terminal executable through os/exec.
type ExecController struct {
	path     string
	procName string
}

// NewExecController controls the executable at path; procName is the image
// name used for kill/liveness lookups.
func NewExecController(path, procName string) *ExecController {
	return &ExecController{path: path, procName: procName}
}

func (c *ExecController) Kill(ctx context.Context) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "taskkill", "/IM", c.procName, "/F")
	} else {
		cmd = exec.CommandContext(ctx, "pkill", "-f", c.procName)
	}
	// a non-zero exit just means no process was running
	_ = cmd.Run()
	return nil
}

func (c *ExecController) Spawn(ctx context.Context) error {
	cmd := exec.Command(c.path)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "spawn terminal %s", c.path)
	}
	// the terminal daemonizes itself; reap our direct child quietly
	go func() { _ = cmd.Wait() }()
	return nil
}

func (c *ExecController) Running(ctx context.Context) (bool, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "tasklist", "/FI", "IMAGENAME eq "+c.procName)
		out, err := cmd.Output()
		if err != nil {
			return false, errors.Wrap(err, "tasklist")
		}
		return len(out) > 0 && containsProc(string(out), c.procName), nil
	}
	cmd = exec.CommandContext(ctx, "pgrep", "-f", c.procName)
	err := cmd.Run()
	if err != nil {
		// exit status 1: no match
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, errors.Wrap(err, "pgrep")
	}
	return true, nil
}

func containsProc(listing, name string) bool {
	for i := 0; i+len(name) <= len(listing); i++ {
		if listing[i:i+len(name)] == name {
			return true
		}
	}
	return false
}

// GatewayConfig bounds the session acquisition sequence.
type GatewayConfig struct {
	Path         string        // terminal executable path, forwarded to Initialize
	StartWait    time.Duration // how long to wait for the process to appear
	PollEvery    time.Duration // process liveness poll interval
	KillSettle   time.Duration // pause after force-kill before respawn
	SpawnSettle  time.Duration // pause after the process appears, before login
	LoginSettle  time.Duration // pause after a successful login
	LoginTimeout time.Duration // terminal-side login timeout
}

// DefaultGatewayConfig mirrors the production timings of the terminal.
func DefaultGatewayConfig(path string) GatewayConfig {
	return GatewayConfig{
		Path:         path,
		StartWait:    30 * time.Second,
		PollEvery:    time.Second,
		KillSettle:   2 * time.Second,
		SpawnSettle:  5 * time.Second,
		LoginSettle:  2 * time.Second,
		LoginTimeout: 60 * time.Second,
	}
}

// Session is an exclusive, live login against the terminal.
type Session struct {
	Account domain.Account
	client  Client
}

// Client exposes the terminal connection bound to this session.
func (s *Session) Client() Client { return s.client }

// Gateway owns the terminal process and session lifecycle. It is the single
// enforcement point for the at-most-one-session invariant: acquiring always
// tears down whatever ran before.
type Gateway struct {
	proc   ProcessController
	client Client
	cfg    GatewayConfig
	logger *zap.Logger
}

// NewGateway wires a gateway over the given process controller and bridge
// client.
func NewGateway(proc ProcessController, client Client, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	return &Gateway{proc: proc, client: client, cfg: cfg, logger: logger}
}

// Acquire opens a session for the account. Any previously running terminal
// process is force-killed first. On every failure path the gateway shuts the
// terminal down best-effort so no dangling process survives.
func (g *Gateway) Acquire(ctx context.Context, account domain.Account) (*Session, error) {
	if err := g.proc.Kill(ctx); err != nil {
		return nil, errors.Wrap(err, "kill stale terminal")
	}
	if err := wait(ctx, g.cfg.KillSettle); err != nil {
		return nil, err
	}

	if err := g.proc.Spawn(ctx); err != nil {
		return nil, err
	}

	if err := g.waitForProcess(ctx); err != nil {
		_ = g.proc.Kill(ctx)
		return nil, err
	}
	if err := wait(ctx, g.cfg.SpawnSettle); err != nil {
		_ = g.proc.Kill(ctx)
		return nil, err
	}

	req := InitRequest{
		Path:     g.cfg.Path,
		Login:    account.Login,
		Password: account.Password,
		Server:   account.Server,
		Timeout:  g.cfg.LoginTimeout,
	}
	if err := g.client.Initialize(ctx, req); err != nil {
		code, msg := g.client.LastError(ctx)
		_ = g.client.Shutdown(ctx)
		_ = g.proc.Kill(ctx)
		g.logger.Warn("terminal login failed",
			zap.Int64("login", account.Login),
			zap.String("server", account.Server),
			zap.Int("terminal_error", code),
			zap.Error(err))
		return nil, &LoginError{Code: code, Message: msg}
	}

	if err := wait(ctx, g.cfg.LoginSettle); err != nil {
		_ = g.client.Shutdown(ctx)
		_ = g.proc.Kill(ctx)
		return nil, err
	}

	g.logger.Info("terminal session established",
		zap.Int64("login", account.Login),
		zap.String("server", account.Server))

	return &Session{Account: account, client: g.client}, nil
}

// Release closes the session and force-kills the terminal process. Safe to
// call with a nil session and safe to call twice.
func (g *Gateway) Release(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	_ = g.client.Shutdown(ctx)
	_ = g.proc.Kill(ctx)
	g.logger.Info("terminal session released", zap.Int64("login", s.Account.Login))
}

// Alive reports whether the terminal process runs and the bridge answers.
func (g *Gateway) Alive(ctx context.Context) bool {
	running, err := g.proc.Running(ctx)
	if err != nil || !running {
		return false
	}
	return g.client.Ping(ctx) == nil
}

func (g *Gateway) waitForProcess(ctx context.Context) error {
	deadline := time.Now().Add(g.cfg.StartWait)
	for {
		running, err := g.proc.Running(ctx)
		if err == nil && running {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrProcessStartTimeout
		}
		if err := wait(ctx, g.cfg.PollEvery); err != nil {
			return err
		}
	}
}

// wait sleeps for d unless the context ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
