// Package transport is the boundary between the convergence engine and the
// machinery that reaches remote hosts. The engine only sees Dialer and
// Session; the SSH implementation lives in ssh.go.
package transport

import (
	"context"
	"fmt"
	"io"
	"io/fs"
)

// ExecResult carries the output of one remote command. A non-zero exit code
// is data, not an error: modules decide what it means.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session is an established connection to one host. Commands on a session
// run strictly sequentially.
type Session interface {
	Run(ctx context.Context, cmd string) (ExecResult, error)
	Upload(ctx context.Context, src io.Reader, remotePath string, mode fs.FileMode) error
	Close() error
}

// Dialer opens sessions. Implementations own auth and connection pooling.
type Dialer interface {
	Dial(ctx context.Context, addr string, cfg ConnConfig) (Session, error)
}

// ConnConfig carries per-host connection parameters.
type ConnConfig struct {
	User     string
	Password string
	Port     int
	KeyPath  string
}

// ConnectionError reports a failure to establish a session. Hosts that hit
// one are classified unreachable and never retried by the engine.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports an I/O failure on an established session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
