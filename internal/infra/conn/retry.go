package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/transport"
)

// ExecuteWithRetry runs fn against the server's session. If fn fails with
// a transient connection error the stale session is dropped, a fresh one
// is dialed, and fn runs exactly one more time. Cancellation and domain
// errors are never retried.
func (m *Manager) ExecuteWithRetry(ctx context.Context, name string, fn func(transport.Session) error) error {
	session, err := m.GetSession(ctx, name)
	if err != nil {
		return err
	}

	err = fn(session)
	if err == nil || !shouldRetry(err) {
		return err
	}

	m.logger.Warn("transient session failure, reconnecting",
		zap.String("server", name), zap.Error(err))
	m.Disconnect(name)

	session, dialErr := m.GetSession(ctx, name)
	if dialErr != nil {
		return dialErr
	}
	return fn(session)
}

// shouldRetry reports whether an error looks like a dead connection
// rather than a protocol-level or caller-side failure.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if domain.IsDomainError(err) {
		return false
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return true
	}
	return false
}
