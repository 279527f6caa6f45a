package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tokenpool/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	default:
		return core.ErrorInternal
	}
}

// classifyError maps a failed exchange to a transient network error. Caller
// cancellation is the only failure that is not retryable.
func classifyError(err error, operation string) error {
	if errors.Is(err, context.Canceled) {
		return transportWrapError(err, goerrors.CategoryInternal, "transport: request cancelled", 499, map[string]any{
			"operation": operation,
		})
	}
	return core.NewTransientError(err, TransientReason(err), operation)
}

// TransientReason names the failure class of a transport error.
func TransientReason(err error) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return core.TransientProxy
	}
	if isTLSError(err) {
		return core.TransientTLS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.TransientTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.TransientTimeout
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "proxy"):
		return core.TransientProxy
	case strings.Contains(message, "tls") || strings.Contains(message, "x509"):
		return core.TransientTLS
	case strings.Contains(message, "timeout"):
		return core.TransientTimeout
	default:
		return core.TransientConnection
	}
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &invalidErr)
}
