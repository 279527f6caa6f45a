package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorTransientNetwork      = "TOKENPOOL_TRANSIENT_NETWORK"
	ErrorUpstreamProtocol      = "TOKENPOOL_UPSTREAM_PROTOCOL"
	ErrorUpstreamHTTP          = "TOKENPOOL_UPSTREAM_HTTP"
	ErrorConfiguration         = "TOKENPOOL_CONFIGURATION"
	ErrorCapabilityUnsupported = "TOKENPOOL_CAPABILITY_UNSUPPORTED"
	ErrorIncompleteTokenPair   = "TOKENPOOL_INCOMPLETE_TOKEN_PAIR"
	ErrorAccountNotFound       = "TOKENPOOL_ACCOUNT_NOT_FOUND"
	ErrorPoolNotFound          = "TOKENPOOL_POOL_NOT_FOUND"
	ErrorAccountExists         = "TOKENPOOL_ACCOUNT_EXISTS"
	ErrorBadInput              = "TOKENPOOL_BAD_INPUT"
	ErrorInternal              = "TOKENPOOL_INTERNAL_ERROR"
)

// Transient failure reasons attached to TOKENPOOL_TRANSIENT_NETWORK errors.
const (
	TransientConnection = "connection"
	TransientTimeout    = "timeout"
	TransientTLS        = "tls"
	TransientProxy      = "proxy"
)

// NewTransientError marks a transport level failure that the retry policy may absorb.
func NewTransientError(source error, reason string, operation string) *goerrors.Error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = TransientConnection
	}
	message := fmt.Sprintf("%s: %s failure", operation, reason)
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorTransientNetwork).
		WithMetadata(map[string]any{"operation": operation, "reason": reason})
}

// NewProtocolError reports a successful HTTP exchange whose body lacks required fields.
func NewProtocolError(operation string, missing ...string) *goerrors.Error {
	message := fmt.Sprintf("%s: response missing expected fields", operation)
	if len(missing) > 0 {
		message = fmt.Sprintf("%s: response missing %s", operation, strings.Join(missing, ", "))
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorUpstreamProtocol).
		WithMetadata(map[string]any{"operation": operation, "missing": missing})
}

// NewHardUpstreamError reports an HTTP error status returned by the backend.
func NewHardUpstreamError(operation string, statusCode int, body string) *goerrors.Error {
	message := fmt.Sprintf("%s: upstream responded with status %d", operation, statusCode)
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(statusCode).
		WithTextCode(ErrorUpstreamHTTP).
		WithMetadata(map[string]any{"operation": operation, "status_code": statusCode, "body": body})
}

func NewConfigurationError(format string, args ...any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorConfiguration)
}

func NewUnsupportedError(backend string, capability Capability) *goerrors.Error {
	message := fmt.Sprintf("%s: capability %q is not supported", backend, capability)
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusNotImplemented).
		WithTextCode(ErrorCapabilityUnsupported).
		WithMetadata(map[string]any{"backend": backend, "capability": string(capability)})
}

func NewIncompletePairError(accountID string, track Track) *goerrors.Error {
	message := fmt.Sprintf("core: incomplete %s token pair for account %s", track, accountID)
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorIncompleteTokenPair).
		WithMetadata(map[string]any{"account_id": accountID, "track": string(track)})
}

func NewAccountNotFoundError(accountID string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("core: account %s not found", accountID), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorAccountNotFound)
}

func NewAccountExistsError(email string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("core: account %s already exists", email), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorAccountExists)
}

func NewPoolNotFoundError(poolID string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("core: pool %s has not been assembled", poolID), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorPoolNotFound)
}

func NewBadInputError(format string, args ...any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func NewInternalError(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func IsTransient(err error) bool { return hasTextCode(err, ErrorTransientNetwork) }

func IsProtocol(err error) bool { return hasTextCode(err, ErrorUpstreamProtocol) }

func IsHardUpstream(err error) bool { return hasTextCode(err, ErrorUpstreamHTTP) }

func IsConfiguration(err error) bool { return hasTextCode(err, ErrorConfiguration) }

func IsUnsupported(err error) bool { return hasTextCode(err, ErrorCapabilityUnsupported) }

func IsIncompletePair(err error) bool { return hasTextCode(err, ErrorIncompleteTokenPair) }

func IsAccountNotFound(err error) bool { return hasTextCode(err, ErrorAccountNotFound) }

func IsAccountExists(err error) bool { return hasTextCode(err, ErrorAccountExists) }

func IsPoolNotFound(err error) bool { return hasTextCode(err, ErrorPoolNotFound) }

func IsBadInput(err error) bool { return hasTextCode(err, ErrorBadInput) }

// UpstreamStatus returns the HTTP status carried by a hard upstream error, or 0.
func UpstreamStatus(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != ErrorUpstreamHTTP {
		return 0
	}
	return richErr.Code
}

// FailureKind names the taxonomy bucket of err for logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsTransient(err):
		return "transient"
	case IsProtocol(err):
		return "protocol"
	case IsHardUpstream(err):
		return "hard_upstream"
	case IsConfiguration(err):
		return "configuration"
	case IsUnsupported(err):
		return "unsupported"
	case IsIncompletePair(err):
		return "incomplete_pair"
	default:
		return "internal"
	}
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), code)
}
