package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Capability names an optional backend operation.
type Capability string

const (
	CapabilityShareToken         Capability = "share_token"
	CapabilityPoolAggregation    Capability = "pool_aggregation"
	CapabilitySessionKeyFetch    Capability = "session_key_fetch"
	CapabilityEmbeddedSessionKey Capability = "embedded_session_key"
)

// BackendAdapter speaks the wire protocol of one upstream token service. Calls
// perform a single attempt; retries are applied by callers through RetryPolicy.
type BackendAdapter interface {
	ID() string
	Supports(capability Capability) bool

	ObtainSession(ctx context.Context, creds Credentials) (TokenPair, error)
	RefreshSession(ctx context.Context, sessionToken string) (TokenPair, error)
	ObtainPlatform(ctx context.Context, creds Credentials) (TokenPair, error)
	// RefreshPlatform receives the stored account since some backends re-login
	// instead of using the refresh token.
	RefreshPlatform(ctx context.Context, account Account) (TokenPair, error)
	FetchPlatformSessionKey(ctx context.Context, accessToken string) (string, error)
	RegisterShareToken(ctx context.Context, accessToken string) (ShareToken, error)
	AggregatePool(ctx context.Context, shareTokens []string) (string, error)
}

// CandidateFilter selects accounts eligible for a lifecycle transition.
type CandidateFilter struct {
	Mode              Mode
	Track             Track
	Now               time.Time
	NearExpiryWindow  time.Duration
	EmptyArtifactOnly bool
}

type AccountStore interface {
	CountActive(ctx context.Context) (int, error)
	CountMatching(ctx context.Context, filter CandidateFilter) (int, error)
	// ListCandidates returns matching active accounts; limit UnboundedBatch lists all.
	ListCandidates(ctx context.Context, filter CandidateFilter, limit int) ([]Account, error)
	// SaveTokenPair writes the whole pair, both expiries, the refreshed-at
	// timestamp and the active flag in one commit. Incomplete pairs are rejected
	// without writing.
	SaveTokenPair(ctx context.Context, accountID string, track Track, pair TokenPair, refreshedAt time.Time) error
	SaveShareToken(ctx context.Context, accountID string, token ShareToken) error
	SaveSessionKey(ctx context.Context, accountID string, sessionKey string) error
	// ListShareTokens returns the share tokens of active accounts that are
	// still valid at now. A token without a recorded expiry counts as valid.
	ListShareTokens(ctx context.Context, now time.Time, limit int) ([]string, error)
	CreateAccount(ctx context.Context, in NewAccountInput) (Account, error)
	Get(ctx context.Context, accountID string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
}

type PoolStore interface {
	SavePool(ctx context.Context, handle PoolHandle) error
	GetPool(ctx context.Context, poolID string) (PoolHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider
