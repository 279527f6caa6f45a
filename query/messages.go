package query

import (
	"time"

	"github.com/goliatone/go-tokenpool/core"
)

const (
	TypeAccountStats = "tokenpool.query.accounts.stats"
	TypeGetPool      = "tokenpool.query.pool.get"
)

type AccountStatsMessage struct {
	Track            core.Track
	NearExpiryWindow time.Duration
}

func (AccountStatsMessage) Type() string { return TypeAccountStats }

func (m AccountStatsMessage) Validate() error {
	if !m.Track.Valid() {
		return queryValidationError("track", "must be session or platform")
	}
	if m.NearExpiryWindow < 0 {
		return queryValidationError("near_expiry_window", "must be >= 0")
	}
	return nil
}

// GetPoolMessage reads a stored pool handle. An empty PoolID reads the
// default pool.
type GetPoolMessage struct {
	PoolID string
}

func (GetPoolMessage) Type() string { return TypeGetPool }

func (GetPoolMessage) Validate() error { return nil }
