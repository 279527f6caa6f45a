package query

import (
	"context"
	"time"

	"github.com/goliatone/go-tokenpool/core"
)

type AccountStatsReader interface {
	Stats(ctx context.Context, track core.Track, window time.Duration) (core.AccountStats, error)
}

type PoolReader interface {
	GetPool(ctx context.Context, poolID string) (core.PoolHandle, error)
}

type AccountStatsQuery struct {
	reader AccountStatsReader
}

func NewAccountStatsQuery(reader AccountStatsReader) *AccountStatsQuery {
	return &AccountStatsQuery{reader: reader}
}

func (q *AccountStatsQuery) Query(ctx context.Context, msg AccountStatsMessage) (core.AccountStats, error) {
	if q == nil || q.reader == nil {
		return core.AccountStats{}, queryDependencyError("query: account stats reader is required")
	}
	return q.reader.Stats(ctx, msg.Track, msg.NearExpiryWindow)
}

type GetPoolQuery struct {
	reader PoolReader
}

func NewGetPoolQuery(reader PoolReader) *GetPoolQuery {
	return &GetPoolQuery{reader: reader}
}

func (q *GetPoolQuery) Query(ctx context.Context, msg GetPoolMessage) (core.PoolHandle, error) {
	if q == nil || q.reader == nil {
		return core.PoolHandle{}, queryDependencyError("query: pool reader is required")
	}
	return q.reader.GetPool(ctx, msg.PoolID)
}
