package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tokenpool/core"
)

var (
	_ gocmd.Querier[AccountStatsMessage, core.AccountStats] = (*AccountStatsQuery)(nil)
	_ gocmd.Querier[GetPoolMessage, core.PoolHandle]        = (*GetPoolQuery)(nil)
)
