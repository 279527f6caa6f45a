package sqlstore

import "github.com/goliatone/go-tokenpool/core"

var (
	_ core.AccountStore = (*AccountStore)(nil)
	_ core.PoolStore    = (*PoolStore)(nil)
)
