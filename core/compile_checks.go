package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ AccountStore = (*MemoryAccountStore)(nil)
	_ PoolStore    = (*MemoryPoolStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
