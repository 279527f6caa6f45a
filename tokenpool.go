package tokenpool

import "github.com/goliatone/go-tokenpool/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Account = core.Account
type AccountStore = core.AccountStore
type PoolStore = core.PoolStore
type BackendAdapter = core.BackendAdapter
type Track = core.Track

type ObtainRequest = core.ObtainRequest
type RefreshRequest = core.RefreshRequest
type AssembleRequest = core.AssembleRequest

type RunReport = core.RunReport
type AssembleReport = core.AssembleReport
type ImportReport = core.ImportReport
type AccountStats = core.AccountStats

const (
	TrackSession  = core.TrackSession
	TrackPlatform = core.TrackPlatform
)

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithRetryPolicy     = core.WithRetryPolicy
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(deps ServiceDependencies, opts ...Option) (*Service, error) {
	return core.NewService(deps, opts...)
}
