package tokenpool

import (
	"strings"

	"github.com/goliatone/go-tokenpool/core"
	"github.com/goliatone/go-tokenpool/providers/ninja"
	"github.com/goliatone/go-tokenpool/providers/pandora"
	"github.com/goliatone/go-tokenpool/transport"
)

func PandoraAdapter(cfg pandora.Config) (core.BackendAdapter, error) {
	return pandora.New(cfg)
}

func NinjaAdapter(cfg ninja.Config) (core.BackendAdapter, error) {
	return ninja.New(cfg)
}

// NewBackendAdapter builds the adapter selected by cfg.Backend. A nil doer
// makes the adapter build its own client from the http section.
func NewBackendAdapter(cfg Config, logger core.Logger, doer transport.HTTPDoer) (core.BackendAdapter, error) {
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}
	httpCfg := transport.Config{
		Timeout:           cfg.HTTPTimeout(),
		ProxyURL:          cfg.HTTP.ProxyURL,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		UserAgent:         cfg.HTTP.UserAgent,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case core.BackendNinja:
		return NinjaAdapter(ninja.Config{
			BaseURL:         cfg.Ninja.BaseURL,
			AccessTokenTTL:  cfg.AccessTokenTTL(),
			RefreshTokenTTL: cfg.RefreshTokenTTL(),
			HTTP:            httpCfg,
			Doer:            doer,
			Logger:          logger,
		})
	default:
		return PandoraAdapter(pandora.Config{
			BaseURL:                 cfg.Pandora.BaseURL,
			PoolToken:               cfg.Pandora.PoolToken,
			ShareTokenName:          cfg.Pandora.ShareTokenName,
			RefreshPlatformViaLogin: cfg.Pandora.RefreshPlatformViaLogin,
			SessionTokenTTL:         cfg.SessionTokenTTL(),
			RefreshTokenTTL:         cfg.RefreshTokenTTL(),
			HTTP:                    httpCfg,
			Doer:                    doer,
			Logger:                  logger,
		})
	}
}
