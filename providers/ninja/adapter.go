// Package ninja implements core.BackendAdapter for ninja style backends. The
// platform session key is fetched separately; share tokens and pools are not
// available.
package ninja

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-tokenpool/core"
	"github.com/goliatone/go-tokenpool/providers"
	"github.com/goliatone/go-tokenpool/transport"
)

const ID = core.BackendNinja

const (
	DefaultAccessTokenTTL  = 10 * 24 * time.Hour
	DefaultRefreshTokenTTL = 10 * 24 * time.Hour
)

type Config struct {
	BaseURL string
	// AccessTokenTTL is assumed for session access tokens; the backend only
	// reports the session token expiry.
	AccessTokenTTL time.Duration
	// RefreshTokenTTL is assumed; the backend does not report it.
	RefreshTokenTTL time.Duration

	HTTP   transport.Config
	Doer   transport.HTTPDoer
	Logger core.Logger
	Now    func() time.Time
}

type Adapter struct {
	cfg      Config
	exchange *providers.Exchanger
}

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, core.NewConfigurationError("ninja: base_url is required")
	}
	client, err := transport.NewClient(cfg.BaseURL, cfg.Doer, cfg.HTTP)
	if err != nil {
		return nil, core.NewConfigurationError("ninja: invalid base_url %q: %v", cfg.BaseURL, err)
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &Adapter{
		cfg:      cfg,
		exchange: providers.NewExchanger(ID, client, cfg.Logger, cfg.Now),
	}, nil
}

func (a *Adapter) ID() string { return ID }

func (a *Adapter) Supports(capability core.Capability) bool {
	return capability == core.CapabilitySessionKeyFetch
}

func (a *Adapter) ObtainSession(ctx context.Context, creds core.Credentials) (core.TokenPair, error) {
	return a.sessionExchange(ctx, transport.Request{
		Operation: a.exchange.Operation("obtain_session"),
		Path:      "auth/token",
		Form: url.Values{
			"username": {creds.Email},
			"password": {creds.Password},
		},
	})
}

func (a *Adapter) RefreshSession(ctx context.Context, sessionToken string) (core.TokenPair, error) {
	return a.sessionExchange(ctx, transport.Request{
		Operation: a.exchange.Operation("refresh_session"),
		Path:      "auth/refresh_session",
		Bearer:    sessionToken,
	})
}

func (a *Adapter) sessionExchange(ctx context.Context, req transport.Request) (core.TokenPair, error) {
	payload, err := a.exchange.Post(ctx, req)
	if err != nil {
		return core.TokenPair{}, err
	}
	missing := payload.Missing(providers.Field("session_token"), providers.Field("accessToken"))
	expiresAt, parseErr := providers.ParseISOExpiry(payload.String("expires"))
	if parseErr != nil {
		missing = append(missing, "expires")
	}
	if len(missing) > 0 {
		return core.TokenPair{}, core.NewProtocolError(req.Operation, missing...)
	}
	now := a.exchange.Now().UTC()
	return core.TokenPair{
		Primary:            payload.String("session_token"),
		Companion:          payload.String("accessToken"),
		PrimaryExpiresAt:   expiresAt,
		CompanionExpiresAt: now.Add(a.cfg.AccessTokenTTL),
	}, nil
}

func (a *Adapter) ObtainPlatform(ctx context.Context, creds core.Credentials) (core.TokenPair, error) {
	return a.platformExchange(ctx, transport.Request{
		Operation: a.exchange.Operation("obtain_platform"),
		Path:      "auth/token",
		Form: url.Values{
			"username": {creds.Email},
			"password": {creds.Password},
			"option":   {"platform"},
		},
	})
}

func (a *Adapter) RefreshPlatform(ctx context.Context, account core.Account) (core.TokenPair, error) {
	return a.platformExchange(ctx, transport.Request{
		Operation: a.exchange.Operation("refresh_platform"),
		Path:      "auth/refresh_token",
		Bearer:    account.PlatformRefreshToken,
	})
}

func (a *Adapter) platformExchange(ctx context.Context, req transport.Request) (core.TokenPair, error) {
	payload, err := a.exchange.Post(ctx, req)
	if err != nil {
		return core.TokenPair{}, err
	}
	missing := payload.Missing(providers.Field("refresh_token"), providers.Field("access_token"))
	expiresIn, ok := payload.Int64("expires_in")
	if !ok || expiresIn <= 0 {
		missing = append(missing, "expires_in")
	}
	if len(missing) > 0 {
		return core.TokenPair{}, core.NewProtocolError(req.Operation, missing...)
	}
	now := a.exchange.Now().UTC()
	return core.TokenPair{
		Primary:            payload.String("refresh_token"),
		Companion:          payload.String("access_token"),
		PrimaryExpiresAt:   now.Add(a.cfg.RefreshTokenTTL),
		CompanionExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func (a *Adapter) FetchPlatformSessionKey(ctx context.Context, accessToken string) (string, error) {
	operation := a.exchange.Operation("fetch_session_key")
	payload, err := a.exchange.Post(ctx, transport.Request{
		Operation: operation,
		Path:      "auth/sess_token",
		Bearer:    accessToken,
	})
	if err != nil {
		return "", err
	}
	if missing := payload.Missing(providers.Field("user", "session", "sensitive_id")); len(missing) > 0 {
		return "", core.NewProtocolError(operation, missing...)
	}
	return payload.String("user", "session", "sensitive_id"), nil
}

func (a *Adapter) RegisterShareToken(context.Context, string) (core.ShareToken, error) {
	return core.ShareToken{}, core.NewUnsupportedError(ID, core.CapabilityShareToken)
}

func (a *Adapter) AggregatePool(context.Context, []string) (string, error) {
	return "", core.NewUnsupportedError(ID, core.CapabilityPoolAggregation)
}

var _ core.BackendAdapter = (*Adapter)(nil)
