// Package pandora implements core.BackendAdapter for PandoraNext style
// backends: session and platform logins, share token registration and pool
// aggregation. The platform session key arrives embedded in the login.
package pandora

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-tokenpool/core"
	"github.com/goliatone/go-tokenpool/providers"
	"github.com/goliatone/go-tokenpool/transport"
)

const ID = core.BackendPandora

const (
	DefaultSessionTokenTTL = 90 * 24 * time.Hour
	DefaultRefreshTokenTTL = 10 * 24 * time.Hour
	DefaultShareTokenName  = "demo"
)

type Config struct {
	BaseURL   string
	PoolToken string
	// ShareTokenName is the unique_name registered for every share token.
	ShareTokenName string
	// RefreshPlatformViaLogin re-runs the platform login on refresh so the
	// session key is renewed together with the pair.
	RefreshPlatformViaLogin bool
	SessionTokenTTL         time.Duration
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
		return nil, core.NewConfigurationError("pandora: base_url is required")
	}
	client, err := transport.NewClient(cfg.BaseURL, cfg.Doer, cfg.HTTP)
	if err != nil {
		return nil, core.NewConfigurationError("pandora: invalid base_url %q: %v", cfg.BaseURL, err)
	}
	if cfg.SessionTokenTTL <= 0 {
		cfg.SessionTokenTTL = DefaultSessionTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if strings.TrimSpace(cfg.ShareTokenName) == "" {
		cfg.ShareTokenName = DefaultShareTokenName
	}
	return &Adapter{
		cfg:      cfg,
		exchange: providers.NewExchanger(ID, client, cfg.Logger, cfg.Now),
	}, nil
}

func (a *Adapter) ID() string { return ID }

func (a *Adapter) Supports(capability core.Capability) bool {
	switch capability {
	case core.CapabilityShareToken, core.CapabilityPoolAggregation, core.CapabilityEmbeddedSessionKey:
		return true
	default:
		return false
	}
}

func (a *Adapter) ObtainSession(ctx context.Context, creds core.Credentials) (core.TokenPair, error) {
	return a.sessionExchange(ctx, "obtain_session", "api/auth/login", url.Values{
		"username": {creds.Email},
		"password": {creds.Password},
	})
}

func (a *Adapter) RefreshSession(ctx context.Context, sessionToken string) (core.TokenPair, error) {
	return a.sessionExchange(ctx, "refresh_session", "api/auth/session", url.Values{
		"session_token": {sessionToken},
	})
}

func (a *Adapter) sessionExchange(ctx context.Context, name string, path string, form url.Values) (core.TokenPair, error) {
	operation := a.exchange.Operation(name)
	payload, err := a.exchange.Post(ctx, transport.Request{Operation: operation, Path: path, Form: form})
	if err != nil {
		return core.TokenPair{}, err
	}
	missing := payload.Missing(providers.Field("session_token"), providers.Field("access_token"))
	expiresIn, ok := payload.Int64("expires_in")
	if !ok || expiresIn <= 0 {
		missing = append(missing, "expires_in")
	}
	if len(missing) > 0 {
		return core.TokenPair{}, core.NewProtocolError(operation, missing...)
	}
	now := a.exchange.Now().UTC()
	return core.TokenPair{
		Primary:            payload.String("session_token"),
		Companion:          payload.String("access_token"),
		PrimaryExpiresAt:   now.Add(a.cfg.SessionTokenTTL),
		CompanionExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func (a *Adapter) ObtainPlatform(ctx context.Context, creds core.Credentials) (core.TokenPair, error) {
	operation := a.exchange.Operation("obtain_platform")
	payload, err := a.exchange.Post(ctx, transport.Request{
		Operation: operation,
		Path:      "api/auth/platform/login",
		Form: url.Values{
			"username": {creds.Email},
			"password": {creds.Password},
			"prompt":   {"login"},
		},
	})
	if err != nil {
		return core.TokenPair{}, err
	}
	missing := payload.Missing(
		providers.Field("token_info", "refresh_token"),
		providers.Field("token_info", "access_token"),
		providers.Field("login_info", "user", "session", "sensitive_id"),
	)
	expiresIn, ok := payload.Int64("token_info", "expires_in")
	if !ok || expiresIn <= 0 {
		missing = append(missing, "token_info.expires_in")
	}
	if len(missing) > 0 {
		return core.TokenPair{}, core.NewProtocolError(operation, missing...)
	}
	now := a.exchange.Now().UTC()
	return core.TokenPair{
		Primary:            payload.String("token_info", "refresh_token"),
		Companion:          payload.String("token_info", "access_token"),
		PrimaryExpiresAt:   now.Add(a.cfg.RefreshTokenTTL),
		CompanionExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
		SessionKey:         payload.String("login_info", "user", "session", "sensitive_id"),
	}, nil
}

// RefreshPlatform logs in again by default. With RefreshPlatformViaLogin
// disabled it uses the refresh endpoint and leaves the stored session key.
func (a *Adapter) RefreshPlatform(ctx context.Context, account core.Account) (core.TokenPair, error) {
	if a.cfg.RefreshPlatformViaLogin {
		return a.ObtainPlatform(ctx, account.Credentials())
	}
	operation := a.exchange.Operation("refresh_platform")
	payload, err := a.exchange.Post(ctx, transport.Request{
		Operation: operation,
		Path:      "api/auth/platform/refresh",
		Form:      url.Values{"refresh_token": {account.PlatformRefreshToken}},
	})
	if err != nil {
		return core.TokenPair{}, err
	}
	missing := payload.Missing(providers.Field("refresh_token"), providers.Field("access_token"))
	expiresIn, ok := payload.Int64("expires_in")
	if !ok || expiresIn <= 0 {
		missing = append(missing, "expires_in")
	}
	if len(missing) > 0 {
		return core.TokenPair{}, core.NewProtocolError(operation, missing...)
	}
	now := a.exchange.Now().UTC()
	return core.TokenPair{
		Primary:            payload.String("refresh_token"),
		Companion:          payload.String("access_token"),
		PrimaryExpiresAt:   now.Add(a.cfg.RefreshTokenTTL),
		CompanionExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func (a *Adapter) FetchPlatformSessionKey(context.Context, string) (string, error) {
	return "", core.NewUnsupportedError(ID, core.CapabilitySessionKeyFetch)
}

// RegisterShareToken accepts the token only when its expire_at epoch lies
// strictly in the future.
func (a *Adapter) RegisterShareToken(ctx context.Context, accessToken string) (core.ShareToken, error) {
	operation := a.exchange.Operation("register_share_token")
	payload, err := a.exchange.Post(ctx, transport.Request{
		Operation: operation,
		Path:      "api/token/register",
		Form: url.Values{
			"unique_name":        {a.cfg.ShareTokenName},
			"access_token":       {accessToken},
			"site_limit":         {""},
			"expires_in":         {"0"},
			"show_conversations": {"True"},
			"show_userinfo":      {"True"},
		},
	})
	if err != nil {
		return core.ShareToken{}, err
	}
	missing := payload.Missing(providers.Field("token_key"))
	expireAt, ok := payload.Int64("expire_at")
	now := a.exchange.Now().UTC()
	if !ok || expireAt <= now.Unix() {
		missing = append(missing, "expire_at")
	}
	if len(missing) > 0 {
		return core.ShareToken{}, core.NewProtocolError(operation, missing...)
	}
	return core.ShareToken{
		Key:       payload.String("token_key"),
		ExpiresAt: time.Unix(expireAt, 0).UTC(),
	}, nil
}

func (a *Adapter) AggregatePool(ctx context.Context, shareTokens []string) (string, error) {
	operation := a.exchange.Operation("aggregate_pool")
	if len(shareTokens) == 0 || len(shareTokens) > core.MaxPoolShareTokens {
		return "", core.NewBadInputError("pandora: pool needs between 1 and %d share tokens, got %d",
			core.MaxPoolShareTokens, len(shareTokens))
	}
	payload, err := a.exchange.Post(ctx, transport.Request{
		Operation: operation,
		Path:      "api/pool/update",
		Form: url.Values{
			"share_tokens": {strings.Join(shareTokens, "\n")},
			"pool_token":   {a.cfg.PoolToken},
		},
	})
	if err != nil {
		return "", err
	}
	if missing := payload.Missing(providers.Field("pool_token")); len(missing) > 0 {
		return "", core.NewProtocolError(operation, missing...)
	}
	return payload.String("pool_token"), nil
}

var _ core.BackendAdapter = (*Adapter)(nil)
