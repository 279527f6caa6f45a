package pandora

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-tokenpool/core"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordedRequest struct {
	Path string
	Form map[string]string
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		form[key] = r.PostForm.Get(key)
	}
	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{Path: r.URL.Path, Form: form})
	route := b.routes[r.URL.Path]
	b.mu.Unlock()
	if route == nil {
		http.NotFound(w, r)
		return
	}
	route(w, r)
}

func (b *fakeBackend) last() recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return recordedRequest{}
	}
	return b.requests[len(b.requests)-1]
}

func writeJSON(body any) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newTestAdapter(t *testing.T, routes map[string]func(http.ResponseWriter, *http.Request), mutate func(*Config)) (*Adapter, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{routes: routes}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL:                 server.URL + "/proxy",
		PoolToken:               "pk-pool",
		RefreshPlatformViaLogin: true,
		Doer:                    server.Client(),
		Now:                     func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	adapter, err := New(cfg)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter, backend
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); !core.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := New(Config{BaseURL: "not a url"}); !core.IsConfiguration(err) {
		t.Fatalf("expected configuration error for relative url, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil, nil)
	if adapter.ID() != "pandora" {
		t.Fatalf("unexpected id %q", adapter.ID())
	}
	for _, capability := range []core.Capability{core.CapabilityShareToken, core.CapabilityPoolAggregation, core.CapabilityEmbeddedSessionKey} {
		if !adapter.Supports(capability) {
			t.Fatalf("expected support for %s", capability)
		}
	}
	if adapter.Supports(core.CapabilitySessionKeyFetch) {
		t.Fatalf("session key fetch must not be supported")
	}
}

func TestObtainSession(t *testing.T) {
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/login": writeJSON(map[string]any{
			"session_token": "st-1",
			"access_token":  "at-1",
			"expires_in":    864000,
		}),
	}, nil)

	pair, err := adapter.ObtainSession(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("obtain session: %v", err)
	}
	req := backend.last()
	if req.Form["username"] != "a@example.com" || req.Form["password"] != "pw" {
		t.Fatalf("unexpected form %v", req.Form)
	}
	if pair.Primary != "st-1" || pair.Companion != "at-1" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if !pair.PrimaryExpiresAt.Equal(testNow.Add(90 * 24 * time.Hour)) {
		t.Fatalf("unexpected session expiry %v", pair.PrimaryExpiresAt)
	}
	if !pair.CompanionExpiresAt.Equal(testNow.Add(864000 * time.Second)) {
		t.Fatalf("unexpected access expiry %v", pair.CompanionExpiresAt)
	}
	if pair.SessionKey != "" {
		t.Fatalf("session track must not carry a session key")
	}
}

func TestRefreshSessionSendsSessionToken(t *testing.T) {
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/session": writeJSON(map[string]any{
			"session_token": "st-2",
			"access_token":  "at-2",
			"expires_in":    "3600",
		}),
	}, func(cfg *Config) { cfg.SessionTokenTTL = 24 * time.Hour })

	pair, err := adapter.RefreshSession(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("refresh session: %v", err)
	}
	if backend.last().Form["session_token"] != "st-1" {
		t.Fatalf("unexpected form %v", backend.last().Form)
	}
	if !pair.PrimaryExpiresAt.Equal(testNow.Add(24*time.Hour)) || !pair.CompanionExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiries %+v", pair)
	}
}

func TestObtainSessionMissingFieldsIsProtocolError(t *testing.T) {
	adapter, _ := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/login": writeJSON(map[string]any{"session_token": "st-1"}),
	}, nil)

	_, err := adapter.ObtainSession(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if !core.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if core.IsTransient(err) {
		t.Fatalf("protocol errors must not be transient")
	}
}

func TestObtainSessionErrorStatusIsHardError(t *testing.T) {
	adapter, _ := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/login": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
		},
	}, nil)

	_, err := adapter.ObtainSession(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if !core.IsHardUpstream(err) || core.UpstreamStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected hard 500 error, got %v", err)
	}
}

func platformLogin(refresh, access, key string) map[string]any {
	return map[string]any{
		"token_info": map[string]any{
			"refresh_token": refresh,
			"access_token":  access,
			"expires_in":    864000,
		},
		"login_info": map[string]any{
			"user": map[string]any{
				"session": map[string]any{"sensitive_id": key},
			},
		},
	}
}

func TestObtainPlatformCarriesEmbeddedSessionKey(t *testing.T) {
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/platform/login": writeJSON(platformLogin("rt-1", "pat-1", "sess-abc")),
	}, nil)

	pair, err := adapter.ObtainPlatform(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("obtain platform: %v", err)
	}
	if backend.last().Form["prompt"] != "login" {
		t.Fatalf("expected prompt=login, got %v", backend.last().Form)
	}
	if pair.Primary != "rt-1" || pair.Companion != "pat-1" || pair.SessionKey != "sess-abc" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if !pair.PrimaryExpiresAt.Equal(testNow.Add(10 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", pair.PrimaryExpiresAt)
	}
	if !pair.CompanionExpiresAt.Equal(testNow.Add(864000 * time.Second)) {
		t.Fatalf("unexpected access expiry %v", pair.CompanionExpiresAt)
	}
}

func TestObtainPlatformWithoutSessionKeyIsProtocolError(t *testing.T) {
	adapter, _ := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/platform/login": writeJSON(platformLogin("rt-1", "pat-1", "")),
	}, nil)

	_, err := adapter.ObtainPlatform(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if !core.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestRefreshPlatformViaLogin(t *testing.T) {
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/platform/login": writeJSON(platformLogin("rt-2", "pat-2", "sess-new")),
	}, nil)

	account := core.Account{ID: "1", Email: "a@example.com", Password: "pw", PlatformRefreshToken: "rt-1"}
	pair, err := adapter.RefreshPlatform(context.Background(), account)
	if err != nil {
		t.Fatalf("refresh platform: %v", err)
	}
	if backend.last().Path != "/proxy/api/auth/platform/login" {
		t.Fatalf("expected login path, got %s", backend.last().Path)
	}
	if pair.SessionKey != "sess-new" {
		t.Fatalf("expected renewed session key, got %+v", pair)
	}
}

func TestRefreshPlatformViaRefreshEndpoint(t *testing.T) {
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/auth/platform/refresh": writeJSON(map[string]any{
			"refresh_token": "rt-2",
			"access_token":  "pat-2",
			"expires_in":    600,
		}),
	}, func(cfg *Config) { cfg.RefreshPlatformViaLogin = false })

	account := core.Account{ID: "1", Email: "a@example.com", Password: "pw", PlatformRefreshToken: "rt-1"}
	pair, err := adapter.RefreshPlatform(context.Background(), account)
	if err != nil {
		t.Fatalf("refresh platform: %v", err)
	}
	if backend.last().Form["refresh_token"] != "rt-1" {
		t.Fatalf("unexpected form %v", backend.last().Form)
	}
	if pair.Primary != "rt-2" || pair.SessionKey != "" || !pair.CompanionExpiresAt.Equal(testNow.Add(10*time.Minute)) {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestFetchPlatformSessionKeyUnsupported(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil, nil)
	if _, err := adapter.FetchPlatformSessionKey(context.Background(), "pat"); !core.IsUnsupported(err) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRegisterShareToken(t *testing.T) {
	expireAt := testNow.Add(48 * time.Hour).Unix()
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/token/register": writeJSON(map[string]any{
			"token_key": "fk-1",
			"expire_at": expireAt,
		}),
	}, func(cfg *Config) { cfg.ShareTokenName = "team" })

	token, err := adapter.RegisterShareToken(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("register share token: %v", err)
	}
	form := backend.last().Form
	if form["unique_name"] != "team" || form["access_token"] != "at-1" || form["expires_in"] != "0" {
		t.Fatalf("unexpected form %v", form)
	}
	if form["show_conversations"] != "True" || form["show_userinfo"] != "True" {
		t.Fatalf("unexpected visibility flags %v", form)
	}
	if token.Key != "fk-1" || token.ExpiresAt.Unix() != expireAt {
		t.Fatalf("unexpected token %+v", token)
	}
}

func TestRegisterShareTokenRejectsPastExpiry(t *testing.T) {
	adapter, _ := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/token/register": writeJSON(map[string]any{
			"token_key": "fk-1",
			"expire_at": testNow.Unix(),
		}),
	}, nil)

	if _, err := adapter.RegisterShareToken(context.Background(), "at-1"); !core.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestAggregatePool(t *testing.T) {
	adapter, backend := newTestAdapter(t, map[string]func(http.ResponseWriter, *http.Request){
		"/proxy/api/pool/update": writeJSON(map[string]any{"pool_token": "pk-pool", "count": 3}),
	}, nil)

	handle, err := adapter.AggregatePool(context.Background(), []string{"fk-1", "fk-2", "fk-3"})
	if err != nil {
		t.Fatalf("aggregate pool: %v", err)
	}
	form := backend.last().Form
	if form["share_tokens"] != "fk-1\nfk-2\nfk-3" || form["pool_token"] != "pk-pool" {
		t.Fatalf("unexpected form %v", form)
	}
	if handle != "pk-pool" {
		t.Fatalf("unexpected handle %q", handle)
	}
}

func TestAggregatePoolBounds(t *testing.T) {
	adapter, backend := newTestAdapter(t, nil, nil)

	tooMany := make([]string, core.MaxPoolShareTokens+1)
	for i := range tooMany {
		tooMany[i] = "fk"
	}
	for _, tokens := range [][]string{nil, tooMany} {
		_, err := adapter.AggregatePool(context.Background(), tokens)
		if err == nil || !strings.Contains(err.Error(), "share tokens") {
			t.Fatalf("expected bad input error, got %v", err)
		}
	}
	if backend.last().Path != "" {
		t.Fatalf("no request expected, got %s", backend.last().Path)
	}
}
