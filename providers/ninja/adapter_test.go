package ninja

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-tokenpool/core"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type captured struct {
	path          string
	authorization string
	form          map[string]string
}

func newTestAdapter(t *testing.T, routes map[string]any) (*Adapter, *captured) {
	t.Helper()
	last := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		last.path = r.URL.Path
		last.authorization = r.Header.Get("Authorization")
		last.form = map[string]string{}
		for key := range r.PostForm {
			last.form[key] = r.PostForm.Get(key)
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)

	adapter, err := New(Config{
		BaseURL: server.URL,
		Doer:    server.Client(),
		Now:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter, last
}

func TestCapabilities(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	if adapter.ID() != "ninja" {
		t.Fatalf("unexpected id %q", adapter.ID())
	}
	if !adapter.Supports(core.CapabilitySessionKeyFetch) {
		t.Fatalf("expected session key fetch support")
	}
	for _, capability := range []core.Capability{core.CapabilityShareToken, core.CapabilityPoolAggregation, core.CapabilityEmbeddedSessionKey} {
		if adapter.Supports(capability) {
			t.Fatalf("unexpected support for %s", capability)
		}
	}
}

func TestObtainSessionParsesISOExpiry(t *testing.T) {
	adapter, last := newTestAdapter(t, map[string]any{
		"/auth/token": map[string]any{
			"session_token": "st-1",
			"accessToken":   "at-1",
			"expires":       "2024-04-09T09:43:51.862Z",
		},
	})

	pair, err := adapter.ObtainSession(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("obtain session: %v", err)
	}
	if last.form["username"] != "a@example.com" || last.form["password"] != "pw" {
		t.Fatalf("unexpected form %v", last.form)
	}
	if _, ok := last.form["option"]; ok {
		t.Fatalf("session login must not send option")
	}
	want := time.Date(2024, 4, 9, 9, 43, 51, 862000000, time.UTC)
	if !pair.PrimaryExpiresAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, pair.PrimaryExpiresAt)
	}
	if !pair.CompanionExpiresAt.Equal(testNow.Add(10 * 24 * time.Hour)) {
		t.Fatalf("unexpected access expiry %v", pair.CompanionExpiresAt)
	}
	if pair.Primary != "st-1" || pair.Companion != "at-1" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestObtainSessionBadExpiryIsProtocolError(t *testing.T) {
	adapter, _ := newTestAdapter(t, map[string]any{
		"/auth/token": map[string]any{
			"session_token": "st-1",
			"accessToken":   "at-1",
			"expires":       "soon",
		},
	})

	_, err := adapter.ObtainSession(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if !core.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestRefreshSessionUsesBearer(t *testing.T) {
	adapter, last := newTestAdapter(t, map[string]any{
		"/auth/refresh_session": map[string]any{
			"session_token": "st-2",
			"accessToken":   "at-2",
			"expires":       "2026-06-01T00:00:00Z",
		},
	})

	pair, err := adapter.RefreshSession(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("refresh session: %v", err)
	}
	if last.authorization != "Bearer st-1" {
		t.Fatalf("unexpected authorization %q", last.authorization)
	}
	if pair.Primary != "st-2" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestObtainPlatformSendsPlatformOption(t *testing.T) {
	adapter, last := newTestAdapter(t, map[string]any{
		"/auth/token": map[string]any{
			"refresh_token": "rt-1",
			"access_token":  "pat-1",
			"expires_in":    864000,
		},
	})

	pair, err := adapter.ObtainPlatform(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("obtain platform: %v", err)
	}
	if last.form["option"] != "platform" {
		t.Fatalf("expected option=platform, got %v", last.form)
	}
	if !pair.PrimaryExpiresAt.Equal(testNow.Add(10 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", pair.PrimaryExpiresAt)
	}
	if !pair.CompanionExpiresAt.Equal(testNow.Add(864000 * time.Second)) {
		t.Fatalf("unexpected access expiry %v", pair.CompanionExpiresAt)
	}
	if pair.SessionKey != "" {
		t.Fatalf("session key is fetched separately")
	}
}

func TestRefreshPlatformUsesRefreshTokenBearer(t *testing.T) {
	adapter, last := newTestAdapter(t, map[string]any{
		"/auth/refresh_token": map[string]any{
			"refresh_token": "rt-2",
			"access_token":  "pat-2",
			"expires_in":    60,
		},
	})

	pair, err := adapter.RefreshPlatform(context.Background(), core.Account{ID: "1", PlatformRefreshToken: "rt-1"})
	if err != nil {
		t.Fatalf("refresh platform: %v", err)
	}
	if last.authorization != "Bearer rt-1" {
		t.Fatalf("unexpected authorization %q", last.authorization)
	}
	if pair.Primary != "rt-2" || pair.Companion != "pat-2" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestFetchPlatformSessionKey(t *testing.T) {
	adapter, last := newTestAdapter(t, map[string]any{
		"/auth/sess_token": map[string]any{
			"user": map[string]any{
				"session": map[string]any{"sensitive_id": "sess-xyz"},
			},
		},
	})

	key, err := adapter.FetchPlatformSessionKey(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("fetch session key: %v", err)
	}
	if last.authorization != "Bearer pat-1" {
		t.Fatalf("unexpected authorization %q", last.authorization)
	}
	if key != "sess-xyz" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestFetchPlatformSessionKeyMissing(t *testing.T) {
	adapter, _ := newTestAdapter(t, map[string]any{
		"/auth/sess_token": map[string]any{"user": map[string]any{}},
	})
	if _, err := adapter.FetchPlatformSessionKey(context.Background(), "pat-1"); !core.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestUnauthorizedIsHardError(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	_, err := adapter.ObtainSession(context.Background(), core.Credentials{Email: "a@example.com", Password: "pw"})
	if !core.IsHardUpstream(err) || core.UpstreamStatus(err) != http.StatusNotFound {
		t.Fatalf("expected hard 404 error, got %v", err)
	}
}

func TestShareTokenAndPoolUnsupported(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	if _, err := adapter.RegisterShareToken(context.Background(), "at"); !core.IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := adapter.AggregatePool(context.Background(), []string{"fk"}); !core.IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
