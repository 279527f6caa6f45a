package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

func ptrTime(value time.Time) *time.Time {
	return &value
}

type stubAdapter struct {
	mu           sync.Mutex
	id           string
	capabilities map[Capability]bool
	calls        []string

	obtainSession    func(context.Context, Credentials) (TokenPair, error)
	refreshSession   func(context.Context, string) (TokenPair, error)
	obtainPlatform   func(context.Context, Credentials) (TokenPair, error)
	refreshPlatform  func(context.Context, Account) (TokenPair, error)
	fetchSessionKey  func(context.Context, string) (string, error)
	registerShare    func(context.Context, string) (ShareToken, error)
	aggregatePool    func(context.Context, []string) (string, error)
	aggregatedTokens [][]string
}

func newStubAdapter(id string, capabilities ...Capability) *stubAdapter {
	caps := make(map[Capability]bool, len(capabilities))
	for _, capability := range capabilities {
		caps[capability] = true
	}
	return &stubAdapter{id: id, capabilities: caps}
}

func (a *stubAdapter) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *stubAdapter) callCount(call string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, recorded := range a.calls {
		if recorded == call {
			count++
		}
	}
	return count
}

func (a *stubAdapter) ID() string { return a.id }

func (a *stubAdapter) Supports(capability Capability) bool { return a.capabilities[capability] }

func (a *stubAdapter) ObtainSession(ctx context.Context, creds Credentials) (TokenPair, error) {
	a.record("obtain_session:" + creds.Email)
	if a.obtainSession == nil {
		return TokenPair{}, errors.New("obtain session not stubbed")
	}
	return a.obtainSession(ctx, creds)
}

func (a *stubAdapter) RefreshSession(ctx context.Context, sessionToken string) (TokenPair, error) {
	a.record("refresh_session:" + sessionToken)
	if a.refreshSession == nil {
		return TokenPair{}, errors.New("refresh session not stubbed")
	}
	return a.refreshSession(ctx, sessionToken)
}

func (a *stubAdapter) ObtainPlatform(ctx context.Context, creds Credentials) (TokenPair, error) {
	a.record("obtain_platform:" + creds.Email)
	if a.obtainPlatform == nil {
		return TokenPair{}, errors.New("obtain platform not stubbed")
	}
	return a.obtainPlatform(ctx, creds)
}

func (a *stubAdapter) RefreshPlatform(ctx context.Context, account Account) (TokenPair, error) {
	a.record("refresh_platform:" + account.Email)
	if a.refreshPlatform == nil {
		return TokenPair{}, errors.New("refresh platform not stubbed")
	}
	return a.refreshPlatform(ctx, account)
}

func (a *stubAdapter) FetchPlatformSessionKey(ctx context.Context, accessToken string) (string, error) {
	a.record("fetch_session_key:" + accessToken)
	if a.fetchSessionKey == nil {
		return "", NewUnsupportedError(a.id, CapabilitySessionKeyFetch)
	}
	return a.fetchSessionKey(ctx, accessToken)
}

func (a *stubAdapter) RegisterShareToken(ctx context.Context, accessToken string) (ShareToken, error) {
	a.record("register_share_token:" + accessToken)
	if a.registerShare == nil {
		return ShareToken{}, NewUnsupportedError(a.id, CapabilityShareToken)
	}
	return a.registerShare(ctx, accessToken)
}

func (a *stubAdapter) AggregatePool(ctx context.Context, shareTokens []string) (string, error) {
	a.record("aggregate_pool")
	a.mu.Lock()
	a.aggregatedTokens = append(a.aggregatedTokens, append([]string(nil), shareTokens...))
	a.mu.Unlock()
	if a.aggregatePool == nil {
		return "", NewUnsupportedError(a.id, CapabilityPoolAggregation)
	}
	return a.aggregatePool(ctx, shareTokens)
}

// recordingSleeper captures backoff waits without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, delay)
	return nil
}

func noSleepPolicy() RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return policy
}

type capturedMetric struct {
	name  string
	value float64
	tags  map[string]string
}

type capturingMetrics struct {
	mu       sync.Mutex
	counters []capturedMetric
	observed []capturedMetric
}

func (m *capturingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedMetric{name: name, value: float64(value), tags: tags})
}

func (m *capturingMetrics) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, capturedMetric{name: name, value: value, tags: tags})
}

func (m *capturingMetrics) counterTotal(name string, tags map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, metric := range m.counters {
		if metric.name != name {
			continue
		}
		matched := true
		for key, value := range tags {
			if metric.tags[key] != value {
				matched = false
				break
			}
		}
		if matched {
			total += metric.value
		}
	}
	return total
}
