package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAccountStore keeps accounts in process. Candidate selection uses
// CandidateFilter.Matches and insertion order.
type MemoryAccountStore struct {
	mu       sync.Mutex
	order    []string
	accounts map[string]Account
	nowFn    func() time.Time
}

func NewMemoryAccountStore(accounts ...Account) *MemoryAccountStore {
	store := &MemoryAccountStore{
		accounts: make(map[string]Account),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, account := range accounts {
		store.put(account)
	}
	return store
}

func (s *MemoryAccountStore) put(account Account) {
	if strings.TrimSpace(account.ID) == "" {
		account.ID = uuid.NewString()
	}
	if _, exists := s.accounts[account.ID]; !exists {
		s.order = append(s.order, account.ID)
	}
	s.accounts[account.ID] = account
}

func (s *MemoryAccountStore) CountActive(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, account := range s.accounts {
		if account.Active {
			count++
		}
	}
	return count, nil
}

func (s *MemoryAccountStore) CountMatching(_ context.Context, filter CandidateFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, account := range s.accounts {
		if filter.Matches(account) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryAccountStore) ListCandidates(_ context.Context, filter CandidateFilter, limit int) ([]Account, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0)
	for _, id := range s.order {
		if limit != UnboundedBatch && len(out) >= limit {
			break
		}
		account := s.accounts[id]
		if filter.Matches(account) {
			out = append(out, account)
		}
	}
	return out, nil
}

func (s *MemoryAccountStore) SaveTokenPair(_ context.Context, accountID string, track Track, pair TokenPair, refreshedAt time.Time) error {
	if !track.Valid() {
		return NewBadInputError("core: unknown track %q", track)
	}
	if !pair.Complete() {
		return NewIncompletePairError(accountID, track)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return NewAccountNotFoundError(accountID)
	}
	primaryExpiresAt := pair.PrimaryExpiresAt.UTC()
	companionExpiresAt := pair.CompanionExpiresAt.UTC()
	refreshed := refreshedAt.UTC()
	switch track {
	case TrackSession:
		account.SessionToken = pair.Primary
		account.SessionTokenExpiresAt = &primaryExpiresAt
		account.SessionAccessToken = pair.Companion
		account.SessionAccessTokenExpiresAt = &companionExpiresAt
		account.SessionRefreshedAt = &refreshed
	case TrackPlatform:
		account.PlatformRefreshToken = pair.Primary
		account.PlatformRefreshTokenExpiresAt = &primaryExpiresAt
		account.PlatformAccessToken = pair.Companion
		account.PlatformAccessTokenExpiresAt = &companionExpiresAt
		account.PlatformRefreshedAt = &refreshed
		if strings.TrimSpace(pair.SessionKey) != "" {
			account.PlatformSessionKey = pair.SessionKey
		}
	}
	account.Active = true
	account.UpdatedAt = s.nowFn()
	s.accounts[accountID] = account
	return nil
}

func (s *MemoryAccountStore) SaveShareToken(_ context.Context, accountID string, token ShareToken) error {
	if strings.TrimSpace(token.Key) == "" || token.ExpiresAt.IsZero() {
		return NewBadInputError("core: share token and expiry are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return NewAccountNotFoundError(accountID)
	}
	expiresAt := token.ExpiresAt.UTC()
	account.ShareToken = token.Key
	account.ShareTokenExpiresAt = &expiresAt
	account.UpdatedAt = s.nowFn()
	s.accounts[accountID] = account
	return nil
}

func (s *MemoryAccountStore) SaveSessionKey(_ context.Context, accountID string, sessionKey string) error {
	if strings.TrimSpace(sessionKey) == "" {
		return NewBadInputError("core: session key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return NewAccountNotFoundError(accountID)
	}
	account.PlatformSessionKey = sessionKey
	account.UpdatedAt = s.nowFn()
	s.accounts[accountID] = account
	return nil
}

func (s *MemoryAccountStore) ListShareTokens(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		if account := s.accounts[id]; Poolable(account, now) {
			out = append(out, account.ShareToken)
		}
	}
	return out, nil
}

func (s *MemoryAccountStore) CreateAccount(_ context.Context, in NewAccountInput) (Account, error) {
	creds := Credentials{Email: in.Email, Password: in.Password}
	if err := creds.Validate(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.TrimSpace(in.Email)
	for _, account := range s.accounts {
		if strings.EqualFold(account.Email, email) {
			return Account{}, NewAccountExistsError(email)
		}
	}
	now := s.nowFn()
	account := Account{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  in.Password,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.put(account)
	return account, nil
}

func (s *MemoryAccountStore) Get(_ context.Context, accountID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return Account{}, NewAccountNotFoundError(accountID)
	}
	return account, nil
}

func (s *MemoryAccountStore) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if account := s.accounts[id]; strings.EqualFold(account.Email, strings.TrimSpace(email)) {
			return account, nil
		}
	}
	return Account{}, NewAccountNotFoundError(email)
}

// MemoryPoolStore keeps the latest handle per pool id.
type MemoryPoolStore struct {
	mu    sync.Mutex
	pools map[string]PoolHandle
}

func NewMemoryPoolStore() *MemoryPoolStore {
	return &MemoryPoolStore{pools: make(map[string]PoolHandle)}
}

func (s *MemoryPoolStore) SavePool(_ context.Context, handle PoolHandle) error {
	if strings.TrimSpace(handle.PoolID) == "" || strings.TrimSpace(handle.Handle) == "" {
		return NewBadInputError("core: pool id and handle are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[handle.PoolID] = handle
	return nil
}

func (s *MemoryPoolStore) GetPool(_ context.Context, poolID string) (PoolHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.pools[poolID]
	if !ok {
		return PoolHandle{}, NewPoolNotFoundError(poolID)
	}
	return handle, nil
}
