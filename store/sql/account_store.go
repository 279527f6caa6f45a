package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tokenpool/core"
	"github.com/uptrace/bun"
)

// AccountStore is the bun backed core.AccountStore. Candidate queries select
// the same rows core.CandidateFilter.Matches accepts.
type AccountStore struct {
	db    *bun.DB
	repo  repository.Repository[*accountRecord]
	nowFn func() time.Time
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*accountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	return &AccountStore{
		db:    db,
		repo:  repo,
		nowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AccountStore) CountActive(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.db.NewSelect().
		Model((*accountRecord)(nil)).
		Where("?TableAlias.active = ?", true).
		Count(ctx)
}

func (s *AccountStore) CountMatching(ctx context.Context, filter core.CandidateFilter) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: account store is not configured")
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	return s.db.NewSelect().
		Model((*accountRecord)(nil)).
		Apply(candidateQuery(filter)).
		Count(ctx)
}

func (s *AccountStore) ListCandidates(ctx context.Context, filter core.CandidateFilter, limit int) ([]core.Account, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []core.Account{}, nil
	}
	if limit < 0 && limit != core.UnboundedBatch {
		return nil, core.NewBadInputError("sqlstore: invalid candidate limit %d", limit)
	}

	selectors := []repository.SelectCriteria{
		repository.SelectRawProcessor(candidateQuery(filter)),
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("id ASC"),
	}
	if limit != core.UnboundedBatch {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	return toAccounts(records), nil
}

// candidateQuery mirrors core.CandidateFilter.Matches. An expiry equal to now
// matches neither mode.
func candidateQuery(filter core.CandidateFilter) func(*bun.SelectQuery) *bun.SelectQuery {
	now := filter.Now.UTC()
	if filter.Now.IsZero() {
		now = time.Now().UTC()
	}
	primary, primaryExpiresAt := primaryColumns(filter.Track)
	companionExpiresAt := companionExpiryColumn(filter.Track)
	artifact := artifactColumn(filter.Track)

	return func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("?TableAlias.active = ?", true)
		switch filter.Mode {
		case core.ModeObtain:
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.
					Where("TRIM(?TableAlias.?) = ''", bun.Ident(primary)).
					WhereOr("?TableAlias.? IS NULL", bun.Ident(primaryExpiresAt)).
					WhereOr("?TableAlias.? < ?", bun.Ident(primaryExpiresAt), now)
			})
		case core.ModeRefresh:
			q = q.
				Where("TRIM(?TableAlias.?) <> ''", bun.Ident(primary)).
				Where("?TableAlias.? IS NOT NULL", bun.Ident(primaryExpiresAt)).
				Where("?TableAlias.? > ?", bun.Ident(primaryExpiresAt), now).
				WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.
						Where("?TableAlias.? IS NULL", bun.Ident(companionExpiresAt)).
						WhereOr("?TableAlias.? <= ?", bun.Ident(companionExpiresAt), now.Add(filter.NearExpiryWindow))
				})
			if filter.EmptyArtifactOnly {
				q = q.Where("TRIM(?TableAlias.?) = ''", bun.Ident(artifact))
			}
			return q
		default:
			return q.Where("1 = 0")
		}
	}
}

func primaryColumns(track core.Track) (string, string) {
	if track == core.TrackPlatform {
		return "platform_refresh_token", "platform_refresh_token_expires_at"
	}
	return "session_token", "session_token_expires_at"
}

func companionExpiryColumn(track core.Track) string {
	if track == core.TrackPlatform {
		return "platform_access_token_expires_at"
	}
	return "session_access_token_expires_at"
}

func artifactColumn(track core.Track) string {
	if track == core.TrackPlatform {
		return "platform_session_key"
	}
	return "share_token"
}

// SaveTokenPair writes both halves of the pair, their expiries, the refreshed
// timestamp and the active flag in one transaction.
func (s *AccountStore) SaveTokenPair(ctx context.Context, accountID string, track core.Track, pair core.TokenPair, refreshedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	if !track.Valid() {
		return core.NewBadInputError("sqlstore: unknown track %q", track)
	}
	if !pair.Complete() {
		return core.NewIncompletePairError(accountID, track)
	}
	accountID = strings.TrimSpace(accountID)
	now := s.nowFn()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		update := tx.NewUpdate().Model((*accountRecord)(nil))
		switch track {
		case core.TrackSession:
			update = update.
				Set("session_token = ?", pair.Primary).
				Set("session_token_expires_at = ?", pair.PrimaryExpiresAt.UTC()).
				Set("session_access_token = ?", pair.Companion).
				Set("session_access_token_expires_at = ?", pair.CompanionExpiresAt.UTC()).
				Set("session_refreshed_at = ?", refreshedAt.UTC())
		case core.TrackPlatform:
			update = update.
				Set("platform_refresh_token = ?", pair.Primary).
				Set("platform_refresh_token_expires_at = ?", pair.PrimaryExpiresAt.UTC()).
				Set("platform_access_token = ?", pair.Companion).
				Set("platform_access_token_expires_at = ?", pair.CompanionExpiresAt.UTC()).
				Set("platform_refreshed_at = ?", refreshedAt.UTC())
			if strings.TrimSpace(pair.SessionKey) != "" {
				update = update.Set("platform_session_key = ?", pair.SessionKey)
			}
		}
		res, err := update.
			Set("active = ?", true).
			Set("updated_at = ?", now).
			Where("id = ?", accountID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffected(res, accountID)
	})
}

func (s *AccountStore) SaveShareToken(ctx context.Context, accountID string, token core.ShareToken) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	if strings.TrimSpace(token.Key) == "" || token.ExpiresAt.IsZero() {
		return core.NewBadInputError("sqlstore: share token and expiry are required")
	}
	accountID = strings.TrimSpace(accountID)
	now := s.nowFn()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*accountRecord)(nil)).
			Set("share_token = ?", token.Key).
			Set("share_token_expires_at = ?", token.ExpiresAt.UTC()).
			Set("updated_at = ?", now).
			Where("id = ?", accountID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffected(res, accountID)
	})
}

func (s *AccountStore) SaveSessionKey(ctx context.Context, accountID string, sessionKey string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	if strings.TrimSpace(sessionKey) == "" {
		return core.NewBadInputError("sqlstore: session key is required")
	}
	accountID = strings.TrimSpace(accountID)
	now := s.nowFn()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*accountRecord)(nil)).
			Set("platform_session_key = ?", sessionKey).
			Set("updated_at = ?", now).
			Where("id = ?", accountID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffected(res, accountID)
	})
}

func (s *AccountStore) ListShareTokens(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if now.IsZero() {
		now = s.nowFn()
	}
	now = now.UTC()
	selectors := []repository.SelectCriteria{
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.active = ?", true).
				Where("TRIM(?TableAlias.share_token) <> ''").
				WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.
						Where("?TableAlias.share_token_expires_at IS NULL").
						WhereOr("?TableAlias.share_token_expires_at > ?", now)
				})
		}),
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("id ASC"),
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.ShareToken)
	}
	return out, nil
}

// CreateAccount inserts an active account with empty tracks. Emails are unique
// regardless of case.
func (s *AccountStore) CreateAccount(ctx context.Context, in core.NewAccountInput) (core.Account, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	creds := core.Credentials{Email: in.Email, Password: in.Password}
	if err := creds.Validate(); err != nil {
		return core.Account{}, err
	}
	now := s.nowFn()

	var created core.Account
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*accountRecord)(nil)).
			Where("?TableAlias.email = ?", normalizeEmail(in.Email)).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return core.NewAccountExistsError(normalizeEmail(in.Email))
		}
		inserted, err := s.repo.CreateTx(ctx, tx, newAccountRecord(in, now))
		if err != nil {
			return err
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.Account{}, err
	}
	return created, nil
}

func (s *AccountStore) Get(ctx context.Context, accountID string) (core.Account, error) {
	if s == nil || s.repo == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.findOne(ctx, accountID, repository.SelectBy("id", "=", strings.TrimSpace(accountID)))
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (core.Account, error) {
	if s == nil || s.repo == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.findOne(ctx, email, repository.SelectBy("email", "=", normalizeEmail(email)))
}

func (s *AccountStore) findOne(ctx context.Context, key string, criteria repository.SelectCriteria) (core.Account, error) {
	records, _, err := s.repo.List(ctx, criteria, repository.SelectPaginate(1, 0))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, core.NewAccountNotFoundError(key)
		}
		return core.Account{}, err
	}
	if len(records) == 0 {
		return core.Account{}, core.NewAccountNotFoundError(key)
	}
	return records[0].toDomain(), nil
}

func requireAffected(res sql.Result, accountID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewAccountNotFoundError(accountID)
	}
	return nil
}

func toAccounts(records []*accountRecord) []core.Account {
	out := make([]core.Account, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
