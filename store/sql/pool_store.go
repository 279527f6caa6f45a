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

// PoolStore keeps one row per pool id; a successful assembly replaces it.
type PoolStore struct {
	db    *bun.DB
	repo  repository.Repository[*poolRecord]
	nowFn func() time.Time
}

func NewPoolStore(db *bun.DB) (*PoolStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*poolRecord](db, poolHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pool repository wiring: %w", err)
		}
	}
	return &PoolStore{
		db:    db,
		repo:  repo,
		nowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *PoolStore) SavePool(ctx context.Context, handle core.PoolHandle) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: pool store is not configured")
	}
	handle.PoolID = strings.TrimSpace(handle.PoolID)
	if handle.PoolID == "" || strings.TrimSpace(handle.Handle) == "" {
		return core.NewBadInputError("sqlstore: pool id and handle are required")
	}
	now := s.nowFn()
	if handle.AssembledAt.IsZero() {
		handle.AssembledAt = now
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &poolRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.pool_id = ?", handle.PoolID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if errors.Is(err, sql.ErrNoRows) {
			_, createErr := s.repo.CreateTx(ctx, tx, newPoolRecord(handle, now))
			return createErr
		}
		record.Handle = handle.Handle
		record.ShareTokenCount = handle.ShareTokenCount
		record.AssembledAt = handle.AssembledAt.UTC()
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *PoolStore) GetPool(ctx context.Context, poolID string) (core.PoolHandle, error) {
	if s == nil || s.repo == nil {
		return core.PoolHandle{}, fmt.Errorf("sqlstore: pool store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("pool_id", "=", strings.TrimSpace(poolID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.PoolHandle{}, err
	}
	if len(records) == 0 {
		return core.PoolHandle{}, core.NewPoolNotFoundError(poolID)
	}
	return records[0].toDomain(), nil
}
