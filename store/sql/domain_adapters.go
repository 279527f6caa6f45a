package sqlstore

import (
	"time"

	"github.com/goliatone/go-tokenpool/core"
	"github.com/google/uuid"
)

func newAccountRecord(in core.NewAccountInput, now time.Time) *accountRecord {
	return &accountRecord{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(in.Email),
		Password:  in.Password,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *accountRecord) toDomain() core.Account {
	if r == nil {
		return core.Account{}
	}
	return core.Account{
		ID:       r.ID,
		Email:    r.Email,
		Password: r.Password,
		Active:   r.Active,

		SessionToken:                r.SessionToken,
		SessionTokenExpiresAt:       copyTime(r.SessionTokenExpiresAt),
		SessionAccessToken:          r.SessionAccessToken,
		SessionAccessTokenExpiresAt: copyTime(r.SessionAccessTokenExpiresAt),
		SessionRefreshedAt:          copyTime(r.SessionRefreshedAt),

		PlatformRefreshToken:          r.PlatformRefreshToken,
		PlatformRefreshTokenExpiresAt: copyTime(r.PlatformRefreshTokenExpiresAt),
		PlatformAccessToken:           r.PlatformAccessToken,
		PlatformAccessTokenExpiresAt:  copyTime(r.PlatformAccessTokenExpiresAt),
		PlatformSessionKey:            r.PlatformSessionKey,
		PlatformRefreshedAt:           copyTime(r.PlatformRefreshedAt),

		ShareToken:          r.ShareToken,
		ShareTokenExpiresAt: copyTime(r.ShareTokenExpiresAt),

		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newPoolRecord(handle core.PoolHandle, now time.Time) *poolRecord {
	return &poolRecord{
		ID:              uuid.NewString(),
		PoolID:          handle.PoolID,
		Handle:          handle.Handle,
		ShareTokenCount: handle.ShareTokenCount,
		AssembledAt:     handle.AssembledAt.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *poolRecord) toDomain() core.PoolHandle {
	if r == nil {
		return core.PoolHandle{}
	}
	return core.PoolHandle{
		PoolID:          r.PoolID,
		Handle:          r.Handle,
		ShareTokenCount: r.ShareTokenCount,
		AssembledAt:     r.AssembledAt.UTC(),
	}
}

func copyTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}
