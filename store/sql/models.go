package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:tokenpool_accounts,alias:ta"`

	ID       string `bun:"id,pk"`
	Email    string `bun:"email,notnull"`
	Password string `bun:"password,notnull"`
	Active   bool   `bun:"active,notnull"`

	SessionToken                string     `bun:"session_token,notnull"`
	SessionTokenExpiresAt       *time.Time `bun:"session_token_expires_at,nullzero"`
	SessionAccessToken          string     `bun:"session_access_token,notnull"`
	SessionAccessTokenExpiresAt *time.Time `bun:"session_access_token_expires_at,nullzero"`
	SessionRefreshedAt          *time.Time `bun:"session_refreshed_at,nullzero"`

	PlatformRefreshToken          string     `bun:"platform_refresh_token,notnull"`
	PlatformRefreshTokenExpiresAt *time.Time `bun:"platform_refresh_token_expires_at,nullzero"`
	PlatformAccessToken           string     `bun:"platform_access_token,notnull"`
	PlatformAccessTokenExpiresAt  *time.Time `bun:"platform_access_token_expires_at,nullzero"`
	PlatformSessionKey            string     `bun:"platform_session_key,notnull"`
	PlatformRefreshedAt           *time.Time `bun:"platform_refreshed_at,nullzero"`

	ShareToken          string     `bun:"share_token,notnull"`
	ShareTokenExpiresAt *time.Time `bun:"share_token_expires_at,nullzero"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type poolRecord struct {
	bun.BaseModel `bun:"table:tokenpool_pools,alias:tp"`

	ID              string    `bun:"id,pk"`
	PoolID          string    `bun:"pool_id,notnull"`
	Handle          string    `bun:"handle,notnull"`
	ShareTokenCount int       `bun:"share_token_count,notnull"`
	AssembledAt     time.Time `bun:"assembled_at,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
