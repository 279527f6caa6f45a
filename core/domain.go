package core

import (
	"strings"
	"time"
)

// Track identifies one of the two independent token tracks kept per account.
type Track string

const (
	TrackSession  Track = "session"
	TrackPlatform Track = "platform"
)

// ParseTrack accepts the track names used by operators, including the legacy "web" alias.
func ParseTrack(value string) (Track, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "session", "web":
		return TrackSession, nil
	case "platform":
		return TrackPlatform, nil
	default:
		return "", NewBadInputError("core: unknown track %q, expected session or platform", value)
	}
}

func (t Track) Valid() bool {
	return t == TrackSession || t == TrackPlatform
}

// Mode selects which transition the scheduler drives for a batch.
type Mode string

const (
	ModeObtain  Mode = "obtain"
	ModeRefresh Mode = "refresh"
)

func (m Mode) Valid() bool {
	return m == ModeObtain || m == ModeRefresh
}

// TrackState is the lifecycle state of one track of one account.
type TrackState string

const (
	TrackStateAbsent     TrackState = "absent"
	TrackStateValid      TrackState = "valid"
	TrackStateNearExpiry TrackState = "near_expiry"
	TrackStateExpired    TrackState = "expired"
)

// UnboundedBatch disables the per-run candidate limit.
const UnboundedBatch = -1

// MaxPoolShareTokens is the aggregation endpoint's hard limit.
const MaxPoolShareTokens = 100

type Account struct {
	ID       string
	Email    string
	Password string
	Active   bool

	SessionToken                string
	SessionTokenExpiresAt       *time.Time
	SessionAccessToken          string
	SessionAccessTokenExpiresAt *time.Time
	SessionRefreshedAt          *time.Time

	PlatformRefreshToken          string
	PlatformRefreshTokenExpiresAt *time.Time
	PlatformAccessToken           string
	PlatformAccessTokenExpiresAt  *time.Time
	PlatformSessionKey            string
	PlatformRefreshedAt           *time.Time

	ShareToken          string
	ShareTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials returns the stored login pair used by obtain operations.
func (a Account) Credentials() Credentials {
	return Credentials{Email: a.Email, Password: a.Password}
}

// Primary returns the long-lived token of a track and its expiry.
func (a Account) Primary(track Track) (string, *time.Time) {
	if track == TrackPlatform {
		return a.PlatformRefreshToken, a.PlatformRefreshTokenExpiresAt
	}
	return a.SessionToken, a.SessionTokenExpiresAt
}

// Companion returns the short-lived access token of a track and its expiry.
func (a Account) Companion(track Track) (string, *time.Time) {
	if track == TrackPlatform {
		return a.PlatformAccessToken, a.PlatformAccessTokenExpiresAt
	}
	return a.SessionAccessToken, a.SessionAccessTokenExpiresAt
}

// Artifact returns the derived value produced after a successful transition:
// the share token for the session track and the session key for the platform track.
func (a Account) Artifact(track Track) string {
	if track == TrackPlatform {
		return a.PlatformSessionKey
	}
	return a.ShareToken
}

type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return NewBadInputError("core: account email is required")
	}
	if c.Password == "" {
		return NewBadInputError("core: account password is required")
	}
	return nil
}

// TokenPair is the typed result of every obtain/refresh exchange. Primary is the
// session token or platform refresh token, Companion the matching access token.
type TokenPair struct {
	Primary            string
	Companion          string
	PrimaryExpiresAt   time.Time
	CompanionExpiresAt time.Time
	// SessionKey is only set by backends that embed it in the platform login.
	SessionKey string
}

// Complete reports whether both halves of the pair and both expiries are present.
func (p TokenPair) Complete() bool {
	return strings.TrimSpace(p.Primary) != "" &&
		strings.TrimSpace(p.Companion) != "" &&
		!p.PrimaryExpiresAt.IsZero() &&
		!p.CompanionExpiresAt.IsZero()
}

type ShareToken struct {
	Key       string
	ExpiresAt time.Time
}

type PoolHandle struct {
	PoolID          string
	Handle          string
	ShareTokenCount int
	AssembledAt     time.Time
}

type NewAccountInput struct {
	Email    string
	Password string
}
