package core

import (
	"strings"
	"time"
)

const DefaultNearExpiryWindow = 5 * 24 * time.Hour

// ResolveTrackState classifies one track of an account at now. The primary
// token decides absent and expired; a live primary whose companion expires
// within window (or has no recorded expiry) is near expiry.
func ResolveTrackState(account Account, track Track, now time.Time, window time.Duration) TrackState {
	now = normalizeNow(now)
	primary, primaryExpiresAt := account.Primary(track)
	if strings.TrimSpace(primary) == "" || primaryExpiresAt == nil {
		return TrackStateAbsent
	}
	if !primaryExpiresAt.After(now) {
		return TrackStateExpired
	}
	_, companionExpiresAt := account.Companion(track)
	if companionExpiresAt == nil || !companionExpiresAt.After(now.Add(window)) {
		return TrackStateNearExpiry
	}
	return TrackStateValid
}

func (f CandidateFilter) Validate() error {
	if !f.Mode.Valid() {
		return NewBadInputError("core: unknown mode %q", f.Mode)
	}
	if !f.Track.Valid() {
		return NewBadInputError("core: unknown track %q", f.Track)
	}
	if f.NearExpiryWindow < 0 {
		return NewBadInputError("core: near expiry window must not be negative")
	}
	return nil
}

// Matches is the in-process form of the candidate predicate. Store
// implementations must select exactly the accounts Matches accepts.
func (f CandidateFilter) Matches(account Account) bool {
	if !account.Active {
		return false
	}
	now := normalizeNow(f.Now)
	primary, primaryExpiresAt := account.Primary(f.Track)
	hasPrimary := strings.TrimSpace(primary) != ""

	switch f.Mode {
	case ModeObtain:
		return !hasPrimary || primaryExpiresAt == nil || primaryExpiresAt.Before(now)
	case ModeRefresh:
		if !hasPrimary || primaryExpiresAt == nil || !primaryExpiresAt.After(now) {
			return false
		}
		_, companionExpiresAt := account.Companion(f.Track)
		if companionExpiresAt != nil && companionExpiresAt.After(now.Add(f.NearExpiryWindow)) {
			return false
		}
		if f.EmptyArtifactOnly && strings.TrimSpace(account.Artifact(f.Track)) != "" {
			return false
		}
		return true
	default:
		return false
	}
}

// Poolable reports whether the account contributes a share token to the pool
// at now.
func Poolable(account Account, now time.Time) bool {
	if !account.Active || strings.TrimSpace(account.ShareToken) == "" {
		return false
	}
	return account.ShareTokenExpiresAt == nil || account.ShareTokenExpiresAt.After(normalizeNow(now))
}

func normalizeNow(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now.UTC()
}
