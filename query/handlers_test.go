package query

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-tokenpool/core"
)

type stubStatsReader struct {
	statsFn func(context.Context, core.Track, time.Duration) (core.AccountStats, error)
}

func (s stubStatsReader) Stats(ctx context.Context, track core.Track, window time.Duration) (core.AccountStats, error) {
	return s.statsFn(ctx, track, window)
}

type stubPoolReader struct {
	getFn func(context.Context, string) (core.PoolHandle, error)
}

func (s stubPoolReader) GetPool(ctx context.Context, poolID string) (core.PoolHandle, error) {
	return s.getFn(ctx, poolID)
}

func TestAccountStatsQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubStatsReader{
		statsFn: func(_ context.Context, track core.Track, window time.Duration) (core.AccountStats, error) {
			called = true
			if track != core.TrackPlatform || window != time.Hour {
				t.Fatalf("unexpected stats request: %q %v", track, window)
			}
			return core.AccountStats{Track: track, Active: 7, Poolable: 3}, nil
		},
	}

	stats, err := NewAccountStatsQuery(reader).Query(context.Background(), AccountStatsMessage{
		Track:            core.TrackPlatform,
		NearExpiryWindow: time.Hour,
	})
	if err != nil {
		t.Fatalf("query stats: %v", err)
	}
	if !called {
		t.Fatalf("expected stats reader invocation")
	}
	if stats.Active != 7 || stats.Poolable != 3 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestGetPoolQuery_QueryDelegates(t *testing.T) {
	reader := stubPoolReader{
		getFn: func(_ context.Context, poolID string) (core.PoolHandle, error) {
			if poolID != "night" {
				t.Fatalf("unexpected pool id %q", poolID)
			}
			return core.PoolHandle{PoolID: poolID, Handle: "pk-night", ShareTokenCount: 12}, nil
		},
	}
	handle, err := NewGetPoolQuery(reader).Query(context.Background(), GetPoolMessage{PoolID: "night"})
	if err != nil {
		t.Fatalf("query pool: %v", err)
	}
	if handle.Handle != "pk-night" || handle.ShareTokenCount != 12 {
		t.Fatalf("unexpected handle: %#v", handle)
	}
}

func TestAccountStatsMessage_Validate(t *testing.T) {
	if err := (AccountStatsMessage{Track: core.TrackSession}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := (AccountStatsMessage{Track: "web"}).Validate(); err == nil {
		t.Fatalf("expected unknown track error")
	}
	if err := (AccountStatsMessage{Track: core.TrackSession, NearExpiryWindow: -time.Second}).Validate(); err == nil {
		t.Fatalf("expected negative window error")
	}
}
