package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-tokenpool/adapters/gocommand"
	poolcommand "github.com/goliatone/go-tokenpool/command"
	"github.com/goliatone/go-tokenpool/core"
	poolquery "github.com/goliatone/go-tokenpool/query"
)

type ObtainCmd struct {
	Backend string `help:"Override the configured backend (pandora or ninja)."`
	Track   string `default:"session" enum:"session,platform" help:"Token track to obtain."`
	Count   int    `default:"0" help:"Accounts to process, -1 for all. 0 uses lifecycle.obtain_batch."`
}

func (c *ObtainCmd) Run(globals *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, globals, appOptions{backend: true, flags: backendFlag(c.Backend)})
	if err != nil {
		return err
	}
	defer a.Close()

	limit := c.Count
	if limit == 0 {
		limit = a.cfg.Lifecycle.ObtainBatch
	}
	report, err := a.obtain(ctx, core.Track(c.Track), limit)
	if err != nil {
		return err
	}
	a.printRunReport(report)
	return nil
}

type RefreshCmd struct {
	Backend   string `help:"Override the configured backend (pandora or ninja)."`
	Track     string `default:"session" enum:"session,platform" help:"Token track to refresh."`
	Count     int    `default:"0" help:"Accounts to process, -1 for all. 0 uses lifecycle.refresh_batch."`
	Remaining int    `default:"-1" help:"Refresh when the companion token expires within this many days. 0 refreshes only lapsed companions. -1 uses lifecycle.near_expiry_days."`
	EmptyOnly bool   `name:"empty-only" help:"Only refresh accounts that have no derived artifact yet."`
}

func (c *RefreshCmd) Run(globals *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, globals, appOptions{backend: true, flags: backendFlag(c.Backend)})
	if err != nil {
		return err
	}
	defer a.Close()

	limit := c.Count
	if limit == 0 {
		limit = a.cfg.Lifecycle.RefreshBatch
	}
	window := a.cfg.NearExpiryWindow()
	if c.Remaining >= 0 {
		window = days(c.Remaining)
	}
	report, err := a.refresh(ctx, core.RefreshRequest{
		Track:             core.Track(c.Track),
		Limit:             limit,
		NearExpiryWindow:  window,
		EmptyArtifactOnly: c.EmptyOnly,
	})
	if err != nil {
		return err
	}
	a.printRunReport(report)
	return nil
}

type AssembleCmd struct {
	Backend string `help:"Override the configured backend. Only pandora aggregates pools."`
	Count   int    `default:"0" help:"Share tokens to aggregate, capped at 100. 0 uses pool.size."`
	PoolID  string `name:"pool-id" help:"Stored pool id. Defaults to pool.id."`
}

func (c *AssembleCmd) Run(globals *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, globals, appOptions{backend: true, flags: backendFlag(c.Backend)})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.assemble(ctx, c.Count, c.PoolID)
	if err != nil {
		return err
	}
	a.printAssembleReport(report)
	return nil
}

type StatsCmd struct {
	Backend   string `help:"Override the configured backend (pandora or ninja)."`
	Track     string `default:"session" enum:"session,platform" help:"Token track to inspect."`
	Remaining int    `default:"-1" help:"Near-expiry window in days. -1 uses lifecycle.near_expiry_days."`
}

func (c *StatsCmd) Run(globals *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, globals, appOptions{backend: true, flags: backendFlag(c.Backend)})
	if err != nil {
		return err
	}
	defer a.Close()

	window := a.cfg.NearExpiryWindow()
	if c.Remaining >= 0 {
		window = days(c.Remaining)
	}
	stats, err := gocommand.Query[poolquery.AccountStatsMessage, core.AccountStats](ctx, poolquery.AccountStatsMessage{
		Track:            core.Track(c.Track),
		NearExpiryWindow: window,
	})
	if err != nil {
		return err
	}
	a.printf("track=%s active=%d obtain_eligible=%d refresh_eligible=%d poolable=%d\n",
		stats.Track, stats.Active, stats.ObtainEligible, stats.RefreshEligible, stats.Poolable)

	handle, err := gocommand.Query[poolquery.GetPoolMessage, core.PoolHandle](ctx, poolquery.GetPoolMessage{PoolID: a.cfg.Pool.ID})
	switch {
	case err == nil:
		a.printf("pool=%s share_tokens=%d assembled_at=%s\n",
			handle.PoolID, handle.ShareTokenCount, handle.AssembledAt.Format("2006-01-02 15:04:05"))
	case core.IsPoolNotFound(err):
		a.printf("pool=%s not assembled yet\n", a.cfg.Pool.ID)
	default:
		return err
	}
	return nil
}

type ImportCmd struct {
	Backend string `help:"Override the configured backend (pandora or ninja)."`
	File    string `required:"" type:"existingfile" help:"CSV file with email,password rows. A header row is optional."`
}

func (c *ImportCmd) Run(globals *Globals) error {
	ctx := context.Background()
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	inputs, err := readAccountsCSV(f)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, globals, appOptions{backend: true, flags: backendFlag(c.Backend)})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := gocommand.DispatchResult[poolcommand.ImportAccountsMessage, core.ImportReport](ctx, poolcommand.ImportAccountsMessage{
		Accounts: inputs,
	})
	if err != nil {
		return err
	}
	a.printf("received=%d created=%d skipped=%d failed=%d\n", report.Received, report.Created, report.Skipped, report.Failed)
	for _, failure := range report.Failures {
		a.printf("  %s: %s\n", failure.Email, failure.Reason)
	}
	return nil
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(globals *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, globals, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	a.printf("migrations applied (%s)\n", sqlDriverName(a.cfg.Database.Driver))
	return nil
}

func (a *app) obtain(ctx context.Context, track core.Track, limit int) (core.RunReport, error) {
	return gocommand.DispatchResult[poolcommand.ObtainMessage, core.RunReport](ctx, poolcommand.ObtainMessage{
		Request: core.ObtainRequest{Track: track, Limit: limit},
	})
}

func (a *app) refresh(ctx context.Context, req core.RefreshRequest) (core.RunReport, error) {
	return gocommand.DispatchResult[poolcommand.RefreshMessage, core.RunReport](ctx, poolcommand.RefreshMessage{Request: req})
}

func (a *app) assemble(ctx context.Context, count int, poolID string) (core.AssembleReport, error) {
	if count == 0 {
		count = a.cfg.Pool.Size
	}
	if strings.TrimSpace(poolID) == "" {
		poolID = a.cfg.Pool.ID
	}
	return gocommand.DispatchResult[poolcommand.AssembleMessage, core.AssembleReport](ctx, poolcommand.AssembleMessage{
		Request: core.AssembleRequest{Count: count, PoolID: poolID},
	})
}

func (a *app) printRunReport(report core.RunReport) {
	a.printf("%s %s: active=%d matching=%d selected=%d succeeded=%d failed=%d skipped=%d derived_failed=%d duration=%s\n",
		report.Mode, report.Track, report.TotalActive, report.Matching, report.Selected,
		report.Succeeded, report.Failed, report.Skipped, report.DerivedFailed, report.Duration.Round(time.Millisecond))
	for _, failure := range report.Failures {
		a.printf("  %s [%s/%s]: %s\n", failure.Email, failure.Stage, failure.Kind, failure.Reason)
	}
}

func (a *app) printAssembleReport(report core.AssembleReport) {
	if !report.Submitted {
		a.printf("pool=%s requested=%d clamped=%t selected=%d: nothing submitted\n",
			report.PoolID, report.Requested, report.Clamped, report.Selected)
		return
	}
	a.printf("pool=%s requested=%d clamped=%t selected=%d handle=%s\n",
		report.PoolID, report.Requested, report.Clamped, report.Selected, report.Handle.Handle)
}

func backendFlag(backend string) map[string]any {
	backend = strings.TrimSpace(backend)
	if backend == "" {
		return nil
	}
	return map[string]any{"backend": backend}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
