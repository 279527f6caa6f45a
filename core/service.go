package core

import (
	"context"
	"strings"
	"time"
)

type ServiceDependencies struct {
	Adapter  BackendAdapter
	Accounts AccountStore
	// Pools defaults to an in-memory store.
	Pools PoolStore
}

type ObtainRequest struct {
	Track Track
	Limit int
}

// RefreshRequest selects accounts whose primary token is live and whose
// companion expires within NearExpiryWindow. A zero window selects only
// companions that are already at or past expiry.
type RefreshRequest struct {
	Track             Track
	Limit             int
	NearExpiryWindow  time.Duration
	EmptyArtifactOnly bool
}

type ImportReport struct {
	Received int
	Created  int
	Skipped  int
	Failed   int
	Failures []AccountFailure
}

type AccountStats struct {
	Track           Track
	Active          int
	ObtainEligible  int
	RefreshEligible int
	Poolable        int
	At              time.Time
}

// Service is the operator entry point: lifecycle runs, pool assembly, the
// registrar hand-off and read-only stats over one backend and one store.
type Service struct {
	adapter   BackendAdapter
	accounts  AccountStore
	pools     PoolStore
	scheduler *LifecycleScheduler
	assembler *PoolAssembler
	now       func() time.Time
	telemetry telemetry
}

func NewService(deps ServiceDependencies, opts ...Option) (*Service, error) {
	if deps.Pools == nil {
		deps.Pools = NewMemoryPoolStore()
	}
	scheduler, err := NewLifecycleScheduler(deps.Adapter, deps.Accounts, opts...)
	if err != nil {
		return nil, err
	}
	assembler, err := NewPoolAssembler(deps.Adapter, deps.Accounts, deps.Pools, opts...)
	if err != nil {
		return nil, err
	}
	runtime := buildRuntime("tokenpool.service", opts)
	return &Service{
		adapter:   deps.Adapter,
		accounts:  deps.Accounts,
		pools:     deps.Pools,
		scheduler: scheduler,
		assembler: assembler,
		now:       runtime.now,
		telemetry: telemetry{
			logger:  runtime.logger,
			metrics: runtime.metricsRecorder,
		},
	}, nil
}

func (s *Service) Backend() string {
	if s == nil || s.adapter == nil {
		return ""
	}
	return s.adapter.ID()
}

func (s *Service) Obtain(ctx context.Context, req ObtainRequest) (RunReport, error) {
	if s == nil || s.scheduler == nil {
		return RunReport{}, NewConfigurationError("core: service is not configured")
	}
	return s.scheduler.Run(ctx, RunRequest{
		Mode:  ModeObtain,
		Track: req.Track,
		Limit: req.Limit,
	})
}

func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (RunReport, error) {
	if s == nil || s.scheduler == nil {
		return RunReport{}, NewConfigurationError("core: service is not configured")
	}
	return s.scheduler.Run(ctx, RunRequest{
		Mode:              ModeRefresh,
		Track:             req.Track,
		Limit:             req.Limit,
		NearExpiryWindow:  req.NearExpiryWindow,
		EmptyArtifactOnly: req.EmptyArtifactOnly,
	})
}

func (s *Service) Assemble(ctx context.Context, req AssembleRequest) (AssembleReport, error) {
	if s == nil || s.assembler == nil {
		return AssembleReport{}, NewConfigurationError("core: service is not configured")
	}
	return s.assembler.Assemble(ctx, req)
}

func (s *Service) GetPool(ctx context.Context, poolID string) (PoolHandle, error) {
	if s == nil || s.pools == nil {
		return PoolHandle{}, NewConfigurationError("core: service is not configured")
	}
	poolID = strings.TrimSpace(poolID)
	if poolID == "" {
		poolID = DefaultPoolID
	}
	return s.pools.GetPool(ctx, poolID)
}

// ImportAccounts hands registered accounts over to the store as active
// accounts with empty tracks. Existing emails are skipped.
func (s *Service) ImportAccounts(ctx context.Context, inputs []NewAccountInput) (ImportReport, error) {
	report := ImportReport{Received: len(inputs)}
	if s == nil || s.accounts == nil {
		return report, NewConfigurationError("core: service is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		email := strings.TrimSpace(in.Email)
		fields := map[string]any{"email": email}
		account, err := s.accounts.CreateAccount(ctx, in)
		switch {
		case err == nil:
			report.Created++
			fields["account_id"] = account.ID
			s.telemetry.logDebug(ctx, "account imported", fields)
		case IsAccountExists(err):
			report.Skipped++
			s.telemetry.logDebug(ctx, "account already registered, skipping", fields)
		default:
			report.Failed++
			report.Failures = append(report.Failures, AccountFailure{
				Email:  email,
				Stage:  StageCredentials,
				Kind:   FailureKind(err),
				Reason: errorString(err),
			})
			fields["reason"] = errorString(err)
			s.telemetry.logWarn(ctx, "account import failed", fields)
		}
	}
	s.telemetry.logInfo(ctx, "account import finished", map[string]any{
		"received": report.Received,
		"created":  report.Created,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
	})
	return report, nil
}

// Stats counts the accounts each operation would currently select for track.
func (s *Service) Stats(ctx context.Context, track Track, window time.Duration) (AccountStats, error) {
	if s == nil || s.accounts == nil {
		return AccountStats{}, NewConfigurationError("core: service is not configured")
	}
	if !track.Valid() {
		return AccountStats{}, NewBadInputError("core: unknown track %q, expected session or platform", track)
	}
	if window < 0 {
		return AccountStats{}, NewBadInputError("core: near expiry window must not be negative")
	}
	now := s.now().UTC()
	stats := AccountStats{Track: track, At: now}

	var err error
	if stats.Active, err = s.accounts.CountActive(ctx); err != nil {
		return stats, err
	}
	if stats.ObtainEligible, err = s.accounts.CountMatching(ctx, CandidateFilter{
		Mode:  ModeObtain,
		Track: track,
		Now:   now,
	}); err != nil {
		return stats, err
	}
	if stats.RefreshEligible, err = s.accounts.CountMatching(ctx, CandidateFilter{
		Mode:             ModeRefresh,
		Track:            track,
		Now:              now,
		NearExpiryWindow: window,
	}); err != nil {
		return stats, err
	}
	tokens, err := s.accounts.ListShareTokens(ctx, now, 0)
	if err != nil {
		return stats, err
	}
	stats.Poolable = len(tokens)
	return stats, nil
}
