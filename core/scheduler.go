package core

import (
	"context"
	"strings"
	"time"
)

const (
	StageCredentials = "credentials"
	StageExchange    = "exchange"
	StageCommit      = "commit"
	StageShareToken  = "share_token"
	StageSessionKey  = "session_key"
)

type RunRequest struct {
	Mode              Mode
	Track             Track
	Limit             int
	NearExpiryWindow  time.Duration
	EmptyArtifactOnly bool
}

func (r RunRequest) Validate() error {
	if !r.Mode.Valid() {
		return NewBadInputError("core: unknown mode %q, expected obtain or refresh", r.Mode)
	}
	if !r.Track.Valid() {
		return NewBadInputError("core: unknown track %q, expected session or platform", r.Track)
	}
	if !validBatch(r.Limit) {
		return NewBadInputError("core: limit must be positive or %d", UnboundedBatch)
	}
	if r.NearExpiryWindow < 0 {
		return NewBadInputError("core: near expiry window must not be negative")
	}
	return nil
}

// AccountFailure records why one account did not complete a step.
type AccountFailure struct {
	AccountID string
	Email     string
	Stage     string
	Kind      string
	Reason    string
}

type RunReport struct {
	Mode          Mode
	Track         Track
	TotalActive   int
	Matching      int
	Selected      int
	Succeeded     int
	Failed        int
	Skipped       int
	DerivedFailed int
	Failures      []AccountFailure
	StartedAt     time.Time
	Duration      time.Duration
}

// LifecycleScheduler drives obtain and refresh batches for one backend. Accounts
// are processed one at a time and every failure stays with its account.
type LifecycleScheduler struct {
	adapter   BackendAdapter
	store     AccountStore
	retry     RetryPolicy
	now       func() time.Time
	telemetry telemetry
}

func NewLifecycleScheduler(adapter BackendAdapter, store AccountStore, opts ...Option) (*LifecycleScheduler, error) {
	if adapter == nil {
		return nil, NewConfigurationError("core: lifecycle scheduler requires a backend adapter")
	}
	if store == nil {
		return nil, NewConfigurationError("core: lifecycle scheduler requires an account store")
	}
	runtime := buildRuntime("tokenpool.scheduler", opts)
	return &LifecycleScheduler{
		adapter: adapter,
		store:   store,
		retry:   *runtime.retryPolicy,
		now:     runtime.now,
		telemetry: telemetry{
			logger:  runtime.logger,
			metrics: runtime.metricsRecorder,
		},
	}, nil
}

// Run selects candidates for req and processes them in order. The returned
// error is reserved for conditions that stop the whole batch: invalid input,
// store reads and configuration errors.
func (s *LifecycleScheduler) Run(ctx context.Context, req RunRequest) (RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := RunReport{Mode: req.Mode, Track: req.Track}
	if s == nil || s.adapter == nil || s.store == nil {
		return report, NewConfigurationError("core: lifecycle scheduler is not configured")
	}
	if err := req.Validate(); err != nil {
		return report, err
	}

	startedAt := s.now().UTC()
	report.StartedAt = startedAt
	filter := CandidateFilter{
		Mode:              req.Mode,
		Track:             req.Track,
		Now:               startedAt,
		NearExpiryWindow:  req.NearExpiryWindow,
		EmptyArtifactOnly: req.EmptyArtifactOnly,
	}

	total, err := s.store.CountActive(ctx)
	if err != nil {
		return report, err
	}
	matching, err := s.store.CountMatching(ctx, filter)
	if err != nil {
		return report, err
	}
	report.TotalActive = total
	report.Matching = matching

	runFields := map[string]any{
		"backend":      s.adapter.ID(),
		"mode":         string(req.Mode),
		"track":        string(req.Track),
		"total_active": total,
		"matching":     matching,
		"limit":        req.Limit,
	}
	s.telemetry.logInfo(ctx, "lifecycle run starting", runFields)

	candidates, err := s.store.ListCandidates(ctx, filter, req.Limit)
	if err != nil {
		return report, err
	}
	report.Selected = len(candidates)

	for _, account := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.finish(ctx, &report, runFields)
			return report, ctxErr
		}
		if err := s.processAccount(ctx, req, account, &report); err != nil {
			s.finish(ctx, &report, runFields)
			return report, err
		}
	}

	s.finish(ctx, &report, runFields)
	return report, nil
}

func (s *LifecycleScheduler) finish(ctx context.Context, report *RunReport, fields map[string]any) {
	report.Duration = s.now().UTC().Sub(report.StartedAt)
	summary := cloneFields(fields)
	summary["selected"] = report.Selected
	summary["succeeded"] = report.Succeeded
	summary["failed"] = report.Failed
	summary["skipped"] = report.Skipped
	summary["derived_failed"] = report.DerivedFailed
	summary["duration_ms"] = report.Duration.Milliseconds()
	s.telemetry.logInfo(ctx, "lifecycle run finished", summary)
	s.telemetry.recordHistogram(ctx, MetricRunDuration, report.Duration.Seconds(), map[string]string{
		"mode":  string(report.Mode),
		"track": string(report.Track),
	})
}

// processAccount returns an error only when the batch must stop.
func (s *LifecycleScheduler) processAccount(ctx context.Context, req RunRequest, account Account, report *RunReport) error {
	fields := map[string]any{
		"account_id": account.ID,
		"email":      account.Email,
		"mode":       string(req.Mode),
		"track":      string(req.Track),
	}

	if req.Mode == ModeObtain {
		if err := account.Credentials().Validate(); err != nil {
			report.Skipped++
			s.recordOutcome(ctx, req, "skipped")
			logged := cloneFields(fields)
			logged["reason"] = errorString(err)
			s.telemetry.logWarn(ctx, "account skipped", logged)
			return nil
		}
	}

	pair, err := s.exchange(ctx, req, account, fields)
	if err != nil {
		if IsConfiguration(err) {
			return err
		}
		s.fail(ctx, req, report, account, StageExchange, err, fields)
		return nil
	}
	if !pair.Complete() {
		s.fail(ctx, req, report, account, StageExchange, NewIncompletePairError(account.ID, req.Track), fields)
		return nil
	}

	if err := s.store.SaveTokenPair(ctx, account.ID, req.Track, pair, s.now().UTC()); err != nil {
		s.fail(ctx, req, report, account, StageCommit, err, fields)
		return nil
	}
	report.Succeeded++
	s.recordOutcome(ctx, req, "success")
	committed := cloneFields(fields)
	committed["primary_expires_at"] = pair.PrimaryExpiresAt.UTC().Format(time.RFC3339)
	committed["companion_expires_at"] = pair.CompanionExpiresAt.UTC().Format(time.RFC3339)
	s.telemetry.logInfo(ctx, "token pair committed", committed)

	if stage, err := s.deriveArtifact(ctx, req.Track, account, pair, fields); err != nil {
		if IsConfiguration(err) {
			return err
		}
		report.DerivedFailed++
		report.Failures = append(report.Failures, newAccountFailure(account, stage, err))
		logged := cloneFields(fields)
		logged["stage"] = stage
		logged["kind"] = FailureKind(err)
		logged["reason"] = errorString(err)
		s.telemetry.logError(ctx, "derived artifact failed", logged)
	}
	return nil
}

func (s *LifecycleScheduler) exchange(ctx context.Context, req RunRequest, account Account, fields map[string]any) (TokenPair, error) {
	switch {
	case req.Mode == ModeObtain && req.Track == TrackSession:
		return callAdapter(ctx, s.retry, s.telemetry, "obtain_session", fields, func(ctx context.Context) (TokenPair, error) {
			return s.adapter.ObtainSession(ctx, account.Credentials())
		})
	case req.Mode == ModeRefresh && req.Track == TrackSession:
		return callAdapter(ctx, s.retry, s.telemetry, "refresh_session", fields, func(ctx context.Context) (TokenPair, error) {
			return s.adapter.RefreshSession(ctx, account.SessionToken)
		})
	case req.Mode == ModeObtain && req.Track == TrackPlatform:
		return callAdapter(ctx, s.retry, s.telemetry, "obtain_platform", fields, func(ctx context.Context) (TokenPair, error) {
			return s.adapter.ObtainPlatform(ctx, account.Credentials())
		})
	default:
		return callAdapter(ctx, s.retry, s.telemetry, "refresh_platform", fields, func(ctx context.Context) (TokenPair, error) {
			return s.adapter.RefreshPlatform(ctx, account)
		})
	}
}

// deriveArtifact runs the follow-up step of a committed pair. The session
// track registers a share token; the platform track fetches the session key
// unless the backend already returned it with the pair.
func (s *LifecycleScheduler) deriveArtifact(ctx context.Context, track Track, account Account, pair TokenPair, fields map[string]any) (string, error) {
	switch track {
	case TrackSession:
		if !s.adapter.Supports(CapabilityShareToken) {
			return "", nil
		}
		share, err := callAdapter(ctx, s.retry, s.telemetry, "register_share_token", fields, func(ctx context.Context) (ShareToken, error) {
			return s.adapter.RegisterShareToken(ctx, pair.Companion)
		})
		if err != nil {
			return StageShareToken, err
		}
		if err := s.store.SaveShareToken(ctx, account.ID, share); err != nil {
			return StageShareToken, err
		}
		logged := cloneFields(fields)
		logged["share_token_expires_at"] = share.ExpiresAt.UTC().Format(time.RFC3339)
		s.telemetry.logInfo(ctx, "share token committed", logged)
	case TrackPlatform:
		if s.adapter.Supports(CapabilityEmbeddedSessionKey) || !s.adapter.Supports(CapabilitySessionKeyFetch) {
			return "", nil
		}
		key, err := callAdapter(ctx, s.retry, s.telemetry, "fetch_session_key", fields, func(ctx context.Context) (string, error) {
			return s.adapter.FetchPlatformSessionKey(ctx, pair.Companion)
		})
		if err != nil {
			return StageSessionKey, err
		}
		if err := s.store.SaveSessionKey(ctx, account.ID, key); err != nil {
			return StageSessionKey, err
		}
		s.telemetry.logInfo(ctx, "session key committed", fields)
	}
	return "", nil
}

func (s *LifecycleScheduler) fail(ctx context.Context, req RunRequest, report *RunReport, account Account, stage string, err error, fields map[string]any) {
	report.Failed++
	report.Failures = append(report.Failures, newAccountFailure(account, stage, err))
	s.recordOutcome(ctx, req, "failure")
	logged := cloneFields(fields)
	logged["stage"] = stage
	logged["kind"] = FailureKind(err)
	logged["reason"] = errorString(err)
	if status := UpstreamStatus(err); status > 0 {
		logged["status_code"] = status
	}
	s.telemetry.logError(ctx, "account update failed", logged)
}

func (s *LifecycleScheduler) recordOutcome(ctx context.Context, req RunRequest, outcome string) {
	s.telemetry.recordCounter(ctx, MetricAccountsProcessed, 1, map[string]string{
		"mode":    string(req.Mode),
		"track":   string(req.Track),
		"outcome": outcome,
	})
}

func newAccountFailure(account Account, stage string, err error) AccountFailure {
	return AccountFailure{
		AccountID: account.ID,
		Email:     account.Email,
		Stage:     stage,
		Kind:      FailureKind(err),
		Reason:    strings.TrimSpace(errorString(err)),
	}
}

// callAdapter applies the retry policy to one adapter operation and reports
// every attempt to telemetry.
func callAdapter[T any](
	ctx context.Context,
	policy RetryPolicy,
	tel telemetry,
	operation string,
	fields map[string]any,
	call func(context.Context) (T, error),
) (T, error) {
	policy = policy.WithOnRetry(tel.retryObserver(ctx, operation, fields))
	result, err := Retry(ctx, policy, call)
	tel.recordAttemptOutcome(ctx, operation, err)
	return result, err
}
