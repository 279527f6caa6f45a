package core

import (
	"context"
	"strings"
	"time"
)

const DefaultPoolID = "default"

type AssembleRequest struct {
	Count  int
	PoolID string
}

type AssembleReport struct {
	PoolID    string
	Requested int
	Clamped   bool
	Selected  int
	Submitted bool
	Handle    PoolHandle
}

// PoolAssembler aggregates the share tokens of active accounts into a single
// pool handle. The stored handle only changes when aggregation succeeds.
type PoolAssembler struct {
	adapter   BackendAdapter
	accounts  AccountStore
	pools     PoolStore
	retry     RetryPolicy
	now       func() time.Time
	telemetry telemetry
}

func NewPoolAssembler(adapter BackendAdapter, accounts AccountStore, pools PoolStore, opts ...Option) (*PoolAssembler, error) {
	if adapter == nil {
		return nil, NewConfigurationError("core: pool assembler requires a backend adapter")
	}
	if accounts == nil {
		return nil, NewConfigurationError("core: pool assembler requires an account store")
	}
	if pools == nil {
		return nil, NewConfigurationError("core: pool assembler requires a pool store")
	}
	runtime := buildRuntime("tokenpool.assembler", opts)
	return &PoolAssembler{
		adapter:  adapter,
		accounts: accounts,
		pools:    pools,
		retry:    *runtime.retryPolicy,
		now:      runtime.now,
		telemetry: telemetry{
			logger:  runtime.logger,
			metrics: runtime.metricsRecorder,
		},
	}, nil
}

func (a *PoolAssembler) Assemble(ctx context.Context, req AssembleRequest) (AssembleReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	poolID := strings.TrimSpace(req.PoolID)
	if poolID == "" {
		poolID = DefaultPoolID
	}
	report := AssembleReport{PoolID: poolID, Requested: req.Count}
	if a == nil || a.adapter == nil {
		return report, NewConfigurationError("core: pool assembler is not configured")
	}
	if !a.adapter.Supports(CapabilityPoolAggregation) {
		return report, NewConfigurationError("core: backend %s cannot aggregate share tokens into a pool", a.adapter.ID())
	}
	if req.Count <= 0 {
		return report, NewBadInputError("core: pool size must be positive")
	}

	count := req.Count
	fields := map[string]any{
		"backend": a.adapter.ID(),
		"pool_id": poolID,
	}
	if count > MaxPoolShareTokens {
		report.Clamped = true
		logged := cloneFields(fields)
		logged["requested"] = count
		logged["max"] = MaxPoolShareTokens
		a.telemetry.logWarn(ctx, "pool size exceeds aggregation limit, clamping", logged)
		count = MaxPoolShareTokens
	}

	tokens, err := a.accounts.ListShareTokens(ctx, a.now().UTC(), count)
	if err != nil {
		return report, err
	}
	report.Selected = len(tokens)
	fields["share_tokens"] = len(tokens)
	if len(tokens) == 0 {
		a.telemetry.logWarn(ctx, "no share tokens available, pool left unchanged", fields)
		a.recordOutcome(ctx, "empty")
		return report, nil
	}

	report.Submitted = true
	handle, err := callAdapter(ctx, a.retry, a.telemetry, "aggregate_pool", fields, func(ctx context.Context) (string, error) {
		return a.adapter.AggregatePool(ctx, tokens)
	})
	if err != nil {
		logged := cloneFields(fields)
		logged["kind"] = FailureKind(err)
		logged["reason"] = errorString(err)
		a.telemetry.logError(ctx, "pool aggregation failed, pool left unchanged", logged)
		a.recordOutcome(ctx, "failure")
		return report, err
	}

	pool := PoolHandle{
		PoolID:          poolID,
		Handle:          handle,
		ShareTokenCount: len(tokens),
		AssembledAt:     a.now().UTC(),
	}
	if err := a.pools.SavePool(ctx, pool); err != nil {
		a.recordOutcome(ctx, "failure")
		return report, err
	}
	report.Handle = pool
	a.recordOutcome(ctx, "success")
	a.telemetry.logInfo(ctx, "pool assembled", fields)
	return report, nil
}

func (a *PoolAssembler) recordOutcome(ctx context.Context, outcome string) {
	a.telemetry.recordCounter(ctx, MetricPoolAssembled, 1, map[string]string{"outcome": outcome})
}
