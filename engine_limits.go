package authcore

import (
	"context"
	"fmt"

	"github.com/authcore/authcore/internal/rate"
)

func rateResult(r rate.Result) RateResult {
	return RateResult{
		Limit:     r.Limit,
		Remaining: r.Remaining,
		ResetAt:   r.ResetAt,
	}
}

// CheckRate counts one request against the caller's fixed-window rate
// budget. Identity is whatever the caller keys traffic on, typically the
// principal ID when authenticated and the network address otherwise. The
// returned result is valid in both outcomes; on [ErrRateLimited] it carries
// the window reset time for a retry-after answer. A disabled gate allows
// everything.
func (e *Engine) CheckRate(ctx context.Context, identity string) (RateResult, error) {
	if e == nil {
		return RateResult{}, ErrEngineNotReady
	}
	if !e.config.Rate.Enabled {
		return RateResult{Limit: 0, Remaining: 0}, nil
	}
	if identity == "" {
		return RateResult{}, fmt.Errorf("%w: empty rate identity", ErrConfigInvalid)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	res, err := e.gate.AllowRequest(sctx, identity, e.config.Rate.Limit, e.config.Rate.Window)
	if err != nil {
		// An unreachable counter store denies, it never waves through.
		return RateResult{}, mapStoreErr(err)
	}
	if !res.Allowed {
		e.metricInc(MetricRateLimited)
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditRateLimited,
			Identity:  identity,
			Error:     "request rate exceeded",
		})
		return rateResult(res), ErrRateLimited
	}
	return rateResult(res), nil
}

// ConsumeQuota counts one metered action against a principal's
// calendar-period allowance. The ceiling comes from the principal's
// subscription tier; tiers missing from the configured map inherit the free
// tier's ceiling. On [ErrQuotaExceeded] the result reports when the period
// rolls over.
func (e *Engine) ConsumeQuota(ctx context.Context, principalID string) (RateResult, error) {
	if e == nil {
		return RateResult{}, ErrEngineNotReady
	}
	if !e.config.Quota.Enabled {
		return RateResult{}, nil
	}
	if principalID == "" {
		return RateResult{}, ErrPrincipalNotFound
	}

	principal, err := e.principals.GetByID(ctx, principalID)
	if err != nil {
		return RateResult{}, err
	}

	limit := e.tierLimit(principal.Tier)

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	res, err := e.gate.ConsumeQuota(sctx, principalID, limit)
	if err != nil {
		return RateResult{}, mapStoreErr(err)
	}
	if !res.Allowed {
		e.metricInc(MetricQuotaExceeded)
		e.emitAudit(ctx, AuditEvent{
			EventType:   AuditQuotaExceeded,
			PrincipalID: principalID,
			Error:       "period quota exceeded",
			Metadata:    map[string]string{"tier": string(principal.Tier)},
		})
		return rateResult(res), ErrQuotaExceeded
	}
	return rateResult(res), nil
}

// CheckQuota reports whether a principal has period allowance left without
// spending any. A clean result does not reserve capacity; a concurrent
// [Engine.ConsumeQuota] can still win the last slot.
func (e *Engine) CheckQuota(ctx context.Context, principalID string) (RateResult, error) {
	if e == nil {
		return RateResult{}, ErrEngineNotReady
	}
	if !e.config.Quota.Enabled {
		return RateResult{}, nil
	}
	if principalID == "" {
		return RateResult{}, ErrPrincipalNotFound
	}

	principal, err := e.principals.GetByID(ctx, principalID)
	if err != nil {
		return RateResult{}, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	res, err := e.gate.CheckQuota(sctx, principalID, e.tierLimit(principal.Tier))
	if err != nil {
		return RateResult{}, mapStoreErr(err)
	}
	if !res.Allowed {
		return rateResult(res), ErrQuotaExceeded
	}
	return rateResult(res), nil
}

// QuotaUsage reports how many metered actions a principal has consumed in
// the current calendar period, without counting one.
func (e *Engine) QuotaUsage(ctx context.Context, principalID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	used, err := e.gate.QuotaUsage(sctx, principalID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return used, nil
}

func (e *Engine) tierLimit(tier SubscriptionTier) int {
	if limit, ok := e.config.Quota.TierLimits[tier]; ok {
		return limit
	}
	return e.config.Quota.TierLimits[TierFree]
}
