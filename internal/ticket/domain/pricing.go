package domain

import (
	"math"

	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
)

// MaxQuantity bounds how many units a single ticket may bill.
const MaxQuantity int64 = 1_000_000

// ChargeFor is what the company pays when the ticket is created.
func ChargeFor(t Ticket, jobType *JobType) (int64, error) {
	if t.TokenCostOverride != nil {
		return *t.TokenCostOverride, nil
	}
	if jobType == nil {
		return 0, ErrJobTypeMissing
	}
	charge, ok := mulInt64(jobType.TokenCost, t.Quantity)
	if !ok {
		return 0, ErrInvalidQuantity
	}
	return charge, nil
}

// PayoutFor applies the payout precedence: the per-ticket override, then the
// tier percentage of the job cost when a creative is assigned, then the job
// type's base payout. evaluation is ignored unless a creative is assigned.
func PayoutFor(t Ticket, jobType JobType, evaluation *payouttierdomain.Evaluation) (Payout, error) {
	if t.CreativePayoutOverride != nil {
		return Payout{Amount: *t.CreativePayoutOverride, Source: PayoutSourceOverride}, nil
	}

	if t.CreativeID != nil && evaluation != nil {
		pct := evaluation.PayoutPercent
		cost, ok := mulInt64(jobType.TokenCost, t.Quantity)
		if !ok {
			return Payout{}, ErrInvalidQuantity
		}
		amount, ok := percentOf(cost, pct)
		if !ok {
			return Payout{}, ErrInvalidQuantity
		}
		return Payout{
			Amount:          amount,
			Source:          PayoutSourceTier,
			PayoutPercent:   &pct,
			MatchedRuleID:   evaluation.MatchedRuleID,
			MatchedRuleName: evaluation.MatchedRuleName,
		}, nil
	}

	amount, ok := mulInt64(jobType.BasePayoutTokens, t.Quantity)
	if !ok {
		return Payout{}, ErrInvalidQuantity
	}
	return Payout{Amount: amount, Source: PayoutSourceBase}, nil
}

// percentOf rounds half away from zero. ok is false when the intermediate
// product does not fit in an int64.
func percentOf(amount, pct int64) (int64, bool) {
	product, ok := mulInt64(amount, pct)
	if !ok || product > math.MaxInt64-50 || product < math.MinInt64+50 {
		return 0, false
	}
	if product < 0 {
		return -((-product + 50) / 100), true
	}
	return (product + 50) / 100, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}
