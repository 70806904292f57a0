package domain

import (
	"sort"
	"time"
)

// CompletionCounter returns how many DONE tickets the creative has with
// updated_at at or after since.
type CompletionCounter func(since time.Time) (int64, error)

var windowFloor = time.Unix(0, 0).UTC()

// WindowStart is now minus the rule's window in whole days. Very large windows
// are clamped to the Unix epoch, which reads as "all time".
func WindowStart(now time.Time, days int64) time.Time {
	if days > int64(now.Sub(windowFloor)/(24*time.Hour)) {
		return windowFloor
	}
	return now.AddDate(0, 0, -int(days))
}

// RankRules returns the active rules ordered best rate first. Equal
// percentages fall back to ascending id so the order never depends on storage.
func RankRules(rules []PayoutRule) []PayoutRule {
	ranked := make([]PayoutRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive || rule.TimeWindowDays <= 0 {
			continue
		}
		ranked = append(ranked, rule)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PayoutPercent != ranked[j].PayoutPercent {
			return ranked[i].PayoutPercent > ranked[j].PayoutPercent
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// SelectTier walks the ranked rules and returns the first one whose window
// count meets its minimum. Without a match the base percent applies.
func SelectTier(rules []PayoutRule, now time.Time, basePercent int64, count CompletionCounter) (Evaluation, error) {
	for _, rule := range RankRules(rules) {
		completed, err := count(WindowStart(now, rule.TimeWindowDays))
		if err != nil {
			return Evaluation{}, err
		}
		if completed >= rule.MinCompletedTickets {
			id := rule.ID
			return Evaluation{
				PayoutPercent:     rule.PayoutPercent,
				MatchedRuleID:     &id,
				MatchedRuleName:   rule.Name,
				CompletedInWindow: completed,
			}, nil
		}
	}
	return Evaluation{PayoutPercent: basePercent}, nil
}

// NextTierFor finds the lowest-percent rule that still beats current and the
// creative does not yet meet.
func NextTierFor(rules []PayoutRule, now time.Time, current Evaluation, count CompletionCounter) (*NextTier, error) {
	ranked := RankRules(rules)
	for i := len(ranked) - 1; i >= 0; i-- {
		rule := ranked[i]
		if rule.PayoutPercent <= current.PayoutPercent {
			continue
		}
		completed, err := count(WindowStart(now, rule.TimeWindowDays))
		if err != nil {
			return nil, err
		}
		if completed >= rule.MinCompletedTickets {
			continue
		}
		return &NextTier{
			RuleID:              rule.ID,
			RuleName:            rule.Name,
			PayoutPercent:       rule.PayoutPercent,
			MinCompletedTickets: rule.MinCompletedTickets,
			TimeWindowDays:      rule.TimeWindowDays,
			CompletedInWindow:   completed,
			Remaining:           rule.MinCompletedTickets - completed,
		}, nil
	}
	return nil, nil
}
