// Package eligibility holds the pure decision function mapping a VIP level and
// a normalized deposit to an approval outcome.
package eligibility

import (
	"github.com/shopspring/decimal"

	"vippanel/internal/tier"
)

type Kind string

const (
	KindIneligible Kind = "ineligible"
	KindEligible   Kind = "eligible"
	KindShortfall  Kind = "shortfall"
)

// Outcome is the result of Decide. Exactly one Kind is produced for any
// input; Decide has no error conditions.
type Outcome struct {
	Kind    Kind
	Bracket tier.Bracket

	// Reward is the fixed reward amount, set when Kind is KindEligible.
	Reward int64

	// Required and Deficit are set when Kind is KindShortfall. Deficit is
	// strictly positive by construction.
	Required decimal.Decimal
	Deficit  decimal.Decimal
}

// Decide resolves level against the tier table and checks deposit against the
// bracket minimum. The threshold is inclusive: a deposit exactly equal to the
// minimum qualifies.
func Decide(level int, deposit decimal.Decimal) Outcome {
	bracket, ok := tier.BracketFor(level)
	if !ok {
		return Outcome{Kind: KindIneligible}
	}
	reward, ok := tier.RewardFor(level)
	if !ok {
		return Outcome{Kind: KindIneligible}
	}

	minimum, ok := tier.MinimumFor(bracket)
	if !ok {
		return Outcome{Kind: KindEligible, Bracket: bracket, Reward: reward}
	}

	required := decimal.NewFromInt(minimum)
	if deposit.GreaterThanOrEqual(required) {
		return Outcome{Kind: KindEligible, Bracket: bracket, Reward: reward}
	}

	return Outcome{
		Kind:     KindShortfall,
		Bracket:  bracket,
		Required: required,
		Deficit:  required.Sub(deposit),
	}
}
