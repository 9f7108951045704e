package treasury

import (
	"fmt"
	"math/big"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// Fee percentages, applied to the post-discount proceeds.
const (
	// referredDiscountPercent is taken off the gross price for referred purchases
	referredDiscountPercent = 10

	// codeDiscountPercent is taken off the gross price for discount-code purchases
	codeDiscountPercent = 50

	// combinedFeePercent is the protocol+staker fee for plain and referred purchases
	combinedFeePercent = 20

	// discountedFeePercent is the protocol+staker fee for discounted purchases
	discountedFeePercent = 10

	// referredFeePercent goes entirely to protocol revenue on referred purchases
	referredFeePercent = 10

	// referrerRewardPercent of the discounted price is minted for the referrer
	referrerRewardPercent = 10
)

// ComputeSplit distributes gross proceeds for one purchase according to the
// scenario. The beneficiary takes the remainder after the fee legs, so the
// legs always sum exactly to the post-discount proceeds.
//
//	plain:      fee 20% of G, split evenly between revenue and staker pool
//	referred:   10% pre-discount; fee 10% to revenue, 10% reward to referrer
//	discounted: 50% pre-discount; fee 10%, split evenly like plain
func ComputeSplit(gross *big.Int, scenario model.Scenario) (model.FeeSplit, error) {
	if gross == nil || gross.Sign() <= 0 {
		return model.FeeSplit{}, model.ErrInvalidAmount
	}

	split := model.FeeSplit{
		Revenue:  new(big.Int),
		Staker:   new(big.Int),
		Referrer: new(big.Int),
	}

	switch scenario {
	case model.ScenarioPlain:
		split.Net = model.Clone(gross)
		fee := percentOf(split.Net, combinedFeePercent)
		split.Revenue = new(big.Int).Div(fee, big.NewInt(2))
		split.Staker = new(big.Int).Sub(fee, split.Revenue)

	case model.ScenarioReferred:
		split.Net = afterDiscount(gross, referredDiscountPercent)
		// The whole fee goes to protocol revenue; nothing is staked
		split.Revenue = percentOf(split.Net, referredFeePercent)
		split.Referrer = percentOf(split.Net, referrerRewardPercent)

	case model.ScenarioDiscounted:
		split.Net = afterDiscount(gross, codeDiscountPercent)
		fee := percentOf(split.Net, discountedFeePercent)
		split.Revenue = new(big.Int).Div(fee, big.NewInt(2))
		split.Staker = new(big.Int).Sub(fee, split.Revenue)

	default:
		return model.FeeSplit{}, fmt.Errorf("unknown scenario %d: %w", scenario, model.ErrInvalidAmount)
	}

	split.Beneficiary = new(big.Int).Set(split.Net)
	split.Beneficiary.Sub(split.Beneficiary, split.Revenue)
	split.Beneficiary.Sub(split.Beneficiary, split.Staker)
	split.Beneficiary.Sub(split.Beneficiary, split.Referrer)
	if split.Beneficiary.Sign() < 0 {
		return model.FeeSplit{}, fmt.Errorf("fee legs exceed proceeds: %w", model.ErrInvalidAmount)
	}
	return split, nil
}

// percentOf returns amount * percent / 100, floored.
func percentOf(amount *big.Int, percent int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(percent))
	return out.Div(out, big.NewInt(100))
}

// afterDiscount returns amount reduced by percent, floored.
func afterDiscount(amount *big.Int, percent int64) *big.Int {
	return percentOf(amount, 100-percent)
}
