package pricing

import (
	"fmt"
	"math/big"

	"incentive-controlplane/pkg/config"
	"incentive-controlplane/pkg/fixedpoint"
)

// Curve prices the next listing from the count of listings created so far.
// The schedule is INITIAL_PRICE * MULTIPLIER^count in 1e18 fixed point; an
// optional referral discount is applied to the quoted price. The curve is
// pure: no state, no side effects, the only failure mode is overflow.
type Curve struct {
	initial     *big.Int
	multiplier  *big.Int
	discountBps int64
}

func NewCurve(cfg *config.Config) (*Curve, error) {
	e := cfg.Engine

	initial, ok := new(big.Int).SetString(e.InitialPrice, 10)
	if !ok || initial.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: invalid initial price %q", e.InitialPrice)
	}

	multiplier, err := fixedpoint.Parse(e.PriceMultiplier)
	if err != nil {
		return nil, err
	}
	if multiplier.Cmp(fixedpoint.One()) <= 0 {
		return nil, fmt.Errorf("pricing: multiplier %q must exceed 1.0 for prices to increase", e.PriceMultiplier)
	}

	if e.ReferralDiscountBps < 0 || e.ReferralDiscountBps >= 10_000 {
		return nil, fmt.Errorf("pricing: referral discount %d bps out of range", e.ReferralDiscountBps)
	}

	return &Curve{
		initial:     initial,
		multiplier:  multiplier,
		discountBps: e.ReferralDiscountBps,
	}, nil
}

// NextPrice returns the undiscounted price for listing number listingCount.
func (c *Curve) NextPrice(listingCount uint64) (*big.Int, error) {
	if listingCount == 0 {
		return new(big.Int).Set(c.initial), nil
	}

	factor, err := fixedpoint.Pow(c.multiplier, listingCount)
	if err != nil {
		return nil, err
	}

	return fixedpoint.MulScalar(c.initial, factor)
}

// Discount reduces a quoted price by the configured referral discount,
// flooring in the buyer's favor is not attempted: the discounted fraction of
// the price is what the buyer keeps.
func (c *Curve) Discount(price *big.Int) *big.Int {
	return fixedpoint.ApplyBps(price, 10_000-c.discountBps)
}

// EffectivePrice quotes the price for the next listing, applying the
// referral discount when the purchase carries a valid referral.
func (c *Curve) EffectivePrice(listingCount uint64, referred bool) (*big.Int, error) {
	price, err := c.NextPrice(listingCount)
	if err != nil {
		return nil, err
	}
	if referred {
		price = c.Discount(price)
	}
	return price, nil
}
