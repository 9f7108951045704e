// Package validation provides plausibility checks for position reports coming
// back from the external yield protocols.
package validation

import (
	"math/big"

	"github.com/sirupsen/logrus"
)

// Options holds configuration for position report validation
type Options struct {
	// MaxGrowthNumerator/Denominator bound how far a reported position value
	// may exceed the tracked deposit before the report is considered
	// implausible. Defaults allow 2x.
	MaxGrowthNumerator   int64
	MaxGrowthDenominator int64

	// AllowZeroReport accepts a zero position value even when funds are
	// tracked as deposited. A zero report usually means the protocol lost or
	// misplaced the position, so the default is to reject it.
	AllowZeroReport bool
}

// DefaultOptions returns sensible defaults for report validation
func DefaultOptions() Options {
	return Options{
		MaxGrowthNumerator:   2,
		MaxGrowthDenominator: 1,
		AllowZeroReport:      false,
	}
}

// PlausiblePosition reports whether a protocol's claimed position value is
// believable given the amount the treasury tracks as deposited there. Yield
// computations treat an implausible report the same as an unavailable one.
func PlausiblePosition(tracked, reported *big.Int, opts Options) bool {
	if reported == nil || reported.Sign() < 0 {
		return false
	}
	if tracked == nil || tracked.Sign() == 0 {
		// Nothing deposited; any non-negative report is acceptable
		return true
	}
	if reported.Sign() == 0 && !opts.AllowZeroReport {
		logrus.Warnf("Protocol reported zero position against tracked deposit of %s", tracked)
		return false
	}

	// reported must not exceed tracked * maxGrowth
	limit := new(big.Int).Mul(tracked, big.NewInt(opts.MaxGrowthNumerator))
	limit.Div(limit, big.NewInt(opts.MaxGrowthDenominator))
	if reported.Cmp(limit) > 0 {
		logrus.Warnf("Protocol position report %s exceeds plausibility limit %s (tracked %s)",
			reported, limit, tracked)
		return false
	}
	return true
}

// YieldDelta returns the claimed yield implied by a position report: the
// report's excess over the tracked deposit, or zero when the report is
// implausible or shows no gain.
func YieldDelta(tracked, reported *big.Int, opts Options) *big.Int {
	if !PlausiblePosition(tracked, reported, opts) {
		return new(big.Int)
	}
	delta := new(big.Int).Sub(reported, tracked)
	if delta.Sign() <= 0 {
		return new(big.Int)
	}
	return delta
}
