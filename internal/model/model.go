// Package model defines the core data structures for the treasury engine.
package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Scenario identifies how a purchase was made, which determines the fee split.
type Scenario int

// Purchase scenarios
const (
	// ScenarioPlain is a purchase at full price with no referral or discount
	ScenarioPlain Scenario = iota

	// ScenarioReferred is a purchase through a referral code (10% pre-discount)
	ScenarioReferred

	// ScenarioDiscounted is a purchase with a discount code (50% pre-discount)
	ScenarioDiscounted
)

// String returns a human-readable scenario name for logs and metrics labels.
func (s Scenario) String() string {
	switch s {
	case ScenarioPlain:
		return "plain"
	case ScenarioReferred:
		return "referred"
	case ScenarioDiscounted:
		return "discounted"
	default:
		return "unknown"
	}
}

// FeeSplit is the outcome of distributing a purchase's gross proceeds.
// All amounts are denominated in the underlying asset.
type FeeSplit struct {
	// Net is the proceeds after any pre-discount was applied
	Net *big.Int `json:"net"`

	// Revenue is the portion credited to the protocol revenue pool
	Revenue *big.Int `json:"revenue"`

	// Staker is the portion routed into the yield protocols for stakers
	Staker *big.Int `json:"staker"`

	// Referrer is the reward minted and locked for the referrer, if any
	Referrer *big.Int `json:"referrer"`

	// Beneficiary is the payout to the item's beneficiary
	Beneficiary *big.Int `json:"beneficiary"`
}

// StakeCategory separates direct staker entries from referral-reward entries.
// The two categories share lock semantics but are withdrawn independently.
type StakeCategory int

const (
	StakeDirect StakeCategory = iota
	StakeReferral
)

func (c StakeCategory) String() string {
	if c == StakeReferral {
		return "referral"
	}
	return "direct"
}

// StakeEntry is one open time-locked stake for a (principal, category) pair.
// Since is set when the entry transitions from empty to non-empty and is kept
// until the entry is fully drained.
type StakeEntry struct {
	Amount *big.Int  `json:"amount"`
	Since  time.Time `json:"since"`
}

// ReferrerStats tracks cumulative referral activity for one referrer.
type ReferrerStats struct {
	// TotalRewarded is the lifetime sum of rewards minted for this referrer
	TotalRewarded *big.Int `json:"total_rewarded"`

	// TotalStaked is the referral-category amount currently locked or staked
	TotalStaked *big.Int `json:"total_staked"`
}

// FeeReceipt carries everything the catalog layer reports for one completed
// purchase. Gross is the pre-discount price; Scenario tells the distributor
// which discount and split to apply.
type FeeReceipt struct {
	Gross          *big.Int       `json:"gross"`
	Buyer          common.Address `json:"buyer"`
	Beneficiary    common.Address `json:"beneficiary"`
	Scenario       Scenario       `json:"scenario"`
	Referrer       common.Address `json:"referrer"`
	ReferralReward *big.Int       `json:"referral_reward"`
}

// Clone returns a deep copy of a big.Int, treating nil as zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
