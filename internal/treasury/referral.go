package treasury

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// Referrals tracks cumulative reward statistics per referrer. Records are
// append-only except for withdrawals reducing the staked amount.
type Referrals struct {
	stats map[common.Address]*model.ReferrerStats
}

// NewReferrals creates an empty referral statistics table.
func NewReferrals() *Referrals {
	return &Referrals{stats: make(map[common.Address]*model.ReferrerStats)}
}

// Record registers a newly minted reward that was immediately staked.
func (r *Referrals) Record(referrer common.Address, reward *big.Int) {
	s, ok := r.stats[referrer]
	if !ok {
		s = &model.ReferrerStats{TotalRewarded: new(big.Int), TotalStaked: new(big.Int)}
		r.stats[referrer] = s
	}
	s.TotalRewarded.Add(s.TotalRewarded, reward)
	s.TotalStaked.Add(s.TotalStaked, reward)
}

// NoteWithdrawal reduces the staked amount when a referral stake is unstaked.
func (r *Referrals) NoteWithdrawal(referrer common.Address, amount *big.Int) {
	s, ok := r.stats[referrer]
	if !ok {
		return
	}
	if s.TotalStaked.Cmp(amount) <= 0 {
		s.TotalStaked.SetInt64(0)
		return
	}
	s.TotalStaked.Sub(s.TotalStaked, amount)
}

// StatsOf returns a copy of the referrer's cumulative statistics.
func (r *Referrals) StatsOf(referrer common.Address) model.ReferrerStats {
	s, ok := r.stats[referrer]
	if !ok {
		return model.ReferrerStats{TotalRewarded: new(big.Int), TotalStaked: new(big.Int)}
	}
	return model.ReferrerStats{
		TotalRewarded: model.Clone(s.TotalRewarded),
		TotalStaked:   model.Clone(s.TotalStaked),
	}
}
