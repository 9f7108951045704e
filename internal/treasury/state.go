package treasury

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// StateVersion identifies the snapshot schema. Import refuses snapshots from
// a different version; version bumps go through a migration function.
const StateVersion = 1

// State is a complete serializable snapshot of the treasury. Versioning is a
// data-migration concern: export, migrate, import into the new version.
// Addresses are hex, amounts are base-10 strings.
type State struct {
	Version int `json:"version"`

	Units          map[string]string `json:"units"`
	Accounts       map[string]string `json:"accounts"`
	Custody        map[string]string `json:"custody"`
	Supply         string            `json:"supply"`
	VaultUnits     string            `json:"vault_units"`
	Held           string            `json:"held"`
	RevenuePool    string            `json:"revenue_pool"`
	TotalWithdrawn map[string]string `json:"total_withdrawn"`

	VaultShares      map[string]string `json:"vault_shares"`
	VaultTotalShares string            `json:"vault_total_shares"`
	VaultTotalAssets string            `json:"vault_total_assets"`

	TrackedAlpha string `json:"tracked_alpha"`
	TrackedBeta  string `json:"tracked_beta"`

	Locks     []LockState              `json:"locks"`
	Referrers map[string]ReferrerState `json:"referrers"`

	Paused            bool `json:"paused"`
	AllocationPercent int  `json:"allocation_percent"`
}

// LockState is one open stake entry in a snapshot.
type LockState struct {
	Principal string    `json:"principal"`
	Category  int       `json:"category"`
	Amount    string    `json:"amount"`
	Since     time.Time `json:"since"`
}

// ReferrerState is one referrer's cumulative statistics in a snapshot.
type ReferrerState struct {
	TotalRewarded string `json:"total_rewarded"`
	TotalStaked   string `json:"total_staked"`
}

// ExportState captures the full treasury state for migration or backup.
func (s *Service) ExportState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Version:           StateVersion,
		Units:             encodeBalances(s.ledger.units),
		Accounts:          encodeBalances(s.ledger.accounts),
		Custody:           encodeBalances(s.ledger.custody),
		Supply:            s.ledger.supply.String(),
		VaultUnits:        s.ledger.vaultUnits.String(),
		Held:              s.ledger.held.String(),
		RevenuePool:       s.revenuePool.String(),
		TotalWithdrawn:    encodeBalances(s.totalWithdrawn),
		VaultShares:       encodeBalances(s.vault.shares),
		VaultTotalShares:  s.vault.totalShares.String(),
		VaultTotalAssets:  s.vault.totalAssets.String(),
		TrackedAlpha:      s.router.alpha.tracked.String(),
		TrackedBeta:       s.router.beta.tracked.String(),
		Referrers:         make(map[string]ReferrerState),
		Paused:            s.paused,
		AllocationPercent: s.router.percent,
	}
	for key, entry := range s.locks.entries {
		if entry.Amount.Sign() == 0 {
			continue
		}
		st.Locks = append(st.Locks, LockState{
			Principal: key.principal.Hex(),
			Category:  int(key.category),
			Amount:    entry.Amount.String(),
			Since:     entry.Since,
		})
	}
	for addr, stats := range s.referrals.stats {
		st.Referrers[addr.Hex()] = ReferrerState{
			TotalRewarded: stats.TotalRewarded.String(),
			TotalStaked:   stats.TotalStaked.String(),
		}
	}
	return st
}

// ImportState replaces the treasury state with a snapshot. Restricted to the
// owner; refuses snapshots of a different schema version.
func (s *Service) ImportState(caller common.Address, st State) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	if st.Version != StateVersion {
		return fmt.Errorf("snapshot version %d does not match %d", st.Version, StateVersion)
	}

	units, err := decodeBalances(st.Units)
	if err != nil {
		return err
	}
	accounts, err := decodeBalances(st.Accounts)
	if err != nil {
		return err
	}
	custody, err := decodeBalances(st.Custody)
	if err != nil {
		return err
	}
	withdrawn, err := decodeBalances(st.TotalWithdrawn)
	if err != nil {
		return err
	}
	shares, err := decodeBalances(st.VaultShares)
	if err != nil {
		return err
	}
	scalars := make([]*big.Int, 0, 7)
	for _, enc := range []string{st.Supply, st.VaultUnits, st.Held, st.RevenuePool,
		st.VaultTotalShares, st.VaultTotalAssets, st.TrackedAlpha} {
		v, ok := new(big.Int).SetString(enc, 10)
		if !ok {
			return fmt.Errorf("snapshot contains unparseable amount %q", enc)
		}
		scalars = append(scalars, v)
	}
	trackedBeta, ok := new(big.Int).SetString(st.TrackedBeta, 10)
	if !ok {
		return fmt.Errorf("snapshot contains unparseable amount %q", st.TrackedBeta)
	}

	locks := make(map[lockKey]*model.StakeEntry, len(st.Locks))
	for _, ls := range st.Locks {
		amount, ok := new(big.Int).SetString(ls.Amount, 10)
		if !ok {
			return fmt.Errorf("snapshot lock entry has unparseable amount %q", ls.Amount)
		}
		key := lockKey{common.HexToAddress(ls.Principal), model.StakeCategory(ls.Category)}
		locks[key] = &model.StakeEntry{Amount: amount, Since: ls.Since}
	}
	referrers := make(map[common.Address]*model.ReferrerStats, len(st.Referrers))
	for addr, rs := range st.Referrers {
		rewarded, ok1 := new(big.Int).SetString(rs.TotalRewarded, 10)
		staked, ok2 := new(big.Int).SetString(rs.TotalStaked, 10)
		if !ok1 || !ok2 {
			return fmt.Errorf("snapshot referrer entry for %s is unparseable", addr)
		}
		referrers[common.HexToAddress(addr)] = &model.ReferrerStats{
			TotalRewarded: rewarded,
			TotalStaked:   staked,
		}
	}

	// All decoding succeeded; apply as a unit
	s.ledger.units = units
	s.ledger.accounts = accounts
	s.ledger.custody = custody
	s.ledger.supply = scalars[0]
	s.ledger.vaultUnits = scalars[1]
	s.ledger.held = scalars[2]
	s.revenuePool = scalars[3]
	s.totalWithdrawn = withdrawn
	s.vault.shares = shares
	s.vault.totalShares = scalars[4]
	s.vault.totalAssets = scalars[5]
	s.router.RestoreTracked(scalars[6], trackedBeta)
	s.locks.entries = locks
	s.referrals.stats = referrers
	s.paused = st.Paused
	if st.AllocationPercent >= 0 && st.AllocationPercent <= 100 {
		s.router.percent = st.AllocationPercent
	}
	return nil
}

func encodeBalances(m map[common.Address]*big.Int) map[string]string {
	out := make(map[string]string, len(m))
	for addr, amount := range m {
		out[addr.Hex()] = amount.String()
	}
	return out
}

func decodeBalances(m map[string]string) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(m))
	for addr, enc := range m {
		v, ok := new(big.Int).SetString(enc, 10)
		if !ok {
			return nil, fmt.Errorf("snapshot balance for %s is unparseable: %q", addr, enc)
		}
		out[common.HexToAddress(addr)] = v
	}
	return out, nil
}
