package treasury

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// DefaultLockPeriod is how long a stake entry must age before any of it
// becomes withdrawable.
const DefaultLockPeriod = 24 * time.Hour

type lockKey struct {
	principal common.Address
	category  model.StakeCategory
}

// LockRegistry records one open stake entry per (principal, category). An
// entry accumulates further contributions until fully withdrawn; its timestamp
// is set only when it transitions from empty to non-empty. There is no
// partial unlocking: the whole entry becomes withdrawable at once.
type LockRegistry struct {
	entries    map[lockKey]*model.StakeEntry
	lockPeriod time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewLockRegistry creates a registry with the given lock period.
func NewLockRegistry(lockPeriod time.Duration) *LockRegistry {
	if lockPeriod <= 0 {
		lockPeriod = DefaultLockPeriod
	}
	return &LockRegistry{
		entries:    make(map[lockKey]*model.StakeEntry),
		lockPeriod: lockPeriod,
		now:        time.Now,
	}
}

// Add registers amount against the open entry for (principal, category),
// creating it with the current timestamp if the entry is empty.
func (r *LockRegistry) Add(p common.Address, amount *big.Int, cat model.StakeCategory) error {
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	key := lockKey{p, cat}
	entry, ok := r.entries[key]
	if !ok {
		entry = &model.StakeEntry{Amount: new(big.Int)}
		r.entries[key] = entry
	}
	if entry.Amount.Sign() == 0 {
		entry.Since = r.now()
	}
	entry.Amount.Add(entry.Amount, amount)

	logrus.WithFields(logrus.Fields{
		"principal": p.Hex(),
		"category":  cat.String(),
		"amount":    amount.String(),
		"total":     entry.Amount.String(),
	}).Debug("Stake entry extended")
	return nil
}

// Withdrawable returns the full entry amount once the lock period has
// elapsed, zero before that.
func (r *LockRegistry) Withdrawable(p common.Address, cat model.StakeCategory) *big.Int {
	entry, ok := r.entries[lockKey{p, cat}]
	if !ok || entry.Amount.Sign() == 0 {
		return new(big.Int)
	}
	if r.now().Before(entry.Since.Add(r.lockPeriod)) {
		return new(big.Int)
	}
	return model.Clone(entry.Amount)
}

// Locked returns the entry amount regardless of lock status.
func (r *LockRegistry) Locked(p common.Address, cat model.StakeCategory) *big.Int {
	entry, ok := r.entries[lockKey{p, cat}]
	if !ok {
		return new(big.Int)
	}
	return model.Clone(entry.Amount)
}

// Consume removes amount from the entry. The amount must not exceed what is
// currently withdrawable.
func (r *LockRegistry) Consume(p common.Address, amount *big.Int, cat model.StakeCategory) error {
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	if amount.Cmp(r.Withdrawable(p, cat)) > 0 {
		return fmt.Errorf("consume of %s: %w", amount, model.ErrStakeStillLocked)
	}
	entry := r.entries[lockKey{p, cat}]
	entry.Amount.Sub(entry.Amount, amount)
	return nil
}
