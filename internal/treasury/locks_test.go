package treasury

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

func newTestRegistry(start time.Time) (*LockRegistry, *time.Time) {
	clock := start
	r := NewLockRegistry(DefaultLockPeriod)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestLockRegistryAllOrNothing(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, clock := newTestRegistry(start)
	p := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(t, r.Add(p, big.NewInt(500), model.StakeDirect))

	// One hour short of the lock period nothing is withdrawable
	*clock = start.Add(23 * time.Hour)
	assert.Zero(t, r.Withdrawable(p, model.StakeDirect).Int64())
	assert.Equal(t, int64(500), r.Locked(p, model.StakeDirect).Int64())

	// At exactly the lock period the full entry unlocks at once
	*clock = start.Add(24 * time.Hour)
	assert.Equal(t, int64(500), r.Withdrawable(p, model.StakeDirect).Int64())
}

func TestLockRegistryTimestampOnlyOnEmptyEntry(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, clock := newTestRegistry(start)
	p := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(t, r.Add(p, big.NewInt(100), model.StakeDirect))

	// A later contribution extends the entry without resetting its clock
	*clock = start.Add(12 * time.Hour)
	require.NoError(t, r.Add(p, big.NewInt(200), model.StakeDirect))

	*clock = start.Add(24 * time.Hour)
	assert.Equal(t, int64(300), r.Withdrawable(p, model.StakeDirect).Int64())
}

func TestLockRegistryTimestampResetsAfterDrain(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, clock := newTestRegistry(start)
	p := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(t, r.Add(p, big.NewInt(100), model.StakeDirect))
	*clock = start.Add(24 * time.Hour)
	require.NoError(t, r.Consume(p, big.NewInt(100), model.StakeDirect))

	// The entry is empty; a fresh contribution starts a new lock
	require.NoError(t, r.Add(p, big.NewInt(50), model.StakeDirect))
	assert.Zero(t, r.Withdrawable(p, model.StakeDirect).Int64())

	*clock = start.Add(48 * time.Hour)
	assert.Equal(t, int64(50), r.Withdrawable(p, model.StakeDirect).Int64())
}

func TestLockRegistryCategoriesAreIndependent(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, clock := newTestRegistry(start)
	p := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(t, r.Add(p, big.NewInt(100), model.StakeDirect))
	*clock = start.Add(12 * time.Hour)
	require.NoError(t, r.Add(p, big.NewInt(200), model.StakeReferral))

	*clock = start.Add(24 * time.Hour)
	assert.Equal(t, int64(100), r.Withdrawable(p, model.StakeDirect).Int64())
	assert.Zero(t, r.Withdrawable(p, model.StakeReferral).Int64())

	*clock = start.Add(36 * time.Hour)
	assert.Equal(t, int64(200), r.Withdrawable(p, model.StakeReferral).Int64())
}

func TestLockRegistryConsumeRejectsLocked(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, clock := newTestRegistry(start)
	p := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(t, r.Add(p, big.NewInt(100), model.StakeDirect))

	err := r.Consume(p, big.NewInt(100), model.StakeDirect)
	assert.ErrorIs(t, err, model.ErrStakeStillLocked)

	*clock = start.Add(25 * time.Hour)
	err = r.Consume(p, big.NewInt(101), model.StakeDirect)
	assert.ErrorIs(t, err, model.ErrStakeStillLocked)

	require.NoError(t, r.Consume(p, big.NewInt(100), model.StakeDirect))
	assert.Zero(t, r.Locked(p, model.StakeDirect).Int64())
}
