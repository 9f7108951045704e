package treasury

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

func newTestLedger() *Ledger {
	l := NewLedger()
	l.SetPricer(NewVault())
	return l
}

func TestLedgerDepositMintsOneToOne(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(1000)))
	require.NoError(t, l.Deposit(alice, big.NewInt(1000)))

	assert.Equal(t, int64(1000), l.UnitsOf(alice).Int64())
	assert.Equal(t, int64(1000), l.AccountOf(alice).Int64())
	assert.Equal(t, int64(1000), l.TotalSupply().Int64())
	assert.Equal(t, int64(1000), l.Held().Int64())
	assert.Zero(t, l.CustodyOf(alice).Int64())
}

func TestLedgerDepositRequiresCustody(t *testing.T) {
	l := newTestLedger()

	err := l.Deposit(alice, big.NewInt(100))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(50)))
	err = l.Deposit(alice, big.NewInt(100))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
}

func TestLedgerRedeemRoundTrip(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(1000)))
	require.NoError(t, l.Deposit(alice, big.NewInt(1000)))

	out, err := l.Redeem(alice, big.NewInt(400))
	require.NoError(t, err)

	assert.Equal(t, int64(400), out.Int64())
	assert.Equal(t, int64(600), l.UnitsOf(alice).Int64())
	assert.Equal(t, int64(600), l.TotalSupply().Int64())
	assert.Equal(t, int64(400), l.CustodyOf(alice).Int64())
	assert.Equal(t, int64(600), l.Held().Int64())
}

func TestLedgerRedeemRejectsMoreThanHeld(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(1000)))
	require.NoError(t, l.Deposit(alice, big.NewInt(1000)))

	_, err := l.Redeem(alice, big.NewInt(1001))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	// Balance untouched on rejection
	assert.Equal(t, int64(1000), l.UnitsOf(alice).Int64())
}

func TestLedgerRedeemRejectsZeroAndNegative(t *testing.T) {
	l := newTestLedger()

	_, err := l.Redeem(alice, big.NewInt(0))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = l.Redeem(alice, big.NewInt(-10))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = l.Redeem(alice, nil)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestLedgerTransfer(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(500)))
	require.NoError(t, l.Deposit(alice, big.NewInt(500)))

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(200)))
	assert.Equal(t, int64(300), l.UnitsOf(alice).Int64())
	assert.Equal(t, int64(200), l.UnitsOf(bob).Int64())

	err := l.Transfer(bob, alice, big.NewInt(201))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
}

func TestLedgerVaultMoveAndBurn(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(1000)))
	require.NoError(t, l.Deposit(alice, big.NewInt(1000)))
	require.NoError(t, l.MoveToVault(alice, big.NewInt(600)))

	assert.Equal(t, int64(400), l.UnitsOf(alice).Int64())
	assert.Equal(t, int64(600), l.VaultUnits().Int64())
	// Supply is unchanged; the vault holds the units now
	assert.Equal(t, int64(1000), l.TotalSupply().Int64())

	released := l.BurnFromVault(alice, big.NewInt(600))
	assert.Equal(t, int64(600), released.Int64())
	assert.Zero(t, l.VaultUnits().Int64())
	assert.Equal(t, int64(400), l.TotalSupply().Int64())
	assert.Equal(t, int64(600), l.CustodyOf(alice).Int64())
}

func TestLedgerBurnFromVaultCapsAtAccountBalance(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(100)))
	require.NoError(t, l.Deposit(alice, big.NewInt(100)))
	require.NoError(t, l.MoveToVault(alice, big.NewInt(100)))

	// More backing in the pool than alice's recorded account balance
	l.CreditYield(big.NewInt(1000))

	released := l.BurnFromVault(alice, big.NewInt(100))
	assert.Equal(t, int64(100), released.Int64())
}

func TestLedgerPayOutCapsAtHeld(t *testing.T) {
	l := newTestLedger()

	require.NoError(t, l.CreditUnderlying(alice, big.NewInt(100)))
	require.NoError(t, l.Deposit(alice, big.NewInt(100)))

	paid := l.PayOut(bob, big.NewInt(500))
	assert.Equal(t, int64(100), paid.Int64())
	assert.Zero(t, l.Held().Int64())

	paid = l.PayOut(bob, big.NewInt(1))
	assert.Zero(t, paid.Int64())
}
