package treasury

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// Virtual offsets seeded at construction. They make the very first depositor's
// share price resistant to a large unsolicited transfer into the vault: an
// attacker inflating totalAssets cheaply cannot push the price far enough to
// make the first real depositor's shares worth much less than deposited.
const (
	VirtualShares = 1000
	VirtualAssets = 1000
)

// Vault issues proportional shares against unit-of-account pooled for yield
// eligibility. Share math uses floor division throughout.
type Vault struct {
	shares      map[common.Address]*big.Int
	totalShares *big.Int

	// totalAssets is the unit-of-account the vault holds, donations included
	totalAssets *big.Int

	virtualShares *big.Int
	virtualAssets *big.Int
}

// NewVault creates an empty vault with the virtual offsets seeded.
func NewVault() *Vault {
	return &Vault{
		shares:        make(map[common.Address]*big.Int),
		totalShares:   new(big.Int),
		totalAssets:   new(big.Int),
		virtualShares: big.NewInt(VirtualShares),
		virtualAssets: big.NewInt(VirtualAssets),
	}
}

// SharesOf returns the share balance of a principal.
func (v *Vault) SharesOf(p common.Address) *big.Int { return model.Clone(v.shares[p]) }

// TotalShares returns the shares outstanding, excluding the virtual offset.
func (v *Vault) TotalShares() *big.Int { return model.Clone(v.totalShares) }

// TotalAssets returns the unit-of-account pooled in the vault.
func (v *Vault) TotalAssets() *big.Int { return model.Clone(v.totalAssets) }

// ConvertToShares returns the shares a deposit of units buys at the current
// share price: units * (totalShares + VS) / (totalAssets + VA), floored.
func (v *Vault) ConvertToShares(units *big.Int) *big.Int {
	num := new(big.Int).Add(v.totalShares, v.virtualShares)
	num.Mul(num, units)
	den := new(big.Int).Add(v.totalAssets, v.virtualAssets)
	return num.Div(num, den)
}

// ConvertToAssets returns the unit-of-account value of a share count at the
// current share price, floored.
func (v *Vault) ConvertToAssets(shares *big.Int) *big.Int {
	num := new(big.Int).Add(v.totalAssets, v.virtualAssets)
	num.Mul(num, shares)
	den := new(big.Int).Add(v.totalShares, v.virtualShares)
	return num.Div(num, den)
}

// RedeemValue converts a unit-of-account amount to underlying via a share
// round trip at the current price. Implements the ledger's Pricer.
func (v *Vault) RedeemValue(units *big.Int) *big.Int {
	return v.ConvertToAssets(v.ConvertToShares(units))
}

// Deposit pools units of unit-of-account and mints the proportional shares to
// the principal. Returns the shares minted.
func (v *Vault) Deposit(p common.Address, units *big.Int) (*big.Int, error) {
	if units == nil || units.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}
	minted := v.ConvertToShares(units)
	if minted.Sign() <= 0 {
		return nil, fmt.Errorf("deposit of %s mints no shares: %w", units, model.ErrInvalidAmount)
	}
	addTo(v.shares, p, minted)
	v.totalShares.Add(v.totalShares, minted)
	v.totalAssets.Add(v.totalAssets, units)
	return minted, nil
}

// Withdraw burns the shares corresponding to units of unit-of-account and
// removes the units from the pool. Returns the shares burned.
func (v *Vault) Withdraw(p common.Address, units *big.Int) (*big.Int, error) {
	if units == nil || units.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}
	burned := v.ConvertToShares(units)
	held := balanceOf(v.shares, p)
	if burned.Cmp(held) > 0 {
		// Floor rounding can leave a dust share short of the entry; take the
		// full holding in that case rather than stranding it
		if v.ConvertToAssets(held).Cmp(units) >= 0 {
			burned = model.Clone(held)
		} else {
			return nil, fmt.Errorf("withdrawal of %s units: %w", units, model.ErrInsufficientBalance)
		}
	}
	subFrom(v.shares, p, burned)
	v.totalShares.Sub(v.totalShares, burned)
	if units.Cmp(v.totalAssets) > 0 {
		v.totalAssets.SetInt64(0)
	} else {
		v.totalAssets.Sub(v.totalAssets, units)
	}
	return burned, nil
}

// Donate records a direct unsolicited transfer of unit-of-account into the
// vault. It raises the share price for everyone and mints nothing.
func (v *Vault) Donate(units *big.Int) {
	if units != nil && units.Sign() > 0 {
		v.totalAssets.Add(v.totalAssets, units)
	}
}

// SharePercent returns the principal's shares and the total outstanding, for
// proportional yield computations.
func (v *Vault) SharePercent(p common.Address) (held, total *big.Int) {
	return v.SharesOf(p), v.TotalShares()
}
