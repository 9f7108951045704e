package treasury

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// Pricer converts a unit-of-account amount into underlying via the pooled
// vault's current share price. The ledger only needs this one conversion.
type Pricer interface {
	RedeemValue(units *big.Int) *big.Int
}

// Ledger owns the 1:1 relationship between recorded underlying backing and the
// issued unit-of-account. It also keeps the custody balances of underlying
// held for principals outside the treasury, so deposits and payouts are plain
// moves between custody and the treasury's held total.
type Ledger struct {
	// units is the issued unit-of-account balance per principal
	units map[common.Address]*big.Int

	// supply is the total unit-of-account outstanding, vault holdings included
	supply *big.Int

	// vaultUnits is the portion of supply currently held by the pooled vault
	vaultUnits *big.Int

	// accounts is the recorded underlying backing per principal (AccountBalance)
	accounts map[common.Address]*big.Int

	// custody is underlying owned by principals but not yet deposited
	custody map[common.Address]*big.Int

	// held is underlying under treasury control, protocol placements included
	held *big.Int

	pricer Pricer
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		units:      make(map[common.Address]*big.Int),
		supply:     new(big.Int),
		vaultUnits: new(big.Int),
		accounts:   make(map[common.Address]*big.Int),
		custody:    make(map[common.Address]*big.Int),
		held:       new(big.Int),
	}
}

// SetPricer wires the vault's share price into redemption. Must be called
// before Redeem.
func (l *Ledger) SetPricer(p Pricer) { l.pricer = p }

// UnitsOf returns the issued unit-of-account balance of a principal.
func (l *Ledger) UnitsOf(p common.Address) *big.Int { return model.Clone(l.units[p]) }

// AccountOf returns the recorded underlying backing of a principal.
func (l *Ledger) AccountOf(p common.Address) *big.Int { return model.Clone(l.accounts[p]) }

// CustodyOf returns the undeposited underlying balance of a principal.
func (l *Ledger) CustodyOf(p common.Address) *big.Int { return model.Clone(l.custody[p]) }

// TotalSupply returns the total unit-of-account outstanding.
func (l *Ledger) TotalSupply() *big.Int { return model.Clone(l.supply) }

// Held returns the underlying currently under treasury control.
func (l *Ledger) Held() *big.Int { return model.Clone(l.held) }

// VaultUnits returns the unit-of-account held by the pooled vault.
func (l *Ledger) VaultUnits() *big.Int { return model.Clone(l.vaultUnits) }

// CreditUnderlying records an inflow of underlying for a principal at the
// custody boundary (settlement of an external transfer).
func (l *Ledger) CreditUnderlying(p common.Address, amount *big.Int) error {
	if p == (common.Address{}) {
		return model.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	addTo(l.custody, p, amount)
	return nil
}

// Deposit pulls amount of underlying from the principal's custody balance and
// mints the same amount of unit-of-account. One underlying unit is always one
// issued unit; there is no rounding on this path.
func (l *Ledger) Deposit(p common.Address, amount *big.Int) error {
	if p == (common.Address{}) {
		return model.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	if balanceOf(l.custody, p).Cmp(amount) < 0 {
		return fmt.Errorf("deposit of %s: %w", amount, model.ErrInsufficientBalance)
	}

	subFrom(l.custody, p, amount)
	l.held.Add(l.held, amount)
	addTo(l.units, p, amount)
	l.supply.Add(l.supply, amount)
	addTo(l.accounts, p, amount)

	logrus.WithFields(logrus.Fields{
		"principal": p.Hex(),
		"amount":    amount.String(),
	}).Debug("Minted unit-of-account against deposit")
	return nil
}

// Redeem burns units of unit-of-account held by the principal and returns the
// underlying amount transferred out. The conversion goes through the vault's
// share price with floor rounding, but never returns less than units, so
// principals outside the vault cannot be under-redeemed by share price drift.
func (l *Ledger) Redeem(p common.Address, units *big.Int) (*big.Int, error) {
	if p == (common.Address{}) {
		return nil, model.ErrZeroAddress
	}
	if units == nil || units.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if balanceOf(l.units, p).Cmp(units) < 0 {
		return nil, fmt.Errorf("redeem of %s: %w", units, model.ErrInsufficientBalance)
	}

	out := l.pricer.RedeemValue(units)
	if out.Cmp(units) < 0 {
		out = model.Clone(units)
	}
	// Never pay out more underlying than the treasury actually controls
	if out.Cmp(l.held) > 0 {
		out = model.Clone(l.held)
	}

	subFrom(l.units, p, units)
	l.supply.Sub(l.supply, units)
	clampSub(l.accounts, p, units)
	l.held.Sub(l.held, out)
	addTo(l.custody, p, out)

	logrus.WithFields(logrus.Fields{
		"principal": p.Hex(),
		"units":     units.String(),
		"underlying": out.String(),
	}).Debug("Burned unit-of-account on redemption")
	return out, nil
}

// Transfer moves previously issued unit-of-account between two principals.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return model.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	if balanceOf(l.units, from).Cmp(amount) < 0 {
		return fmt.Errorf("unit transfer of %s: %w", amount, model.ErrInsufficientBalance)
	}
	subFrom(l.units, from, amount)
	addTo(l.units, to, amount)
	return nil
}

// MintBacked issues units against underlying the treasury already holds, used
// for referral rewards carved out of received proceeds. The backing stays in
// the held pool and is recorded on the recipient's account balance.
func (l *Ledger) MintBacked(p common.Address, amount *big.Int) error {
	if p == (common.Address{}) {
		return model.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	addTo(l.units, p, amount)
	l.supply.Add(l.supply, amount)
	addTo(l.accounts, p, amount)
	return nil
}

// MoveToVault shifts units from a principal into the pooled vault's holdings.
func (l *Ledger) MoveToVault(p common.Address, units *big.Int) error {
	if balanceOf(l.units, p).Cmp(units) < 0 {
		return fmt.Errorf("vault deposit of %s: %w", units, model.ErrInsufficientBalance)
	}
	subFrom(l.units, p, units)
	l.vaultUnits.Add(l.vaultUnits, units)
	return nil
}

// BurnFromVault burns vault-held units on behalf of a principal and releases
// the matching underlying to the principal's custody balance. The released
// amount is capped by the principal's recorded account balance, so a
// yield-inflated share price can never drain more backing than was tracked.
// Returns the underlying actually released.
func (l *Ledger) BurnFromVault(p common.Address, units *big.Int) *big.Int {
	if units.Cmp(l.vaultUnits) > 0 {
		units = model.Clone(l.vaultUnits)
	}
	l.vaultUnits.Sub(l.vaultUnits, units)
	l.supply.Sub(l.supply, units)

	out := model.Clone(units)
	if acct := balanceOf(l.accounts, p); out.Cmp(acct) > 0 {
		out = model.Clone(acct)
	}
	clampSub(l.accounts, p, units)
	return l.releaseTo(p, out)
}

// ReceiveProceeds records underlying paid into the treasury by a buyer.
func (l *Ledger) ReceiveProceeds(buyer common.Address, amount *big.Int) error {
	if balanceOf(l.custody, buyer).Cmp(amount) < 0 {
		return fmt.Errorf("proceeds of %s: %w", amount, model.ErrInsufficientBalance)
	}
	subFrom(l.custody, buyer, amount)
	l.held.Add(l.held, amount)
	return nil
}

// PayOut releases up to amount of held underlying to a principal's custody
// balance and returns the amount actually moved.
func (l *Ledger) PayOut(p common.Address, amount *big.Int) *big.Int {
	return l.releaseTo(p, amount)
}

// CreditYield records underlying gained from the yield protocols beyond what
// was already counted as held.
func (l *Ledger) CreditYield(amount *big.Int) {
	if amount != nil && amount.Sign() > 0 {
		l.held.Add(l.held, amount)
	}
}

func (l *Ledger) releaseTo(p common.Address, amount *big.Int) *big.Int {
	out := model.Clone(amount)
	if out.Cmp(l.held) > 0 {
		out = model.Clone(l.held)
	}
	if out.Sign() <= 0 {
		return new(big.Int)
	}
	l.held.Sub(l.held, out)
	addTo(l.custody, p, out)
	return out
}

// balanceOf returns the stored balance or zero, never nil.
func balanceOf(m map[common.Address]*big.Int, p common.Address) *big.Int {
	if b, ok := m[p]; ok {
		return b
	}
	return new(big.Int)
}

func addTo(m map[common.Address]*big.Int, p common.Address, amount *big.Int) {
	if b, ok := m[p]; ok {
		b.Add(b, amount)
		return
	}
	m[p] = model.Clone(amount)
}

// subFrom assumes the caller verified sufficiency.
func subFrom(m map[common.Address]*big.Int, p common.Address, amount *big.Int) {
	if b, ok := m[p]; ok {
		b.Sub(b, amount)
	}
}

// clampSub decrements toward zero and stops there instead of underflowing.
// Balances trend toward zero but are never removed from the mapping.
func clampSub(m map[common.Address]*big.Int, p common.Address, amount *big.Int) {
	b, ok := m[p]
	if !ok {
		m[p] = new(big.Int)
		return
	}
	if b.Cmp(amount) <= 0 {
		b.SetInt64(0)
		return
	}
	b.Sub(b, amount)
}
