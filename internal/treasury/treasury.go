// Package treasury implements the ledger and yield-routing engine: 1:1
// minting of the unit-of-account, proportional vault shares, fee
// distribution, allocation across two external yield protocols, stake
// locking, and proportional yield claims.
package treasury

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
	"github.com/jovemjeune/gnosisland-treasury/internal/protocol"
)

// Options configures a Service at construction.
type Options struct {
	Owner            common.Address
	AuthorizedCaller common.Address

	Alpha protocol.Client
	Beta  protocol.Client

	// AllocationPercent toward protocol alpha (0-100, default 90)
	AllocationPercent int

	// LockPeriod for stake entries (default 24h)
	LockPeriod time.Duration

	// MinPurchasePrice is enforced on the post-discount proceeds
	MinPurchasePrice *big.Int

	// Circuit breaker settings for the protocol clients
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
}

// Service is the treasury: one explicit object owning the ledger, vault, lock
// registry, router, and referral table. Every externally triggered operation
// runs to completion atomically under s.mu; the entered flag additionally
// rejects a call re-entering the engine before the current operation
// finishes.
type Service struct {
	mu      sync.Mutex
	entered atomic.Bool

	paused bool
	owner  common.Address
	caller common.Address

	ledger    *Ledger
	vault     *Vault
	locks     *LockRegistry
	router    *Router
	referrals *Referrals

	// revenuePool is strictly additive from fee splits and never available to
	// any staker-facing claim or withdrawal
	revenuePool *big.Int

	// totalWithdrawn gates claims: a principal who has never unstaked cannot claim
	totalWithdrawn map[common.Address]*big.Int

	minPurchasePrice *big.Int
}

// New constructs the treasury service.
func New(opts Options) (*Service, error) {
	if opts.Owner == (common.Address{}) || opts.AuthorizedCaller == (common.Address{}) {
		return nil, model.ErrZeroAddress
	}
	if opts.Alpha == nil || opts.Beta == nil {
		return nil, fmt.Errorf("both protocol clients are required")
	}
	if opts.AllocationPercent == 0 {
		opts.AllocationPercent = DefaultAllocationPercent
	}
	minPrice := opts.MinPurchasePrice
	if minPrice == nil {
		minPrice = new(big.Int)
	}

	ledger := NewLedger()
	vault := NewVault()
	ledger.SetPricer(vault)

	s := &Service{
		owner:            opts.Owner,
		caller:           opts.AuthorizedCaller,
		ledger:           ledger,
		vault:            vault,
		locks:            NewLockRegistry(opts.LockPeriod),
		router:           NewRouter(opts.Alpha, opts.Beta, opts.AllocationPercent, opts.BreakerFailureThreshold, opts.BreakerCooldown),
		referrals:        NewReferrals(),
		revenuePool:      new(big.Int),
		totalWithdrawn:   make(map[common.Address]*big.Int),
		minPurchasePrice: model.Clone(minPrice),
	}

	logrus.WithFields(logrus.Fields{
		"owner":              opts.Owner.Hex(),
		"authorized_caller":  opts.AuthorizedCaller.Hex(),
		"allocation_percent": s.router.Percent(),
		"min_price":          s.minPurchasePrice.String(),
	}).Info("Treasury initialized")
	return s, nil
}

// Router exposes the yield router for metrics wiring.
func (s *Service) Router() *Router { return s.router }

// enter begins a critical section. The entered flag is claimed before the
// mutex is taken: a nested call arriving from inside an operation in flight
// (a protocol client calling back into the engine) must get ErrReentrancy,
// and blocking on the non-reentrant mutex there would deadlock instead. A
// rejected caller retries; the mutex still serializes against the read paths.
func (s *Service) enter() error {
	if !s.entered.CompareAndSwap(false, true) {
		return model.ErrReentrancy
	}
	s.mu.Lock()
	return nil
}

func (s *Service) exit() {
	s.entered.Store(false)
	s.mu.Unlock()
}

// Fund credits underlying to a principal's custody balance. It is the
// settlement boundary for external transfers in, restricted to the authorized
// caller like the fee entry point.
func (s *Service) Fund(caller, principal common.Address, amount *big.Int) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.caller {
		return model.ErrUnauthorizedCaller
	}
	return s.ledger.CreditUnderlying(principal, amount)
}

// Deposit mints amount of unit-of-account to the principal against the same
// amount of underlying pulled from its custody balance.
func (s *Service) Deposit(principal common.Address, amount *big.Int) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if s.paused {
		return model.ErrPaused
	}
	return s.ledger.Deposit(principal, amount)
}

// Redeem burns units of the principal's unit-of-account and returns the
// underlying amount released to its custody balance.
func (s *Service) Redeem(principal common.Address, units *big.Int) (*big.Int, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.exit()

	if s.paused {
		return nil, model.ErrPaused
	}
	return s.ledger.Redeem(principal, units)
}

// Stake moves units of unit-of-account into the pooled vault, mints
// proportional shares, opens or extends the principal's direct lock entry,
// and routes the backing through the yield protocols.
func (s *Service) Stake(ctx context.Context, principal common.Address, units *big.Int) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if s.paused {
		return model.ErrPaused
	}
	if principal == (common.Address{}) {
		return model.ErrZeroAddress
	}
	if units == nil || units.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	if s.ledger.UnitsOf(principal).Cmp(units) < 0 {
		return fmt.Errorf("stake of %s: %w", units, model.ErrInsufficientBalance)
	}
	if s.vault.ConvertToShares(units).Sign() == 0 {
		return fmt.Errorf("stake of %s mints no shares: %w", units, model.ErrInvalidAmount)
	}

	if err := s.ledger.MoveToVault(principal, units); err != nil {
		return err
	}
	shares, err := s.vault.Deposit(principal, units)
	if err != nil {
		return err
	}
	if err := s.locks.Add(principal, units, model.StakeDirect); err != nil {
		return err
	}
	if err := s.router.Allocate(ctx, units); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"principal": principal.Hex(),
		"units":     units.String(),
		"shares":    shares.String(),
	}).Info("Stake registered")
	return nil
}

// Unstake withdraws amount from the principal's direct stake once the lock
// period has elapsed. Returns the underlying released.
func (s *Service) Unstake(ctx context.Context, principal common.Address, amount *big.Int) (*big.Int, error) {
	return s.unstake(ctx, principal, amount, model.StakeDirect)
}

// UnstakeReferral withdraws amount from the principal's referral-reward stake
// once the lock period has elapsed. Returns the underlying released.
func (s *Service) UnstakeReferral(ctx context.Context, principal common.Address, amount *big.Int) (*big.Int, error) {
	return s.unstake(ctx, principal, amount, model.StakeReferral)
}

func (s *Service) unstake(ctx context.Context, principal common.Address, amount *big.Int, cat model.StakeCategory) (*big.Int, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.exit()

	if s.paused {
		return nil, model.ErrPaused
	}
	if principal == (common.Address{}) {
		return nil, model.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if amount.Cmp(s.locks.Withdrawable(principal, cat)) > 0 {
		return nil, fmt.Errorf("unstake of %s: %w", amount, model.ErrStakeStillLocked)
	}

	if _, err := s.vault.Withdraw(principal, amount); err != nil {
		return nil, err
	}
	if err := s.locks.Consume(principal, amount, cat); err != nil {
		return nil, err
	}
	s.router.WithdrawProportional(ctx, amount)
	released := s.ledger.BurnFromVault(principal, amount)

	addTo(s.totalWithdrawn, principal, amount)
	if cat == model.StakeReferral {
		s.referrals.NoteWithdrawal(principal, amount)
	}

	logrus.WithFields(logrus.Fields{
		"principal": principal.Hex(),
		"category":  cat.String(),
		"amount":    amount.String(),
		"released":  released.String(),
	}).Info("Stake withdrawn")
	return released, nil
}

// Claimable computes the yield currently claimable by the principal: its
// proportional share of the available yield across both protocols, capped so
// the protocol revenue pool is never treated as available.
func (s *Service) Claimable(ctx context.Context, principal common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimable(ctx, principal)
}

func (s *Service) claimable(ctx context.Context, principal common.Address) *big.Int {
	held, total := s.vault.SharePercent(principal)
	if held.Sign() == 0 || total.Sign() == 0 {
		return new(big.Int)
	}
	yield := s.router.TotalAvailableYield(ctx)
	if yield.Sign() == 0 {
		return new(big.Int)
	}
	amount := new(big.Int).Mul(yield, held)
	amount.Div(amount, total)

	// The revenue pool is permanently excluded from claims
	if limit := s.availableForClaims(); amount.Cmp(limit) > 0 {
		amount.Set(limit)
	}
	return amount
}

// availableForClaims is the underlying the treasury may pay to claimants:
// everything held minus the protocol revenue pool, floored at zero.
func (s *Service) availableForClaims() *big.Int {
	available := new(big.Int).Sub(s.ledger.Held(), s.revenuePool)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return available
}

// Claim pays out the principal's claimable yield, drawing it back from the
// protocols in proportion to their tracked deposits. A principal that has
// never performed a withdrawal cannot claim.
func (s *Service) Claim(ctx context.Context, principal common.Address) (*big.Int, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.exit()

	if s.paused {
		return nil, model.ErrPaused
	}
	if principal == (common.Address{}) {
		return nil, model.ErrZeroAddress
	}
	if balanceOf(s.totalWithdrawn, principal).Sign() == 0 {
		return nil, fmt.Errorf("no prior withdrawal: %w", model.ErrStakeStillLocked)
	}

	amount := s.claimable(ctx, principal)
	if amount.Sign() == 0 {
		return nil, model.ErrNothingToClaim
	}

	got := s.router.DrawYield(ctx, amount)
	s.ledger.CreditYield(got)

	payout := model.Clone(amount)
	if limit := s.availableForClaims(); payout.Cmp(limit) > 0 {
		payout.Set(limit)
	}
	paid := s.ledger.PayOut(principal, payout)
	if paid.Sign() == 0 {
		return nil, model.ErrNothingToClaim
	}

	logrus.WithFields(logrus.Fields{
		"principal": principal.Hex(),
		"claimed":   paid.String(),
	}).Info("Yield claimed")
	return paid, nil
}

// ReceiveFee handles one completed purchase reported by the catalog layer:
// applies the scenario's discount and split, credits protocol revenue, routes
// the staker leg into the yield protocols, pays the beneficiary, and mints
// plus locks the referrer reward when one applies. Restricted to the
// authorized caller.
func (s *Service) ReceiveFee(ctx context.Context, caller common.Address, receipt model.FeeReceipt) (model.FeeSplit, error) {
	if err := s.enter(); err != nil {
		return model.FeeSplit{}, err
	}
	defer s.exit()

	if caller != s.caller {
		return model.FeeSplit{}, model.ErrUnauthorizedCaller
	}
	if s.paused {
		return model.FeeSplit{}, model.ErrPaused
	}
	if receipt.Buyer == (common.Address{}) || receipt.Beneficiary == (common.Address{}) {
		return model.FeeSplit{}, model.ErrZeroAddress
	}
	if receipt.Scenario == model.ScenarioReferred && receipt.Referrer == (common.Address{}) {
		return model.FeeSplit{}, model.ErrZeroAddress
	}

	split, err := ComputeSplit(receipt.Gross, receipt.Scenario)
	if err != nil {
		return model.FeeSplit{}, err
	}
	// Rejected before any funds move
	if split.Net.Cmp(s.minPurchasePrice) < 0 {
		return model.FeeSplit{}, fmt.Errorf("price %s below minimum %s after discount: %w",
			split.Net, s.minPurchasePrice, model.ErrInvalidAmount)
	}
	// Same pre-move rule for the reward: a reward too small to mint shares
	// would fail midway through the referral leg
	if split.Referrer.Sign() > 0 && s.vault.ConvertToShares(split.Referrer).Sign() == 0 {
		return model.FeeSplit{}, fmt.Errorf("referral reward of %s mints no shares: %w",
			split.Referrer, model.ErrInvalidAmount)
	}
	if receipt.ReferralReward != nil && receipt.ReferralReward.Sign() > 0 &&
		receipt.ReferralReward.Cmp(split.Referrer) != 0 {
		logrus.Warnf("Reported referral reward %s differs from computed %s, using computed",
			receipt.ReferralReward, split.Referrer)
	}

	if err := s.ledger.ReceiveProceeds(receipt.Buyer, split.Net); err != nil {
		return model.FeeSplit{}, err
	}
	s.revenuePool.Add(s.revenuePool, split.Revenue)
	if split.Staker.Sign() > 0 {
		if err := s.router.Allocate(ctx, split.Staker); err != nil {
			return model.FeeSplit{}, err
		}
	}
	if split.Beneficiary.Sign() > 0 {
		s.ledger.PayOut(receipt.Beneficiary, split.Beneficiary)
	}
	if split.Referrer.Sign() > 0 {
		if err := s.processReferralReward(ctx, receipt.Referrer, split.Referrer); err != nil {
			return model.FeeSplit{}, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"scenario":    receipt.Scenario.String(),
		"net":         split.Net.String(),
		"revenue":     split.Revenue.String(),
		"staker":      split.Staker.String(),
		"beneficiary": split.Beneficiary.String(),
		"referrer":    split.Referrer.String(),
	}).Info("Fee distributed")
	return split, nil
}

// processReferralReward mints the reward 1:1-backed by proceeds the treasury
// retained, pools it in the vault, and locks it under the referral category
// so the referrer cannot touch it until the lock period elapses.
func (s *Service) processReferralReward(ctx context.Context, referrer common.Address, reward *big.Int) error {
	if err := s.ledger.MintBacked(referrer, reward); err != nil {
		return err
	}
	if err := s.ledger.MoveToVault(referrer, reward); err != nil {
		return err
	}
	if _, err := s.vault.Deposit(referrer, reward); err != nil {
		return err
	}
	if err := s.locks.Add(referrer, reward, model.StakeReferral); err != nil {
		return err
	}
	if err := s.router.Allocate(ctx, reward); err != nil {
		return err
	}
	s.referrals.Record(referrer, reward)
	return nil
}

// HandleUnitPayment transfers previously issued unit-of-account between two
// principals on behalf of the catalog layer. Restricted to the authorized
// caller.
func (s *Service) HandleUnitPayment(caller common.Address, amount *big.Int, from, to common.Address) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.caller {
		return model.ErrUnauthorizedCaller
	}
	if s.paused {
		return model.ErrPaused
	}
	return s.ledger.Transfer(from, to, amount)
}

// ReferrerStats returns the cumulative statistics for a referrer.
func (s *Service) ReferrerStats(referrer common.Address) model.ReferrerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referrals.StatsOf(referrer)
}

// Withdrawable returns the withdrawable amount for a (principal, category).
func (s *Service) Withdrawable(principal common.Address, cat model.StakeCategory) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks.Withdrawable(principal, cat)
}

// UnitsOf returns the issued unit-of-account balance of a principal.
func (s *Service) UnitsOf(principal common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.UnitsOf(principal)
}

// AccountOf returns the recorded underlying backing of a principal.
func (s *Service) AccountOf(principal common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.AccountOf(principal)
}

// CustodyOf returns the undeposited underlying balance of a principal.
func (s *Service) CustodyOf(principal common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CustodyOf(principal)
}

// SharesOf returns the vault share balance of a principal.
func (s *Service) SharesOf(principal common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.SharesOf(principal)
}

// RevenuePool returns the accumulated protocol revenue.
func (s *Service) RevenuePool() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Clone(s.revenuePool)
}

// Paused reports whether the system-wide halt is engaged.
func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
