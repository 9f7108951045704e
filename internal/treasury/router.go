package treasury

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/circuitbreaker"
	"github.com/jovemjeune/gnosisland-treasury/internal/model"
	"github.com/jovemjeune/gnosisland-treasury/internal/protocol"
	"github.com/jovemjeune/gnosisland-treasury/internal/types"
	"github.com/jovemjeune/gnosisland-treasury/internal/validation"
)

// DefaultAllocationPercent of every allocation goes to protocol alpha.
const DefaultAllocationPercent = 90

// routedProtocol pairs a client with its failure tracking and tracked deposit.
type routedProtocol struct {
	client  protocol.Client
	breaker *circuitbreaker.CircuitBreaker

	// tracked is the amount recorded as placed with this protocol. It is
	// updated even when the external call fails, so it can drift from the
	// protocol's actual books. That absorb-and-proceed behavior is kept on
	// purpose; see DESIGN.md.
	tracked *big.Int
}

// Router splits pooled funds between the two external yield protocols by a
// fixed percentage and pulls funds back on demand, tolerating partial
// fulfillment. External call failures are absorbed locally so a protocol
// outage cannot stall treasury accounting.
type Router struct {
	alpha *routedProtocol
	beta  *routedProtocol

	// percent of each allocation routed to alpha (0-100)
	percent int

	// totalStaked is the pooled amount currently recorded across both protocols
	totalStaked *big.Int

	reportOpts validation.Options

	// ErrorHook is invoked with the protocol name whenever an external call
	// fails or is skipped, for metrics
	ErrorHook func(name string)
}

// NewRouter creates a router over the two protocol clients.
func NewRouter(alpha, beta protocol.Client, percent, failureThreshold int, cooldown time.Duration) *Router {
	if percent < 0 || percent > 100 {
		percent = DefaultAllocationPercent
	}
	return &Router{
		alpha: &routedProtocol{
			client:  alpha,
			breaker: circuitbreaker.New(string(types.ProtocolAlpha), failureThreshold, cooldown),
			tracked: new(big.Int),
		},
		beta: &routedProtocol{
			client:  beta,
			breaker: circuitbreaker.New(string(types.ProtocolBeta), failureThreshold, cooldown),
			tracked: new(big.Int),
		},
		percent:     percent,
		totalStaked: new(big.Int),
		reportOpts:  validation.DefaultOptions(),
	}
}

// SetPercent updates the allocation percentage toward protocol alpha.
func (r *Router) SetPercent(percent int) error {
	if percent < 0 || percent > 100 {
		return model.ErrInvalidAmount
	}
	r.percent = percent
	return nil
}

// Percent returns the current allocation percentage toward protocol alpha.
func (r *Router) Percent() int { return r.percent }

// SetClients swaps the external protocol clients (admin surface).
func (r *Router) SetClients(alpha, beta protocol.Client) {
	if alpha != nil {
		r.alpha.client = alpha
	}
	if beta != nil {
		r.beta.client = beta
	}
}

// Tracked returns the amount recorded as placed with the named protocol.
func (r *Router) Tracked(name types.ProtocolName) *big.Int {
	return model.Clone(r.route(name).tracked)
}

// TotalStaked returns the pooled amount recorded across both protocols.
func (r *Router) TotalStaked() *big.Int { return model.Clone(r.totalStaked) }

// BreakerState reports the circuit state for the named protocol.
func (r *Router) BreakerState(name types.ProtocolName) circuitbreaker.State {
	return r.route(name).breaker.GetState()
}

// Allocate splits amount between the protocols (percent toward alpha, the
// remainder toward beta) and supplies each leg. A failed or skipped external
// call is absorbed: the leg is still recorded as allocated.
func (r *Router) Allocate(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrInvalidAmount
	}
	toAlpha := new(big.Int).Mul(amount, big.NewInt(int64(r.percent)))
	toAlpha.Div(toAlpha, big.NewInt(100))
	toBeta := new(big.Int).Sub(amount, toAlpha)

	r.supply(ctx, r.alpha, toAlpha)
	r.supply(ctx, r.beta, toBeta)
	r.totalStaked.Add(r.totalStaked, amount)
	return nil
}

func (r *Router) supply(ctx context.Context, rp *routedProtocol, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	name := string(rp.client.Name())
	if rp.breaker.Allow() {
		supplied, positionID, err := rp.client.Supply(ctx, amount)
		if err != nil {
			rp.breaker.Failure(err.Error())
			r.noteError(name)
			logrus.Warnf("Supply of %s to %s failed, recording allocation anyway: %v", amount, name, err)
		} else {
			rp.breaker.Success()
			if supplied.Cmp(amount) != 0 {
				logrus.Warnf("Protocol %s accepted %s of %s requested (position %s)", name, supplied, amount, positionID)
			}
		}
	} else {
		r.noteError(name)
		logrus.Warnf("Circuit open for %s, skipping supply of %s", name, amount)
	}
	// Recorded regardless of the call outcome
	rp.tracked.Add(rp.tracked, amount)
}

// RequestWithdrawal pulls up to amount back from the named protocol, capped at
// its tracked deposit, and returns the amount obtained. On external failure
// the requested amount is assumed obtained; the tracked amount and pooled
// total are decremented either way.
func (r *Router) RequestWithdrawal(ctx context.Context, name types.ProtocolName, amount *big.Int) *big.Int {
	rp := r.route(name)
	capped := model.Clone(amount)
	if capped.Cmp(rp.tracked) > 0 {
		capped.Set(rp.tracked)
	}
	if capped.Sign() <= 0 {
		return new(big.Int)
	}

	got := model.Clone(capped)
	if rp.breaker.Allow() {
		returned, err := rp.client.Withdraw(ctx, capped)
		if err != nil {
			rp.breaker.Failure(err.Error())
			r.noteError(string(name))
			logrus.Warnf("Withdrawal of %s from %s failed, assuming requested amount obtained: %v", capped, name, err)
		} else {
			rp.breaker.Success()
			if returned.Cmp(capped) < 0 {
				got.Set(returned)
			}
		}
	} else {
		r.noteError(string(name))
		logrus.Warnf("Circuit open for %s, assuming withdrawal of %s obtained", name, capped)
	}

	rp.tracked.Sub(rp.tracked, got)
	if rp.tracked.Sign() < 0 {
		rp.tracked.SetInt64(0)
	}
	r.totalStaked.Sub(r.totalStaked, got)
	if r.totalStaked.Sign() < 0 {
		r.totalStaked.SetInt64(0)
	}
	return got
}

// WithdrawProportional pulls amount back across both protocols in proportion
// to their tracked deposits and returns the total obtained.
func (r *Router) WithdrawProportional(ctx context.Context, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	total := new(big.Int).Add(r.alpha.tracked, r.beta.tracked)
	if total.Sign() == 0 {
		return new(big.Int)
	}
	fromAlpha := new(big.Int).Mul(amount, r.alpha.tracked)
	fromAlpha.Div(fromAlpha, total)
	fromBeta := new(big.Int).Sub(amount, fromAlpha)

	got := r.RequestWithdrawal(ctx, types.ProtocolAlpha, fromAlpha)
	got.Add(got, r.RequestWithdrawal(ctx, types.ProtocolBeta, fromBeta))
	return got
}

// AvailableYield queries the named protocol's valuation of the position and
// returns its excess over the tracked deposit. Unavailable, implausible, or
// non-positive deltas all resolve to zero.
func (r *Router) AvailableYield(ctx context.Context, name types.ProtocolName) *big.Int {
	rp := r.route(name)
	if rp.tracked.Sign() == 0 {
		return new(big.Int)
	}
	if !rp.breaker.Allow() {
		r.noteError(string(name))
		return new(big.Int)
	}
	reported, err := rp.client.QueryPosition(ctx)
	if err != nil {
		rp.breaker.Failure(err.Error())
		r.noteError(string(name))
		logrus.Warnf("Position query for %s failed: %v", name, err)
		return new(big.Int)
	}
	rp.breaker.Success()
	return validation.YieldDelta(rp.tracked, reported, r.reportOpts)
}

// TotalAvailableYield sums AvailableYield over both protocols.
func (r *Router) TotalAvailableYield(ctx context.Context) *big.Int {
	total := r.AvailableYield(ctx, types.ProtocolAlpha)
	total.Add(total, r.AvailableYield(ctx, types.ProtocolBeta))
	return total
}

// DrawYield pulls amount of accrued yield back across both protocols in
// proportion to their tracked deposits, without touching the tracked
// principal, and returns the total obtained. On external failure the
// requested amount is assumed obtained, matching RequestWithdrawal.
func (r *Router) DrawYield(ctx context.Context, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	total := new(big.Int).Add(r.alpha.tracked, r.beta.tracked)
	if total.Sign() == 0 {
		return new(big.Int)
	}
	fromAlpha := new(big.Int).Mul(amount, r.alpha.tracked)
	fromAlpha.Div(fromAlpha, total)
	fromBeta := new(big.Int).Sub(amount, fromAlpha)

	got := r.drawYieldFrom(ctx, r.alpha, fromAlpha)
	got.Add(got, r.drawYieldFrom(ctx, r.beta, fromBeta))
	return got
}

func (r *Router) drawYieldFrom(ctx context.Context, rp *routedProtocol, amount *big.Int) *big.Int {
	if amount.Sign() <= 0 {
		return new(big.Int)
	}
	name := string(rp.client.Name())
	got := model.Clone(amount)
	if rp.breaker.Allow() {
		returned, err := rp.client.Withdraw(ctx, amount)
		if err != nil {
			rp.breaker.Failure(err.Error())
			r.noteError(name)
			logrus.Warnf("Yield draw of %s from %s failed, assuming obtained: %v", amount, name, err)
		} else {
			rp.breaker.Success()
			if returned.Cmp(amount) < 0 {
				got.Set(returned)
			}
		}
	} else {
		r.noteError(name)
	}
	return got
}

// RestoreTracked overwrites the tracked amounts and pooled total, used by
// state import.
func (r *Router) RestoreTracked(alpha, beta *big.Int) {
	r.alpha.tracked = model.Clone(alpha)
	r.beta.tracked = model.Clone(beta)
	r.totalStaked = new(big.Int).Add(r.alpha.tracked, r.beta.tracked)
}

func (r *Router) route(name types.ProtocolName) *routedProtocol {
	if name == types.ProtocolBeta {
		return r.beta
	}
	return r.alpha
}

func (r *Router) noteError(name string) {
	if r.ErrorHook != nil {
		r.ErrorHook(name)
	}
}
