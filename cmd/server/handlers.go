package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/migrate"
	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

// amountRequest is the common body for principal+amount operations. Amounts
// travel as base-10 strings so they survive JSON number precision.
type amountRequest struct {
	Principal string `json:"principal"`
	Amount    string `json:"amount"`
	Category  string `json:"category,omitempty"`
}

// feeRequest mirrors the catalog layer's receiveFee call.
type feeRequest struct {
	Gross          string `json:"gross"`
	Buyer          string `json:"buyer"`
	Beneficiary    string `json:"beneficiary"`
	Scenario       string `json:"scenario"`
	Referrer       string `json:"referrer,omitempty"`
	ReferralReward string `json:"referral_reward,omitempty"`
}

// paymentRequest mirrors the catalog layer's handleUnitPayment call.
type paymentRequest struct {
	Amount string `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.mutating(w, r, "deposit", func(ctx context.Context, req amountRequest) (interface{}, error) {
		principal, amount, err := parsePrincipalAmount(req)
		if err != nil {
			return nil, err
		}
		if err := s.svc.Deposit(principal, amount); err != nil {
			return nil, err
		}
		return map[string]string{"minted": amount.String()}, nil
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.mutating(w, r, "redeem", func(ctx context.Context, req amountRequest) (interface{}, error) {
		principal, units, err := parsePrincipalAmount(req)
		if err != nil {
			return nil, err
		}
		out, err := s.svc.Redeem(principal, units)
		if err != nil {
			return nil, err
		}
		return map[string]string{"underlying": out.String()}, nil
	})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.mutating(w, r, "stake", func(ctx context.Context, req amountRequest) (interface{}, error) {
		principal, units, err := parsePrincipalAmount(req)
		if err != nil {
			return nil, err
		}
		if err := s.svc.Stake(ctx, principal, units); err != nil {
			return nil, err
		}
		return map[string]string{"staked": units.String()}, nil
	})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	s.mutating(w, r, "unstake", func(ctx context.Context, req amountRequest) (interface{}, error) {
		principal, amount, err := parsePrincipalAmount(req)
		if err != nil {
			return nil, err
		}
		var released *big.Int
		if req.Category == "referral" {
			released, err = s.svc.UnstakeReferral(ctx, principal, amount)
		} else {
			released, err = s.svc.Unstake(ctx, principal, amount)
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"released": released.String()}, nil
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.mutating(w, r, "claim", func(ctx context.Context, req amountRequest) (interface{}, error) {
		principal, err := parseAddress(req.Principal)
		if err != nil {
			return nil, err
		}
		claimed, err := s.svc.Claim(ctx, principal)
		if err != nil {
			return nil, err
		}
		return map[string]string{"claimed": claimed.String()}, nil
	})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	principal, err := parseAddress(r.URL.Query().Get("principal"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]string{
		"claimable": s.svc.Claimable(ctx, principal).String(),
	})
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, r *http.Request) {
	principal, err := parseAddress(r.URL.Query().Get("principal"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	cat := model.StakeDirect
	if r.URL.Query().Get("category") == "referral" {
		cat = model.StakeReferral
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"withdrawable": s.svc.Withdrawable(principal, cat).String(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	principal, err := parseAddress(r.URL.Query().Get("principal"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"units":   s.svc.UnitsOf(principal).String(),
		"account": s.svc.AccountOf(principal).String(),
		"custody": s.svc.CustodyOf(principal).String(),
		"shares":  s.svc.SharesOf(principal).String(),
	})
}

func (s *Server) handleReferrerStats(w http.ResponseWriter, r *http.Request) {
	referrer, err := parseAddress(r.URL.Query().Get("address"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	stats := s.svc.ReferrerStats(referrer)
	writeJSON(w, http.StatusOK, map[string]string{
		"total_rewarded": stats.TotalRewarded.String(),
		"total_staked":   stats.TotalStaked.String(),
	})
}

func (s *Server) handleReceiveFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authorize(r, s.cfg.CallerToken, s.cfg.AuthorizedCaller)
	if !ok {
		s.errorResponse(w, model.ErrUnauthorizedCaller)
		return
	}
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req feeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	receipt, err := parseFeeRequest(req)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	split, err := s.svc.ReceiveFee(ctx, caller, receipt)
	s.observe("fee", start, err)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.updateGauges()
	writeJSON(w, http.StatusOK, map[string]string{
		"net":         split.Net.String(),
		"revenue":     split.Revenue.String(),
		"staker":      split.Staker.String(),
		"beneficiary": split.Beneficiary.String(),
		"referrer":    split.Referrer.String(),
	})
}

func (s *Server) handleUnitPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authorize(r, s.cfg.CallerToken, s.cfg.AuthorizedCaller)
	if !ok {
		s.errorResponse(w, model.ErrUnauthorizedCaller)
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	start := time.Now()
	err = s.svc.HandleUnitPayment(caller, amount, from, to)
	s.observe("payment", start, err)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transferred": amount.String()})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authorize(r, s.cfg.CallerToken, s.cfg.AuthorizedCaller)
	if !ok {
		s.errorResponse(w, model.ErrUnauthorizedCaller)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	principal, amount, err := parsePrincipalAmount(req)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if err := s.svc.Fund(caller, principal, amount); err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"credited": amount.String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.adminIdentity(w, r)
	if !ok {
		return
	}
	s.finishAdmin(w, s.svc.Pause(owner))
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.adminIdentity(w, r)
	if !ok {
		return
	}
	s.finishAdmin(w, s.svc.Unpause(owner))
}

func (s *Server) handleSetAllocation(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.adminIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Percent int `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	s.finishAdmin(w, s.svc.SetAllocationPercent(owner, req.Percent))
}

func (s *Server) handleSetCaller(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.adminIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	newCaller, err := parseAddress(req.Address)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.finishAdmin(w, s.svc.SetAuthorizedCaller(owner, newCaller))
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.adminIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	newOwner, err := parseAddress(req.Address)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.finishAdmin(w, s.svc.TransferOwnership(owner, newOwner))
}

func (s *Server) handleExportState(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r, s.cfg.OwnerToken, s.cfg.Owner); !ok {
		s.errorResponse(w, model.ErrUnauthorizedCaller)
		return
	}
	env, err := s.SignedSnapshot()
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleImportState(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorize(r, s.cfg.OwnerToken, s.cfg.Owner)
	if !ok {
		s.errorResponse(w, model.ErrUnauthorizedCaller)
		return
	}
	var env migrate.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}
	st, err := migrate.Open(&env, s.signer.Address())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if err := s.svc.ImportState(owner, st); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.updateGauges()
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": "1.0.0",
		"paused":  stats.Paused,
		"accounting": map[string]string{
			"total_supply":  stats.TotalSupply.String(),
			"held":          stats.Held.String(),
			"revenue_pool":  stats.RevenuePool.String(),
			"total_staked":  stats.TotalStaked.String(),
			"tracked_alpha": stats.TrackedAlpha.String(),
			"tracked_beta":  stats.TrackedBeta.String(),
			"vault_shares":  stats.VaultShares.String(),
			"vault_assets":  stats.VaultAssets.String(),
		},
	})
}

// mutating wraps the POST decode / rate limit / timeout / metrics pattern
// shared by the staker-facing operations.
func (s *Server) mutating(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, req amountRequest) (interface{}, error)) {

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		s.metrics.opCounter.WithLabelValues(op, "rate_limited").Inc()
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, model.ErrInvalidAmount)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	result, err := fn(ctx, req)
	s.observe(op, start, err)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.updateGauges()
	writeJSON(w, http.StatusOK, result)
}

// adminIdentity gates the administrative surface. The owner token is checked
// before the method or anything from the body is read.
func (s *Server) adminIdentity(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	owner, ok := s.authorize(r, s.cfg.OwnerToken, s.cfg.Owner)
	if !ok {
		s.errorResponse(w, model.ErrUnauthorizedCaller)
		return common.Address{}, false
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return common.Address{}, false
	}
	return owner, true
}

func (s *Server) finishAdmin(w http.ResponseWriter, err error) {
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorize maps a bearer token to the identity it represents. An empty
// configured token disables the entry point entirely.
func (s *Server) authorize(r *http.Request, token string, identity common.Address) (common.Address, bool) {
	if token == "" {
		return common.Address{}, false
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != token {
		return common.Address{}, false
	}
	return identity, true
}

func (s *Server) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.opCounter.WithLabelValues(op, status).Inc()
	s.metrics.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// errorResponse maps engine errors onto HTTP statuses.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrZeroAddress),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrNothingToClaim):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrStakeStillLocked):
		status = http.StatusLocked
	case errors.Is(err, model.ErrUnauthorizedCaller):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrPaused), errors.Is(err, model.ErrReentrancy):
		status = http.StatusServiceUnavailable
	}
	logrus.Warnf("Request failed: %v", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func parsePrincipalAmount(req amountRequest) (common.Address, *big.Int, error) {
	principal, err := parseAddress(req.Principal)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return principal, amount, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, model.ErrZeroAddress
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, model.ErrZeroAddress
	}
	return addr, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}
	return v, nil
}

func parseFeeRequest(req feeRequest) (model.FeeReceipt, error) {
	gross, err := parseAmount(req.Gross)
	if err != nil {
		return model.FeeReceipt{}, err
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		return model.FeeReceipt{}, err
	}
	beneficiary, err := parseAddress(req.Beneficiary)
	if err != nil {
		return model.FeeReceipt{}, err
	}

	receipt := model.FeeReceipt{
		Gross:       gross,
		Buyer:       buyer,
		Beneficiary: beneficiary,
	}
	switch strings.ToLower(req.Scenario) {
	case "", "plain":
		receipt.Scenario = model.ScenarioPlain
	case "referred":
		receipt.Scenario = model.ScenarioReferred
	case "discounted":
		receipt.Scenario = model.ScenarioDiscounted
	default:
		return model.FeeReceipt{}, model.ErrInvalidAmount
	}
	if receipt.Scenario == model.ScenarioReferred {
		referrer, err := parseAddress(req.Referrer)
		if err != nil {
			return model.FeeReceipt{}, err
		}
		receipt.Referrer = referrer
		if req.ReferralReward != "" {
			reward, err := parseAmount(req.ReferralReward)
			if err != nil {
				return model.FeeReceipt{}, err
			}
			receipt.ReferralReward = reward
		}
	}
	return receipt, nil
}
