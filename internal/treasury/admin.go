package treasury

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
	"github.com/jovemjeune/gnosisland-treasury/internal/protocol"
	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// Administrative surface. Every operation here is owner-restricted,
// single-call, and synchronous.

// Pause engages the system-wide halt.
func (s *Service) Pause(caller common.Address) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	s.paused = true
	logrus.Warn("Treasury paused")
	return nil
}

// Unpause lifts the system-wide halt.
func (s *Service) Unpause(caller common.Address) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	s.paused = false
	logrus.Info("Treasury unpaused")
	return nil
}

// SetAllocationPercent updates the percentage of allocations routed to
// protocol alpha.
func (s *Service) SetAllocationPercent(caller common.Address, percent int) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	if err := s.router.SetPercent(percent); err != nil {
		return err
	}
	logrus.Infof("Allocation percent set to %d", percent)
	return nil
}

// SetAuthorizedCaller updates the identity allowed to call the fee and
// payment entry points.
func (s *Service) SetAuthorizedCaller(caller, newCaller common.Address) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	if newCaller == (common.Address{}) {
		return model.ErrZeroAddress
	}
	s.caller = newCaller
	logrus.Infof("Authorized caller set to %s", newCaller.Hex())
	return nil
}

// SetProtocolClients swaps the external yield protocol clients.
func (s *Service) SetProtocolClients(caller common.Address, alpha, beta protocol.Client) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	s.router.SetClients(alpha, beta)
	logrus.Info("Protocol clients updated")
	return nil
}

// TransferOwnership hands the administrative surface to a new owner.
func (s *Service) TransferOwnership(caller, newOwner common.Address) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	if caller != s.owner {
		return model.ErrUnauthorizedCaller
	}
	if newOwner == (common.Address{}) {
		return model.ErrZeroAddress
	}
	s.owner = newOwner
	logrus.Infof("Ownership transferred to %s", newOwner.Hex())
	return nil
}

// Stats is a read-only snapshot of the treasury's aggregate figures.
type Stats struct {
	TotalSupply  *big.Int `json:"total_supply"`
	Held         *big.Int `json:"held"`
	RevenuePool  *big.Int `json:"revenue_pool"`
	TotalStaked  *big.Int `json:"total_staked"`
	TrackedAlpha *big.Int `json:"tracked_alpha"`
	TrackedBeta  *big.Int `json:"tracked_beta"`
	VaultShares  *big.Int `json:"vault_shares"`
	VaultAssets  *big.Int `json:"vault_assets"`
	Paused       bool     `json:"paused"`
}

// Stats returns current aggregate figures for status reporting and metrics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		TotalSupply:  s.ledger.TotalSupply(),
		Held:         s.ledger.Held(),
		RevenuePool:  model.Clone(s.revenuePool),
		TotalStaked:  s.router.TotalStaked(),
		TrackedAlpha: s.router.Tracked(types.ProtocolAlpha),
		TrackedBeta:  s.router.Tracked(types.ProtocolBeta),
		VaultShares:  s.vault.TotalShares(),
		VaultAssets:  s.vault.TotalAssets(),
		Paused:       s.paused,
	}
}
