package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// stubProtocol is an in-memory protocol.Client for tests. It accepts every
// supply and withdrawal unless told to fail, and reports the position it is
// configured with.
type stubProtocol struct {
	name types.ProtocolName

	supplyErr   error
	withdrawErr error
	positionErr error
	position    *big.Int

	supplied  *big.Int
	withdrawn *big.Int
}

func newStubProtocol(name types.ProtocolName) *stubProtocol {
	return &stubProtocol{
		name:      name,
		position:  new(big.Int),
		supplied:  new(big.Int),
		withdrawn: new(big.Int),
	}
}

func (s *stubProtocol) Name() types.ProtocolName { return s.name }

func (s *stubProtocol) Supply(ctx context.Context, amount *big.Int) (*big.Int, string, error) {
	if s.supplyErr != nil {
		return nil, "", s.supplyErr
	}
	s.supplied.Add(s.supplied, amount)
	return model.Clone(amount), "stub-position", nil
}

func (s *stubProtocol) Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if s.withdrawErr != nil {
		return nil, s.withdrawErr
	}
	s.withdrawn.Add(s.withdrawn, amount)
	return model.Clone(amount), nil
}

func (s *stubProtocol) QueryPosition(ctx context.Context) (*big.Int, error) {
	if s.positionErr != nil {
		return nil, s.positionErr
	}
	return model.Clone(s.position), nil
}

func newTestRouter() (*Router, *stubProtocol, *stubProtocol) {
	a := newStubProtocol(types.ProtocolAlpha)
	b := newStubProtocol(types.ProtocolBeta)
	return NewRouter(a, b, 90, 3, time.Minute), a, b
}

func TestRouterAllocateSplitsNinetyTen(t *testing.T) {
	r, a, b := newTestRouter()

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	assert.Equal(t, int64(900), a.supplied.Int64())
	assert.Equal(t, int64(100), b.supplied.Int64())
	assert.Equal(t, int64(900), r.Tracked(types.ProtocolAlpha).Int64())
	assert.Equal(t, int64(100), r.Tracked(types.ProtocolBeta).Int64())
	assert.Equal(t, int64(1000), r.TotalStaked().Int64())
}

func TestRouterAllocateFloorsAlphaLeg(t *testing.T) {
	r, a, b := newTestRouter()

	// 90% of 15 floors to 13; beta takes the remainder so nothing is lost
	require.NoError(t, r.Allocate(context.Background(), big.NewInt(15)))

	assert.Equal(t, int64(13), a.supplied.Int64())
	assert.Equal(t, int64(2), b.supplied.Int64())
	assert.Equal(t, int64(15), r.TotalStaked().Int64())
}

func TestRouterAllocateAbsorbsSupplyFailure(t *testing.T) {
	r, a, b := newTestRouter()
	a.supplyErr = errors.New("protocol unavailable")

	var failures []string
	r.ErrorHook = func(name string) { failures = append(failures, name) }

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	// The failed leg is still recorded as allocated
	assert.Equal(t, int64(900), r.Tracked(types.ProtocolAlpha).Int64())
	assert.Equal(t, int64(100), r.Tracked(types.ProtocolBeta).Int64())
	assert.Equal(t, int64(1000), r.TotalStaked().Int64())
	assert.Zero(t, a.supplied.Int64())
	assert.Equal(t, int64(100), b.supplied.Int64())
	assert.Equal(t, []string{string(types.ProtocolAlpha)}, failures)
}

func TestRouterAllocateRejectsBadAmount(t *testing.T) {
	r, _, _ := newTestRouter()

	assert.ErrorIs(t, r.Allocate(context.Background(), nil), model.ErrInvalidAmount)
	assert.ErrorIs(t, r.Allocate(context.Background(), big.NewInt(0)), model.ErrInvalidAmount)
}

func TestRouterWithdrawalCapsAtTracked(t *testing.T) {
	r, a, _ := newTestRouter()

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	got := r.RequestWithdrawal(context.Background(), types.ProtocolAlpha, big.NewInt(5000))
	assert.Equal(t, int64(900), got.Int64())
	assert.Equal(t, int64(900), a.withdrawn.Int64())
	assert.Zero(t, r.Tracked(types.ProtocolAlpha).Int64())
	assert.Equal(t, int64(100), r.TotalStaked().Int64())
}

func TestRouterWithdrawalAssumesSuccessOnFailure(t *testing.T) {
	r, a, _ := newTestRouter()
	a.withdrawErr = errors.New("protocol unavailable")

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	got := r.RequestWithdrawal(context.Background(), types.ProtocolAlpha, big.NewInt(500))
	assert.Equal(t, int64(500), got.Int64())
	assert.Equal(t, int64(400), r.Tracked(types.ProtocolAlpha).Int64())
	assert.Zero(t, a.withdrawn.Int64())
}

func TestRouterWithdrawProportional(t *testing.T) {
	r, a, b := newTestRouter()

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	got := r.WithdrawProportional(context.Background(), big.NewInt(500))
	assert.Equal(t, int64(500), got.Int64())
	assert.Equal(t, int64(450), a.withdrawn.Int64())
	assert.Equal(t, int64(50), b.withdrawn.Int64())
	assert.Equal(t, int64(500), r.TotalStaked().Int64())
}

func TestRouterAvailableYield(t *testing.T) {
	r, a, b := newTestRouter()

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	// Alpha gained 10%, beta reports no growth
	a.position = big.NewInt(990)
	b.position = big.NewInt(100)

	assert.Equal(t, int64(90), r.AvailableYield(context.Background(), types.ProtocolAlpha).Int64())
	assert.Zero(t, r.AvailableYield(context.Background(), types.ProtocolBeta).Int64())
	assert.Equal(t, int64(90), r.TotalAvailableYield(context.Background()).Int64())
}

func TestRouterImplausibleReportYieldsNothing(t *testing.T) {
	r, a, _ := newTestRouter()

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	// More than double the tracked deposit is not believable
	a.position = big.NewInt(5000)
	assert.Zero(t, r.AvailableYield(context.Background(), types.ProtocolAlpha).Int64())

	// A zero report against tracked funds is treated the same way
	a.position = big.NewInt(0)
	assert.Zero(t, r.AvailableYield(context.Background(), types.ProtocolAlpha).Int64())
}

func TestRouterYieldQueryFailureYieldsNothing(t *testing.T) {
	r, a, _ := newTestRouter()
	a.positionErr = errors.New("protocol unavailable")

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))
	assert.Zero(t, r.AvailableYield(context.Background(), types.ProtocolAlpha).Int64())
}

func TestRouterDrawYieldKeepsTrackedPrincipal(t *testing.T) {
	r, a, b := newTestRouter()

	require.NoError(t, r.Allocate(context.Background(), big.NewInt(1000)))

	got := r.DrawYield(context.Background(), big.NewInt(100))
	assert.Equal(t, int64(100), got.Int64())
	assert.Equal(t, int64(90), a.withdrawn.Int64())
	assert.Equal(t, int64(10), b.withdrawn.Int64())

	// Principal bookkeeping is untouched by yield draws
	assert.Equal(t, int64(900), r.Tracked(types.ProtocolAlpha).Int64())
	assert.Equal(t, int64(100), r.Tracked(types.ProtocolBeta).Int64())
	assert.Equal(t, int64(1000), r.TotalStaked().Int64())
}

func TestRouterBreakerOpensAfterRepeatedFailures(t *testing.T) {
	r, a, _ := newTestRouter()
	a.supplyErr = errors.New("protocol unavailable")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Allocate(ctx, big.NewInt(100)))
	}

	// Circuit is now open; further supplies are skipped but still recorded
	require.NoError(t, r.Allocate(ctx, big.NewInt(100)))
	assert.Equal(t, int64(360), r.Tracked(types.ProtocolAlpha).Int64())
	assert.Zero(t, a.supplied.Int64())
}

func TestRouterSetPercentValidates(t *testing.T) {
	r, _, _ := newTestRouter()

	require.NoError(t, r.SetPercent(50))
	assert.Equal(t, 50, r.Percent())

	assert.ErrorIs(t, r.SetPercent(-1), model.ErrInvalidAmount)
	assert.ErrorIs(t, r.SetPercent(101), model.ErrInvalidAmount)
}
