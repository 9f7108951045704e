package main

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jovemjeune/gnosisland-treasury/internal/config"
	"github.com/jovemjeune/gnosisland-treasury/internal/treasury"
	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// fakeProtocol accepts everything and reports no yield.
type fakeProtocol struct {
	name types.ProtocolName
}

func (f *fakeProtocol) Name() types.ProtocolName { return f.name }

func (f *fakeProtocol) Supply(ctx context.Context, amount *big.Int) (*big.Int, string, error) {
	return new(big.Int).Set(amount), "fake", nil
}

func (f *fakeProtocol) Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amount), nil
}

func (f *fakeProtocol) QueryPosition(ctx context.Context) (*big.Int, error) {
	return new(big.Int), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ownerAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	callerAddr := common.HexToAddress("0x0000000000000000000000000000000000000002")

	svc, err := treasury.New(treasury.Options{
		Owner:             ownerAddr,
		AuthorizedCaller:  callerAddr,
		Alpha:             &fakeProtocol{types.ProtocolAlpha},
		Beta:              &fakeProtocol{types.ProtocolBeta},
		AllocationPercent: 90,
		MinPurchasePrice:  big.NewInt(10),
	})
	require.NoError(t, err)

	return &Server{
		cfg: config.Config{
			Owner:            ownerAddr,
			AuthorizedCaller: callerAddr,
			OwnerToken:       "owner-secret",
			CallerToken:      "caller-secret",
			RequestTimeout:   time.Second,
		},
		svc:     svc,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestAdminHandlersAuthorizeBeforeReadingBody(t *testing.T) {
	s := newTestServer(t)

	// Without the owner token the request is rejected on authorization,
	// even when the body would not decode
	req := httptest.NewRequest(http.MethodPost, "/admin/allocation", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.handleSetAllocation(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 90, s.svc.Router().Percent())

	// A wrong token is rejected the same way
	req = httptest.NewRequest(http.MethodPost, "/admin/allocation", strings.NewReader(`{"percent":50}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.handleSetAllocation(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Authorized but wrong method
	req = httptest.NewRequest(http.MethodGet, "/admin/allocation", nil)
	req.Header.Set("Authorization", "Bearer owner-secret")
	rec = httptest.NewRecorder()
	s.handleSetAllocation(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// Authorized with a malformed body is a bad request
	req = httptest.NewRequest(http.MethodPost, "/admin/allocation", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer owner-secret")
	rec = httptest.NewRecorder()
	s.handleSetAllocation(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Authorized and well-formed goes through
	req = httptest.NewRequest(http.MethodPost, "/admin/allocation", strings.NewReader(`{"percent":50}`))
	req.Header.Set("Authorization", "Bearer owner-secret")
	rec = httptest.NewRecorder()
	s.handleSetAllocation(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, s.svc.Router().Percent())
}

func TestPauseHandlerRoundTrip(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/pause", nil)
	rec := httptest.NewRecorder()
	s.handlePause(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, s.svc.Paused())

	req = httptest.NewRequest(http.MethodPost, "/admin/pause", nil)
	req.Header.Set("Authorization", "Bearer owner-secret")
	rec = httptest.NewRecorder()
	s.handlePause(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.svc.Paused())

	req = httptest.NewRequest(http.MethodPost, "/admin/unpause", nil)
	req.Header.Set("Authorization", "Bearer owner-secret")
	rec = httptest.NewRecorder()
	s.handleUnpause(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.svc.Paused())
}

func TestTransferOwnershipHandlerValidatesAddress(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/owner", strings.NewReader(`{"address":"nonsense"}`))
	req.Header.Set("Authorization", "Bearer owner-secret")
	rec := httptest.NewRecorder()
	s.handleTransferOwnership(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
