package protocol

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

func TestAlphaClientSupply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/supply", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "900", body["amount"])

		json.NewEncoder(w).Encode(map[string]string{
			"supplied_amount": "900",
			"position_id":     "alpha-42",
		})
	}))
	defer srv.Close()

	c := NewAlphaClient(types.ProtocolConfig{Endpoint: srv.URL, APIKey: "test-key"})
	supplied, positionID, err := c.Supply(context.Background(), big.NewInt(900))
	require.NoError(t, err)
	assert.Equal(t, int64(900), supplied.Int64())
	assert.Equal(t, "alpha-42", positionID)
}

func TestAlphaClientWithdrawPartialFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/withdraw", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"returned_amount": "450"})
	}))
	defer srv.Close()

	c := NewAlphaClient(types.ProtocolConfig{Endpoint: srv.URL})
	returned, err := c.Withdraw(context.Background(), big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(450), returned.Int64())
}

func TestAlphaClientQueryPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/position", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(map[string]string{"current_value": "1234"})
	}))
	defer srv.Close()

	c := NewAlphaClient(types.ProtocolConfig{Endpoint: srv.URL})
	value, err := c.QueryPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), value.Int64())
}

func TestAlphaClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient liquidity", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewAlphaClient(types.ProtocolConfig{Endpoint: srv.URL})
	_, _, err := c.Supply(context.Background(), big.NewInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
}

func TestAlphaClientUnparseableAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"supplied_amount": "not-a-number"})
	}))
	defer srv.Close()

	c := NewAlphaClient(types.ProtocolConfig{Endpoint: srv.URL})
	_, _, err := c.Supply(context.Background(), big.NewInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable")
}

func TestBetaClientSupply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"supply": map[string]string{
					"acceptedAmount": "100",
					"positionId":     "beta-7",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewBetaClient(types.ProtocolConfig{Endpoint: srv.URL})
	accepted, positionID, err := c.Supply(context.Background(), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), accepted.Int64())
	assert.Equal(t, "beta-7", positionID)
}

func TestBetaClientWithdraw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"withdraw": map[string]string{"returnedAmount": "80"},
			},
		})
	}))
	defer srv.Close()

	c := NewBetaClient(types.ProtocolConfig{Endpoint: srv.URL})
	returned, err := c.Withdraw(context.Background(), big.NewInt(80))
	require.NoError(t, err)
	assert.Equal(t, int64(80), returned.Int64())
}

func TestBetaClientQueryPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"position": map[string]string{"currentValue": "555"},
			},
		})
	}))
	defer srv.Close()

	c := NewBetaClient(types.ProtocolConfig{Endpoint: srv.URL})
	value, err := c.QueryPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(555), value.Int64())
}

func TestNewSelectsClientByName(t *testing.T) {
	cfg := types.ProtocolConfig{Endpoint: "http://localhost"}
	assert.Equal(t, types.ProtocolAlpha, New(types.ProtocolAlpha, cfg).Name())
	assert.Equal(t, types.ProtocolBeta, New(types.ProtocolBeta, cfg).Name())
}

func TestParseAmount(t *testing.T) {
	v, ok := parseAmount("12345678901234567890")
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", v.String())

	_, ok = parseAmount("")
	assert.False(t, ok)
	_, ok = parseAmount("-5")
	assert.False(t, ok)
	_, ok = parseAmount("abc")
	assert.False(t, ok)
}
