// Package protocol provides clients for the two external yield protocols the
// treasury routes pooled funds into.
package protocol

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// Client is the three-operation shape both yield protocols expose. The two
// protocols differ in internal mechanics but not in this surface.
type Client interface {
	// Name identifies the protocol for logs and metrics
	Name() types.ProtocolName

	// Supply deposits amount of underlying into the protocol and returns the
	// amount actually accepted plus the protocol's position identifier
	Supply(ctx context.Context, amount *big.Int) (*big.Int, string, error)

	// Withdraw requests amount of underlying back and returns the amount
	// actually released
	Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error)

	// QueryPosition returns the protocol's current valuation of the
	// treasury's deposited position
	QueryPosition(ctx context.Context) (*big.Int, error)
}

// New creates a client for the named protocol.
func New(name types.ProtocolName, cfg types.ProtocolConfig) Client {
	switch name {
	case types.ProtocolBeta:
		return NewBetaClient(cfg)
	default:
		return NewAlphaClient(cfg)
	}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// decodeJSON decodes a JSON body into out.
func decodeJSON(r io.Reader, out interface{}) error {
	return json.NewDecoder(r).Decode(out)
}

// parseAmount decodes a base-10 amount string from a protocol response.
func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
