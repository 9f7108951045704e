package protocol

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// BetaClient talks to the second yield protocol through its GraphQL gateway.
// Beta is a vault-style protocol: supply buys vault tokens and the position
// query reports the redemption value of the tokens held.
type BetaClient struct {
	endpoint    string
	apiKey      string
	retryClient *retryablehttp.Client
}

// NewBetaClient creates a new client for protocol beta
func NewBetaClient(cfg types.ProtocolConfig) *BetaClient {
	return &BetaClient{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		retryClient: newRetryClient(),
	}
}

// Name identifies the protocol
func (c *BetaClient) Name() types.ProtocolName { return types.ProtocolBeta }

// Supply deposits amount of underlying into protocol beta.
func (c *BetaClient) Supply(ctx context.Context, amount *big.Int) (*big.Int, string, error) {
	query := fmt.Sprintf(`{"query":"mutation { supply(amount: \"%s\") { acceptedAmount positionId } }"}`, amount)

	var response struct {
		Data struct {
			Supply struct {
				AcceptedAmount string `json:"acceptedAmount"`
				PositionID     string `json:"positionId"`
			} `json:"supply"`
		} `json:"data"`
	}
	if err := c.post(ctx, query, &response); err != nil {
		return nil, "", err
	}

	accepted, ok := parseAmount(response.Data.Supply.AcceptedAmount)
	if !ok {
		return nil, "", fmt.Errorf("beta returned unparseable accepted amount: %q", response.Data.Supply.AcceptedAmount)
	}
	logrus.Debugf("Supplied %s to protocol beta, position %s", accepted, response.Data.Supply.PositionID)
	return accepted, response.Data.Supply.PositionID, nil
}

// Withdraw requests amount of underlying back from protocol beta.
func (c *BetaClient) Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error) {
	query := fmt.Sprintf(`{"query":"mutation { withdraw(amount: \"%s\") { returnedAmount } }"}`, amount)

	var response struct {
		Data struct {
			Withdraw struct {
				ReturnedAmount string `json:"returnedAmount"`
			} `json:"withdraw"`
		} `json:"data"`
	}
	if err := c.post(ctx, query, &response); err != nil {
		return nil, err
	}

	returned, ok := parseAmount(response.Data.Withdraw.ReturnedAmount)
	if !ok {
		return nil, fmt.Errorf("beta returned unparseable withdrawal amount: %q", response.Data.Withdraw.ReturnedAmount)
	}
	return returned, nil
}

// QueryPosition returns beta's current valuation of the treasury position.
func (c *BetaClient) QueryPosition(ctx context.Context) (*big.Int, error) {
	query := `{"query":"{ position { currentValue } }"}`

	var response struct {
		Data struct {
			Position struct {
				CurrentValue string `json:"currentValue"`
			} `json:"position"`
		} `json:"data"`
	}
	if err := c.post(ctx, query, &response); err != nil {
		return nil, err
	}

	value, ok := parseAmount(response.Data.Position.CurrentValue)
	if !ok {
		return nil, fmt.Errorf("beta returned unparseable position value: %q", response.Data.Position.CurrentValue)
	}
	return value, nil
}

// post sends a GraphQL request and decodes the JSON response into out.
func (c *BetaClient) post(ctx context.Context, query string, out interface{}) error {
	req, err := retryablehttp.NewRequest(http.MethodPost, c.endpoint, []byte(query))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.retryClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := decodeJSON(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
