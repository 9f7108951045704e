package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// AlphaClient talks to the first yield protocol over its REST API. Alpha is a
// lending-market style protocol: supplied funds earn interest continuously and
// the position query reports principal plus accrued interest.
type AlphaClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewAlphaClient creates a new client for protocol alpha
func NewAlphaClient(cfg types.ProtocolConfig) *AlphaClient {
	return &AlphaClient{
		baseURL:    cfg.Endpoint,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     cfg.APIKey,
	}
}

// Name identifies the protocol
func (c *AlphaClient) Name() types.ProtocolName { return types.ProtocolAlpha }

// Supply deposits amount of underlying into protocol alpha.
func (c *AlphaClient) Supply(ctx context.Context, amount *big.Int) (*big.Int, string, error) {
	payload, _ := json.Marshal(map[string]string{"amount": amount.String()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/supply", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("error creating request: %w", err)
	}
	c.setHeaders(req)

	logrus.Debugf("Supplying %s to protocol alpha: %s", amount, c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("error supplying to alpha: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("alpha API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		SuppliedAmount string `json:"supplied_amount"`
		PositionID     string `json:"position_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, "", fmt.Errorf("error decoding response: %w", err)
	}

	supplied, ok := parseAmount(response.SuppliedAmount)
	if !ok {
		return nil, "", fmt.Errorf("alpha returned unparseable supplied amount: %q", response.SuppliedAmount)
	}
	return supplied, response.PositionID, nil
}

// Withdraw requests amount of underlying back from protocol alpha.
func (c *AlphaClient) Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error) {
	payload, _ := json.Marshal(map[string]string{"amount": amount.String()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/withdraw", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error withdrawing from alpha: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("alpha API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		ReturnedAmount string `json:"returned_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	returned, ok := parseAmount(response.ReturnedAmount)
	if !ok {
		return nil, fmt.Errorf("alpha returned unparseable withdrawal amount: %q", response.ReturnedAmount)
	}
	return returned, nil
}

// QueryPosition returns alpha's current valuation of the treasury position.
func (c *AlphaClient) QueryPosition(ctx context.Context) (*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/position", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying alpha position: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpha API error: status %d", resp.StatusCode)
	}

	var response struct {
		CurrentValue string `json:"current_value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	value, ok := parseAmount(response.CurrentValue)
	if !ok {
		return nil, fmt.Errorf("alpha returned unparseable position value: %q", response.CurrentValue)
	}
	logrus.Debugf("Protocol alpha position value: %s", value)
	return value, nil
}

func (c *AlphaClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}
