// Package types contains shared type definitions used across multiple packages
package types

// ProtocolName identifies one of the external yield protocols funds are routed to
type ProtocolName string

// The two yield protocols backing the staker pool
const (
	ProtocolAlpha ProtocolName = "alpha"
	ProtocolBeta  ProtocolName = "beta"
)

// ProtocolConfig holds connection settings for one external yield protocol
type ProtocolConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key,omitempty"`
}
