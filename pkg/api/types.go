package api

import (
	"time"

	"github.com/ssargent/glogstore/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port            int
	Bind            string
	APIKey          string         // Required on /api/v1 when set
	Streams         []store.Config // Streams opened at startup
	PrivateKey      string         // Hex server private key for decoding encrypted archives
	MetricsInterval time.Duration  // How often stream gauges are refreshed
}

// DefaultMetricsInterval is used when ServerConfig.MetricsInterval is zero.
const DefaultMetricsInterval = 15 * time.Second

// ExpireRequest changes the retention window of a stream.
type ExpireRequest struct {
	ExpireSeconds *int64 `json:"expire_seconds"`
}

// ExpireResponse reports how many archives the new window removed.
type ExpireResponse struct {
	ExpireSeconds int64 `json:"expire_seconds"`
	Removed       int   `json:"removed"`
}

// SnapshotResponse lists archive file names in the requested order.
type SnapshotResponse struct {
	Files  []string `json:"files"`
	Status string   `json:"status"`
}

// RecordsResponse holds the decoded records of one file. Records are
// base64 encoded by encoding/json.
type RecordsResponse struct {
	File      string   `json:"file"`
	Records   [][]byte `json:"records"`
	Recovered int      `json:"recovered"`
	Broken    bool     `json:"broken"`
	Truncated bool     `json:"truncated,omitempty"`
}
