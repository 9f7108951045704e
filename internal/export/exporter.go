// Package export pushes signed accounting snapshots to an external webhook on
// a fixed interval, for off-service reconciliation against the two yield
// protocols' own books.
package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jovemjeune/gnosisland-treasury/internal/migrate"
)

// Config holds settings for snapshot exporting
type Config struct {
	WebhookURL string
	APIKey     string
	Interval   time.Duration
}

// SnapshotSource produces the signed snapshot envelopes to be exported.
type SnapshotSource interface {
	SignedSnapshot() (*migrate.Envelope, error)
}

// Exporter periodically posts snapshot envelopes to the configured webhook.
type Exporter struct {
	config     Config
	source     SnapshotSource
	httpClient *http.Client

	mu         sync.Mutex
	lastExport time.Time
	cancel     context.CancelFunc
}

// New creates an exporter. Interval defaults to one minute.
func New(config Config, source SnapshotSource) *Exporter {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &Exporter{
		config: config,
		source: source,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Start launches the export loop. Stop cancels it.
func (e *Exporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go func() {
		ticker := time.NewTicker(e.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.exportOnce(ctx); err != nil {
					logrus.Warnf("Snapshot export failed: %v", err)
				}
			}
		}
	}()
	logrus.Infof("Snapshot exporter started, interval %s", e.config.Interval)
}

// Stop halts the export loop.
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// LastExport returns when the last successful export happened.
func (e *Exporter) LastExport() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastExport
}

func (e *Exporter) exportOnce(ctx context.Context) error {
	env, err := e.source.SignedSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot unavailable: %w", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	e.mu.Lock()
	e.lastExport = time.Now()
	e.mu.Unlock()
	logrus.Debug("Accounting snapshot exported")
	return nil
}
