// Package notify delivers sweep reports to the operators' webhook. Delivery
// is best effort: a consistency sweep never fails because its report could
// not be posted, so failures are logged and swallowed here.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default timeout for report delivery.
const defaultHTTPTimeout = 10 * time.Second

// Report is one sweep's aggregated findings. A sweep produces exactly one
// report regardless of how many items it found.
type Report struct {
	// ID identifies this delivery.
	ID string `json:"id"`

	// Sweep names the producing sweep ("mirror-consistency",
	// "pid-reconciliation").
	Sweep string `json:"sweep"`

	// GeneratedAt is when the sweep finished.
	GeneratedAt time.Time `json:"generatedAt"`

	// Lines are the human-readable findings, one per drifted item.
	Lines []string `json:"lines"`
}

// NewReport builds a report for a finished sweep.
func NewReport(sweep string, lines []string) *Report {
	return &Report{
		ID:          uuid.New().String(),
		Sweep:       sweep,
		GeneratedAt: time.Now().UTC(),
		Lines:       lines,
	}
}

// Config holds configuration for the report notifier.
type Config struct {
	// WebhookURL is where reports are posted. Empty disables delivery.
	WebhookURL string

	// HTTPTimeout is the timeout for delivery requests.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: defaultHTTPTimeout,
	}
}

// Notifier posts sweep reports to a webhook.
type Notifier struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNotifier creates a report notifier.
func NewNotifier(config *Config, logger *zap.Logger) (*Notifier, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaultHTTPTimeout
	}

	return &Notifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.HTTPTimeout},
		logger:     logger,
	}, nil
}

// Notify delivers a report. Failures are logged, never returned: report
// delivery must not fail the sweep that produced the report.
func (n *Notifier) Notify(ctx context.Context, report *Report) {
	if report == nil || n.config.WebhookURL == "" {
		return
	}

	if err := n.deliver(ctx, report); err != nil {
		n.logger.Error("failed to deliver sweep report",
			zap.String("report_id", report.ID),
			zap.String("sweep", report.Sweep),
			zap.Int("lines", len(report.Lines)),
			zap.Error(err))
		return
	}

	n.logger.Info("sweep report delivered",
		zap.String("report_id", report.ID),
		zap.String("sweep", report.Sweep),
		zap.Int("lines", len(report.Lines)))
}

func (n *Notifier) deliver(ctx context.Context, report *Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			n.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}
