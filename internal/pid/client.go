// Package pid talks to the external persistent-identifier registry. Every
// published resource carries a PID resolving to its marketplace page; this
// package checks and (re-)registers those handles.
package pid

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// Default timeout for registry requests.
	defaultHTTPTimeout = 10 * time.Second

	// Handle value index holding the resolvable URL.
	urlValueIndex = 1

	// Handle value index holding the HS_ADMIN record.
	adminValueIndex = 100
)

// ErrRegistryUnavailable is returned when the registry cannot be reached
// or the circuit breaker is open.
var ErrRegistryUnavailable = errors.New("pid registry unavailable")

// Config holds configuration for the PID registry client.
type Config struct {
	// BaseURL is the handle registry's API endpoint.
	BaseURL string

	// Prefix is the handle prefix resources are registered under.
	Prefix string

	// AdminHandle is the HS_ADMIN handle authorised to write under Prefix.
	AdminHandle string

	// MarketplaceURL is the base URL handles resolve to; the resource's
	// public identifier is appended to it.
	MarketplaceURL string

	// HTTPTimeout is the timeout for registry requests.
	HTTPTimeout time.Duration

	// EnableMTLS enables mutual TLS towards the registry.
	EnableMTLS bool

	// ClientCertFile is the path to the client certificate for mTLS.
	ClientCertFile string

	// ClientKeyFile is the path to the client private key for mTLS.
	ClientKeyFile string

	// CACertFile is the path to the CA certificate for verifying the
	// registry's certificate.
	CACertFile string

	// InsecureSkipVerify disables certificate verification (for testing only).
	InsecureSkipVerify bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: defaultHTTPTimeout,
	}
}

// handleValue is one (index, type, data) triple of a handle record.
type handleValue struct {
	Index int        `json:"index"`
	Type  string     `json:"type"`
	Data  handleData `json:"data"`
}

type handleData struct {
	Format string `json:"format"`
	Value  any    `json:"value"`
}

// handleRecord is the registry's PUT payload.
type handleRecord struct {
	Values []handleValue `json:"values"`
}

// adminReference is the HS_ADMIN value granting write access on a handle.
type adminReference struct {
	Handle      string `json:"handle"`
	Index       int    `json:"index"`
	Permissions string `json:"permissions"`
}

// Client is an HTTP client for the handle registry, protected by a circuit
// breaker so a dead registry does not stall reconciliation sweeps.
type Client struct {
	config     *Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a PID registry client.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, errors.New("registry base URL cannot be empty")
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaultHTTPTimeout
	}

	if config.InsecureSkipVerify {
		logger.Warn("SECURITY WARNING: TLS certificate verification is disabled for the PID registry. "+
			"This should ONLY be used in development/testing environments.",
			zap.Bool("insecure_skip_verify", true))
	}

	httpClient, err := createHTTPClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        "pid-registry",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}, nil
}

// createHTTPClient creates an HTTP client with optional mTLS configuration.
func createHTTPClient(config *Config) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}

	if config.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if config.EnableMTLS && config.ClientCertFile != "" && config.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.ClientCertFile, config.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.CACertFile != "" {
		caCert, err := os.ReadFile(config.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.HTTPTimeout,
	}, nil
}

// handleURL builds the registry URL for a PID value. PIDs already carrying
// a prefix are used verbatim; bare suffixes get the configured prefix.
func (c *Client) handleURL(pid string) string {
	base := strings.TrimSuffix(c.config.BaseURL, "/")
	if strings.Contains(pid, "/") {
		return base + "/" + pid
	}
	return base + "/" + c.config.Prefix + "/" + pid
}

// ResolveURL returns the marketplace URL a resource's handle must point to.
func (c *Client) ResolveURL(publicID string) string {
	return strings.TrimSuffix(c.config.MarketplaceURL, "/") + "/" + publicID
}

// Exists checks whether a handle is registered. A 404 from the registry
// means the handle is absent, not an error.
func (c *Client) Exists(ctx context.Context, pid string) (bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.handleURL(pid), nil)
		if err != nil {
			return false, fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.Warn("failed to close response body", zap.Error(closeErr))
			}
		}()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return true, nil
		default:
			body, _ := io.ReadAll(resp.Body)
			return false, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, string(body))
		}
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	exists, _ := result.(bool)
	return exists, nil
}

// Register writes the handle record for a published resource: a URL value
// resolving to its marketplace page and the HS_ADMIN reference. The PUT is
// idempotent; re-registering an existing handle rewrites it.
func (c *Client) Register(ctx context.Context, pid, publicID string) error {
	record := handleRecord{
		Values: []handleValue{
			{
				Index: urlValueIndex,
				Type:  "URL",
				Data: handleData{
					Format: "string",
					Value:  c.ResolveURL(publicID),
				},
			},
			{
				Index: adminValueIndex,
				Type:  "HS_ADMIN",
				Data: handleData{
					Format: "admin",
					Value: adminReference{
						Handle:      c.config.AdminHandle,
						Index:       301,
						Permissions: "011111110011",
					},
				},
			},
		},
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal handle record: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.handleURL(pid), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.Warn("failed to close response body", zap.Error(closeErr))
			}
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	c.logger.Info("pid registered",
		zap.String("pid", pid),
		zap.String("public_id", publicID))

	return nil
}

// Ping checks registry reachability. A 404 on the looked-up handle
// still means the registry answered.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Exists(ctx, c.config.Prefix+"/ping")
	return err
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
