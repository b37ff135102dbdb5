package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig contains configuration for the security headers
// middleware.
type SecurityHeadersConfig struct {
	// Enabled controls whether security headers are added
	Enabled bool

	// HSTSMaxAge is the max-age for Strict-Transport-Security (seconds)
	HSTSMaxAge int

	// HSTSIncludeSubDomains includes subdomains in HSTS
	HSTSIncludeSubDomains bool

	// ContentSecurityPolicy is the Content-Security-Policy header value
	ContentSecurityPolicy string

	// FrameOptions is the X-Frame-Options header value
	FrameOptions string

	// ReferrerPolicy is the Referrer-Policy header value
	ReferrerPolicy string

	// TLSEnabled indicates whether TLS is enabled (HSTS is only emitted
	// over TLS)
	TLSEnabled bool
}

// DefaultSecurityHeadersConfig returns the default security headers
// configuration. The catalogue API serves JSON only, so the CSP denies
// everything.
func DefaultSecurityHeadersConfig() *SecurityHeadersConfig {
	return &SecurityHeadersConfig{
		Enabled:               true,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubDomains: true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:          "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		TLSEnabled:            false,
	}
}

// SecurityHeaders returns a Gin middleware that adds security headers to
// every response.
func SecurityHeaders(config *SecurityHeadersConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultSecurityHeadersConfig()
	}

	return func(c *gin.Context) {
		if !config.Enabled {
			c.Next()
			return
		}

		c.Header("X-Content-Type-Options", "nosniff")

		if config.FrameOptions != "" {
			c.Header("X-Frame-Options", config.FrameOptions)
		}

		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}

		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}

		if config.TLSEnabled && config.HSTSMaxAge > 0 {
			hsts := "max-age=" + strconv.Itoa(config.HSTSMaxAge)
			if config.HSTSIncludeSubDomains {
				hsts += "; includeSubDomains"
			}
			c.Header("Strict-Transport-Security", hsts)
		}

		c.Next()
	}
}
