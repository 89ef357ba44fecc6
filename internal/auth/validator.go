// Package auth guards the registry API with static tokens and optional client certificates.
package auth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// Validator handles authentication validation
type Validator struct {
	clientCAs      *x509.CertPool
	clientCALoaded bool
	apiTokens      map[string]bool
}

// NewValidator loads API tokens (one per line) and client CA certificates. Either path
// may be empty. With neither loaded the validator admits every request.
func NewValidator(tokensFile, clientCAFile string) (*Validator, error) {
	validator := &Validator{
		clientCAs: x509.NewCertPool(),
		apiTokens: make(map[string]bool),
	}

	if clientCAFile != "" {
		if err := validator.loadClientCAs(clientCAFile); err != nil {
			return nil, fmt.Errorf("failed to load client CAs: %w", err)
		}
	}

	if tokensFile != "" {
		if err := validator.loadAPITokens(tokensFile); err != nil {
			return nil, fmt.Errorf("failed to load API tokens: %w", err)
		}
	}

	return validator, nil
}

func (v *Validator) loadClientCAs(path string) error {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read CA cert: %w", err)
	}

	if !v.clientCAs.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA cert %s", path)
	}

	v.clientCALoaded = true
	return nil
}

func (v *Validator) loadAPITokens(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read API tokens: %w", err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		token := strings.TrimSpace(line)
		if token != "" && !strings.HasPrefix(token, "#") {
			v.apiTokens[token] = true
		}
	}

	if len(v.apiTokens) == 0 {
		return fmt.Errorf("no tokens in %s", path)
	}
	return nil
}

// Enabled reports whether any credential source was loaded
func (v *Validator) Enabled() bool {
	return len(v.apiTokens) > 0 || v.clientCALoaded
}

// Middleware returns Gin middleware for authentication
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Enabled() || v.validateAPIToken(c) || v.hasVerifiedClientCert(c) {
			c.Next()
			return
		}

		logrus.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"client": c.ClientIP(),
		}).Warn("Rejected unauthenticated request")

		c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
			Error:   "authentication required",
			Message: "provide valid API token or client certificate",
			Code:    http.StatusUnauthorized,
		})
	}
}

// validateAPIToken validates API token from Authorization or X-API-Token headers
func (v *Validator) validateAPIToken(c *gin.Context) bool {
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && token != "" {
		return v.apiTokens[token]
	}

	if token := c.GetHeader("X-API-Token"); token != "" {
		return v.apiTokens[token]
	}

	return false
}

// Chains are verified during the handshake, so presence is enough here
func (v *Validator) hasVerifiedClientCert(c *gin.Context) bool {
	state := c.Request.TLS
	return v.clientCALoaded && state != nil && len(state.VerifiedChains) > 0
}

// TLSConfig returns the server TLS settings. Client certificates are requested and
// verified against the loaded CAs, but tokens remain an alternative.
func (v *Validator) TLSConfig() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if v.clientCALoaded {
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
		cfg.ClientCAs = v.clientCAs
	}
	return cfg
}
