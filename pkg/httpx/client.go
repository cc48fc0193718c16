package httpx

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	loadcasttls "github.com/HatiCode/loadcast/pkg/tls"
)

// NewClient creates an HTTP client for outbound calls. When tlsCfg is enabled
// the client verifies servers against its CA and presents its certificate.
func NewClient(tlsCfg loadcasttls.Config, timeout time.Duration) (*http.Client, error) {
	var clientTLS *tls.Config
	if tlsCfg.Enabled {
		var err error
		if clientTLS, err = loadcasttls.NewClientTLSConfig(tlsCfg); err != nil {
			return nil, fmt.Errorf("create TLS config: %w", err)
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			TLSClientConfig:     clientTLS,
		},
	}, nil
}
