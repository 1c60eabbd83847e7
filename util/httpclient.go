package util

import (
	"crypto/tls"
	"crypto/x509"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/certifi/gocertifi"
)

var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// HTTPClient returns the HTTP client used for heartbeats and provider
// requests. It trusts the Mozilla roots bundled with gocertifi, since the
// lambda containers often have no system roots. If the bundle can not be
// loaded the system roots are used.
func HTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		pool, err := gocertifi.CACerts()
		if err != nil {
			log.Printf("loading certifi roots: %s", err)
			pool, _ = x509.SystemCertPool()
		}
		httpClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{RootCAs: pool},
			},
		}
	})
	return httpClient
}
