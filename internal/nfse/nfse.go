// Package nfse retrieves municipal service tax documents from the
// fiscal authority API. Every call authenticates with the configured
// PKCS#12 client certificate; the certificate is presented only to the
// hosts of the configured endpoints.
package nfse

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
)

// Config holds tax document service settings.
type Config struct {
	EndpointDPS string // resolves a request ID to an access key
	EndpointKey string // resolves an access key to the document
	EndpointPDF string // resolves an access key to the rendered PDF
	IDPrefix    string // issuer prefix prepended to padded numbers

	CertPath     string // PKCS#12 bundle (.pfx/.p12)
	CertPassword string

	Timeout     time.Duration
	DownloadDir string
}

// Client calls the fiscal API. The HTTP session is built on first use
// and reused; a missing or unreadable certificate surfaces as a Config
// error on every call until fixed.
type Client struct {
	cfg Config

	mu   sync.Mutex
	http *http.Client
}

// New builds a client. No network or certificate work happens yet.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) session() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http != nil {
		return c.http, nil
	}

	key, cert, err := c.loadCertificate()
	if err != nil {
		return nil, err
	}
	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}

	c.http = &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &certBoundTransport{
			hosts: endpointHosts(c.cfg),
			withCert: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{tlsCert}},
			},
			plain: http.DefaultTransport,
		},
	}
	return c.http, nil
}

func (c *Client) loadCertificate() (any, *x509.Certificate, error) {
	if c.cfg.CertPath == "" {
		return nil, nil, errs.New(errs.Config, "client certificate not configured")
	}
	data, err := os.ReadFile(c.cfg.CertPath)
	if err != nil {
		return nil, nil, errs.Wrap(errs.Config, "read certificate "+c.cfg.CertPath, err)
	}
	key, cert, err := pkcs12.Decode(data, c.cfg.CertPassword)
	if err != nil {
		return nil, nil, errs.Wrap(errs.Config, "decode certificate "+c.cfg.CertPath, err)
	}
	return key, cert, nil
}

// CertificateInfo describes the configured client certificate.
type CertificateInfo struct {
	Subject  string
	NotAfter time.Time
}

// VerifyCertificate loads the certificate bundle and reports its
// subject and expiry without touching the network.
func (c *Client) VerifyCertificate() (CertificateInfo, error) {
	_, cert, err := c.loadCertificate()
	if err != nil {
		return CertificateInfo{}, err
	}
	return CertificateInfo{
		Subject:  cert.Subject.String(),
		NotAfter: cert.NotAfter,
	}, nil
}

// certBoundTransport routes requests for the configured endpoint hosts
// through the certificate-carrying transport and everything else
// through a bare one.
type certBoundTransport struct {
	hosts    map[string]bool
	withCert http.RoundTripper
	plain    http.RoundTripper
}

func (t *certBoundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.hosts[req.URL.Host] {
		return t.withCert.RoundTrip(req)
	}
	return t.plain.RoundTrip(req)
}

func endpointHosts(cfg Config) map[string]bool {
	hosts := make(map[string]bool)
	for _, endpoint := range []string{cfg.EndpointDPS, cfg.EndpointKey, cfg.EndpointPDF} {
		if endpoint == "" {
			continue
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" {
			continue
		}
		hosts[u.Host] = true
	}
	return hosts
}
