/*
Package ca manages loggy's root certificate authority and the per-host
leaf certificates it mints for TLS interception.

The root is a 2048-bit RSA key self-signed into a 10-year CA certificate,
persisted as PEM files under the proxy's data directory. Leaf certificates
are generated on demand per SNI hostname and cached for the life of the
process, following the same generate-once-cache-forever discipline the
mitm package in the example proxy corpus uses for its own leaf certs.
*/
package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/jnakagawa/loggy/internal/platform"
)

const (
	rootCommonName = "Loggy Proxy CA"
	rootKeyBits    = 2048
	rootValidity   = 10 * 365 * 24 * time.Hour
	leafValidity   = 24 * time.Hour
	leafKeyBits    = 2048
)

// CA holds a loaded root certificate and private key, plus a cache of
// leaf certificates minted for individual hosts.
type CA struct {
	Cert        *x509.Certificate
	Key         *rsa.PrivateKey
	CertPEM     []byte
	Fingerprint string
	NotAfter    time.Time

	mu    sync.RWMutex
	leafs map[string]*tls.Certificate
}

// EnsureRoot loads the root CA from certPath/keyPath, generating and
// persisting a new one on first run. It is idempotent: subsequent calls
// against the same paths simply load what's there.
func EnsureRoot(certPath, keyPath string) (*CA, error) {
	if fileExists(certPath) && fileExists(keyPath) {
		return Load(certPath, keyPath)
	}
	if err := generate(certPath, keyPath); err != nil {
		return nil, err
	}
	return Load(certPath, keyPath)
}

// GenerateRoot creates a new root CA at certPath/keyPath, refusing to
// overwrite an existing one unless force is set. Used by the explicit
// `generate-ca` CLI subcommand; EnsureRoot covers the common idempotent
// case of starting the proxy.
func GenerateRoot(certPath, keyPath string, force bool) error {
	if !force && (fileExists(certPath) || fileExists(keyPath)) {
		return fmt.Errorf("CA files already exist at %s / %s (use --force to overwrite)", certPath, keyPath)
	}
	return generate(certPath, keyPath)
}

// Load reads a previously generated root certificate and key from disk.
func Load(certPath, keyPath string) (*CA, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate %s: %w", certPath, err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("CA certificate %s: invalid PEM (expected CERTIFICATE block)", certPath)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate %s: %w", certPath, err)
	}
	if !cert.IsCA {
		return nil, fmt.Errorf("CA certificate %s: not a CA certificate", certPath)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read CA key %s: %w", keyPath, err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil || keyBlock.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("CA key %s: invalid PEM (expected RSA PRIVATE KEY block)", keyPath)
	}

	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse CA key %s: %w", keyPath, err)
	}

	return &CA{
		Cert:        cert,
		Key:         key,
		CertPEM:     certPEM,
		Fingerprint: fingerprint(cert.Raw),
		NotAfter:    cert.NotAfter,
		leafs:       make(map[string]*tls.Certificate),
	}, nil
}

// generate creates a new root key and certificate and writes them to disk.
// Fatal to the caller if it fails — proxy start refuses to proceed without
// a CA, per spec.
func generate(certPath, keyPath string) error {
	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return fmt.Errorf("generate CA key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return fmt.Errorf("generate CA serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: rootCommonName,
		},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            2,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create CA certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil { //nolint:gosec // CA cert is public
		return fmt.Errorf("write CA certificate: %w", err)
	}

	keyDER := x509.MarshalPKCS1PrivateKey(key)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("write CA key: %w", err)
	}

	return nil
}

// MintLeaf returns a TLS certificate for host, signed by the root and
// cached for the remainder of the process lifetime.
func (c *CA) MintLeaf(host string) (*tls.Certificate, error) {
	c.mu.RLock()
	if cert, ok := c.leafs[host]; ok {
		c.mu.RUnlock()
		return cert, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if cert, ok := c.leafs[host]; ok {
		return cert, nil
	}

	cert, err := c.generateLeaf(host)
	if err != nil {
		return nil, err
	}
	c.leafs[host] = cert
	return cert, nil
}

func (c *CA) generateLeaf(host string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate leaf key for %s: %w", host, err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("generate leaf serial for %s: %w", host, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host, "*." + host},
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, c.Cert, &key.PublicKey, c.Key)
	if err != nil {
		return nil, fmt.Errorf("create leaf certificate for %s: %w", host, err)
	}

	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate for %s: %w", host, err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// TrustRoot makes a best-effort attempt to install the root certificate
// into the current platform's trust store. Failure here is never fatal
// to the caller — it only means the browser will keep warning until the
// user installs the certificate by hand.
func (c *CA) TrustRoot() (string, error) {
	return platform.TrustRoot(c.CertPEM)
}

func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	out := make([]byte, 0, len(sum)*3-1)
	for i, b := range sum {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&0xf])
	}
	return string(out)
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
