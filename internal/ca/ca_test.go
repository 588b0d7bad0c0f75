package ca

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRoot_GeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.pem")
	keyPath := filepath.Join(dir, "ca-key.pem")

	first, err := EnsureRoot(certPath, keyPath)
	require.NoError(t, err)
	assert.True(t, first.Cert.IsCA)
	assert.Equal(t, "Loggy Proxy CA", first.Cert.Subject.CommonName)
	assert.NotEmpty(t, first.Fingerprint)

	second, err := EnsureRoot(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestMintLeaf_CachesPerHost(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.pem")
	keyPath := filepath.Join(dir, "ca-key.pem")

	root, err := EnsureRoot(certPath, keyPath)
	require.NoError(t, err)

	leaf1, err := root.MintLeaf("example.com")
	require.NoError(t, err)
	leaf2, err := root.MintLeaf("example.com")
	require.NoError(t, err)
	assert.Same(t, leaf1, leaf2)

	other, err := root.MintLeaf("other.com")
	require.NoError(t, err)
	assert.NotSame(t, leaf1, other)
	assert.Contains(t, other.Leaf.DNSNames, "other.com")
}
