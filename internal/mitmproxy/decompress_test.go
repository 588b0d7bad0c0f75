package mitmproxy

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompress_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte(`{"event":"Login"}`))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	out, err := decompress(buf.Bytes(), "gzip")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"Login"}`, string(out))
}

func TestDecompress_Brotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(`{"event":"Login"}`))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	out, err := decompress(buf.Bytes(), "br")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"Login"}`, string(out))
}

func TestDecompress_IdentityPassesThrough(t *testing.T) {
	out, err := decompress([]byte("plain"), "")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))
}

func TestDecompress_UnknownEncodingPassesThrough(t *testing.T) {
	out, err := decompress([]byte("plain"), "x-custom")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))
}
