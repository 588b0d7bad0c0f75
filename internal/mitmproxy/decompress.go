package mitmproxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decompress returns body decoded according to the Content-Encoding
// header value. Unknown or absent encodings are passed through
// unchanged. Returns an error only when the named encoding's decoder
// itself fails — the caller treats that as DecompressionFailed and
// still forwards the original bytes upstream untouched.
func decompress(body []byte, contentEncoding string) ([]byte, error) {
	enc := strings.ToLower(strings.TrimSpace(contentEncoding))
	switch enc {
	case "", "identity":
		return body, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer r.Close() //nolint:errcheck // read-only decompression
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close() //nolint:errcheck // read-only decompression
		return io.ReadAll(r)
	case "br":
		r := brotli.NewReader(bytes.NewReader(body))
		return io.ReadAll(r)
	default:
		return body, nil
	}
}
