/*
Package nativemsg implements the native-messaging stdio bridge a host
browser extension uses to start, stop, and health-check the proxy
process, plus the supervisor loop and PID-file bookkeeping that back it.
*/
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxMessageSize bounds a single native-messaging frame. Chrome's own
// host protocol caps messages at 1 MiB from the host to the extension;
// mirrored here for reads too since nothing this bridge sends or
// receives is legitimately larger.
const maxMessageSize = 1 << 20

// readMessage reads one 4-byte little-endian length-prefixed JSON frame
// and unmarshals it into v.
func readMessage(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxMessageSize {
		return fmt.Errorf("nativemsg: frame of %d bytes exceeds max %d", n, maxMessageSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

// writeMessage marshals v and writes it as a 4-byte little-endian
// length-prefixed JSON frame.
func writeMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(body) > maxMessageSize {
		return fmt.Errorf("nativemsg: frame of %d bytes exceeds max %d", len(body), maxMessageSize)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
