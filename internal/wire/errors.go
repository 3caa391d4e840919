package wire

import "errors"

var (
	// ErrFraming reports a malformed header or a payload of the wrong size.
	ErrFraming = errors.New("framing error")

	// ErrDecode reports a decrypted payload too short to hold a record.
	ErrDecode = errors.New("decode error")
)
