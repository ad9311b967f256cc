package parse

import "errors"

var (
	// ErrUnexpectedEnd reports that the stream ended in the middle of a read.
	// At the end of the preamble and at the end of the sector stream it is the
	// normal way decoding stops.
	ErrUnexpectedEnd = errors.New("unexpected end of stream")

	// ErrMalformedFrame reports a known frame whose declared size does not
	// match its layout.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnsupportedChannel reports a sector record for a channel whose
	// payload format cannot be decoded (BLE).
	ErrUnsupportedChannel = errors.New("unsupported channel")
)
