package n2k

import "errors"

// Sentinel errors raised by the bit cursor, field codec and PGN descriptor
// walk. Decoding errors never poison the stack: the offending frame is
// dropped and reassembly for that (source, PGN) pair is reset by the caller.
var (
	// ErrBufferTooShort is returned when a read or write would run past the
	// end of the backing byte slice.
	ErrBufferTooShort = errors.New("n2k: buffer too short")

	// ErrTruncated is returned by Decode when the payload ends before the
	// descriptor's declared layout is satisfied.
	ErrTruncated = errors.New("n2k: payload truncated")

	// ErrInconsistentCount is returned by Decode when a repeating block's
	// count field implies more bytes than the payload holds.
	ErrInconsistentCount = errors.New("n2k: inconsistent repeat count")

	// ErrInvalidField is returned when a field's raw bytes are not valid for
	// its kind (e.g. a BCD digit greater than 9).
	ErrInvalidField = errors.New("n2k: invalid field value")

	// ErrPayloadTooLarge is returned by Encode when the serialized payload
	// would exceed the Fast Packet cap of 223 bytes.
	ErrPayloadTooLarge = errors.New("n2k: payload too large for Fast Packet")

	// ErrNotClaimed is returned by Manager.SendPayload (and so by
	// supervisor.Service.Send) when the
	// node does not currently own a source address.
	ErrNotClaimed = errors.New("n2k: source address not claimed")

	// ErrNoFieldValue marks a field whose raw encoding is the "not
	// available" sentinel; callers should treat it as absent, not zero.
	ErrNoFieldValue = errors.New("n2k: field has no value")

	// ErrUnknownPGN is returned when a PGN has no registered descriptor.
	ErrUnknownPGN = errors.New("n2k: unknown PGN")
)
