// Package ldapwire implements the BER codec and message framing for the
// subset of RFC 4511 this bridge speaks: decoding LDAPMessage envelopes off
// a byte stream, and encoding the response PDUs the connection handler
// emits. Tag values are sourced from github.com/go-ldap/ldap/v3's exported
// protocolOp/result-code constants rather than re-declared here, matching
// the vocabulary a reference LDAP client already uses.
package ldapwire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// MaxMessageBytes is the hard cap on a single buffered LDAPMessage. A
// connection that has not produced a complete message within this many
// bytes is considered malformed or abusive and is dropped.
const MaxMessageBytes = 65536

// ErrOversizeMessage is returned (wrapped in a *DecodeError) when a message
// exceeds MaxMessageBytes before a complete TLV could be read.
var ErrOversizeMessage = errors.New("ldapwire: message exceeds maximum size")

// DecodeError wraps a low-level decode failure together with a best-effort
// peek at the protocolOp tag, computed from whatever raw bytes were read
// before the failure. Peek is only valid when PeekOK is true.
type DecodeError struct {
	Cause     error
	PeekClass int
	PeekTag   int
	PeekOK    bool
}

func (e *DecodeError) Error() string {
	if e.PeekOK {
		return fmt.Sprintf("ldapwire: decode failed (peeked op class=%d tag=%d): %v", e.PeekClass, e.PeekTag, e.Cause)
	}
	return fmt.Sprintf("ldapwire: decode failed: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// IsOversize reports whether err ultimately wraps ErrOversizeMessage.
func IsOversize(err error) bool {
	return errors.Is(err, ErrOversizeMessage)
}

// Message is a decoded LDAPMessage envelope: the messageID and the single
// protocolOp child packet, still in its raw *ber.Packet form so callers can
// inspect Tag/ClassType and walk Children/Value themselves.
type Message struct {
	ID int64
	Op *ber.Packet
}

// Reader frames LDAPMessage values off an underlying byte stream, enforcing
// MaxMessageBytes per message.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for message-at-a-time decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadMessage blocks until one complete LDAPMessage has been read, or
// returns a *DecodeError describing why it could not. Indefinite-length
// BER (a bare 0x80 length octet) on a primitive value is a decode error;
// on a constructed value the underlying codec reads children up to the
// end-of-contents marker and the message is accepted.
func (r *Reader) ReadMessage() (*Message, error) {
	capture := &teeLimitedReader{src: r.br, limit: MaxMessageBytes}

	packet, err := ber.ReadPacket(capture)
	if err != nil {
		if capture.oversize {
			err = ErrOversizeMessage
		}
		class, tag, ok := peekOpTag(capture.captured)
		return nil, &DecodeError{Cause: err, PeekClass: class, PeekTag: tag, PeekOK: ok}
	}

	if len(packet.Children) < 2 {
		return nil, &DecodeError{Cause: fmt.Errorf("ldapMessage: expected messageID and protocolOp, got %d children", len(packet.Children))}
	}

	id, ok := packet.Children[0].Value.(int64)
	if !ok {
		return nil, &DecodeError{Cause: fmt.Errorf("ldapMessage: messageID child is not an integer")}
	}

	return &Message{ID: id, Op: packet.Children[1]}, nil
}

// teeLimitedReader records every byte handed to the BER decoder so a failed
// decode can still be peeked for diagnostics, and fails once more than
// limit bytes have been read for a single message.
type teeLimitedReader struct {
	src      io.Reader
	limit    int
	captured []byte
	oversize bool
}

func (t *teeLimitedReader) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 {
		t.captured = append(t.captured, p[:n]...)
		if len(t.captured) > t.limit {
			t.oversize = true
			return n, ErrOversizeMessage
		}
	}
	return n, err
}

// peekOpTag makes a best-effort attempt to identify the protocolOp's
// class/tag byte directly from raw, possibly-truncated bytes, without
// requiring a successful full decode. It walks the outer SEQUENCE length,
// then the messageID TLV, then reads the protocolOp's own identifier byte.
// Any irregularity (truncation, indefinite length, oversized length
// encoding) yields ok=false rather than a guess.
func peekOpTag(data []byte) (class int, tag int, ok bool) {
	idx := 0
	if idx >= len(data) {
		return 0, 0, false
	}
	idx++ // outer SEQUENCE identifier octet

	_, consumed, lenOK := readDefiniteLength(data[idx:])
	if !lenOK {
		return 0, 0, false
	}
	idx += consumed

	if idx >= len(data) {
		return 0, 0, false
	}
	idx++ // messageID identifier octet

	msgLen, consumed2, lenOK2 := readDefiniteLength(data[idx:])
	if !lenOK2 {
		return 0, 0, false
	}
	idx += consumed2 + int(msgLen)

	if idx >= len(data) {
		return 0, 0, false
	}

	opTag := data[idx]
	class = int(opTag&0xC0) >> 6
	tag = int(opTag & 0x1F)
	return class, tag, true
}

// readDefiniteLength parses a single BER length field: short form (high bit
// clear) or long form (high bit set, low 7 bits give the byte count).
// Indefinite length (0x80 exactly) is rejected, so peekOpTag reports
// ok=false for it.
func readDefiniteLength(data []byte) (length int64, consumed int, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}

	b := data[0]
	if b&0x80 == 0 {
		return int64(b), 1, true
	}

	numBytes := int(b & 0x7f)
	if numBytes == 0 {
		return 0, 0, false
	}
	if numBytes > 8 || len(data) < 1+numBytes {
		return 0, 0, false
	}

	var out int64
	for i := 0; i < numBytes; i++ {
		out = (out << 8) | int64(data[1+i])
	}

	return out, 1 + numBytes, true
}
