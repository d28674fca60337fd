// Package proto implements the RouterOS API wire format: length-prefixed
// words grouped into sentences terminated by an empty word.
package proto

import "fmt"

// MaxLength is the first length that cannot be encoded.
const MaxLength = 0x10000000

// ProtocolError reports a malformed frame.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "protocol error"
	}
	return "routeros protocol error: " + e.Msg
}

// EncodeLength encodes n using the variable-width big-endian scheme.
func EncodeLength(n int) ([]byte, error) {
	switch {
	case n < 0:
		return nil, &ProtocolError{Msg: fmt.Sprintf("unable to encode negative length %d", n)}
	case n < 0x80:
		return []byte{byte(n)}, nil
	case n < 0x4000:
		v := uint32(n) | 0x8000
		return []byte{byte(v >> 8), byte(v)}, nil
	case n < 0x200000:
		v := uint32(n) | 0xC00000
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}, nil
	case n < MaxLength:
		v := uint32(n) | 0xE0000000
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}, nil
	default:
		return nil, &ProtocolError{Msg: fmt.Sprintf("unable to encode length of %d", n)}
	}
}

// DecodeLength decodes a complete encoded length (control byte included).
func DecodeLength(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, &ProtocolError{Msg: "empty length"}
	}
	extra, err := extraLengthBytes(b[0])
	if err != nil {
		return 0, err
	}
	if len(b) != extra+1 {
		return 0, &ProtocolError{Msg: fmt.Sprintf("length prefix %x has %d bytes, want %d", b, len(b), extra+1)}
	}

	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	switch extra {
	case 1:
		v ^= 0x8000
	case 2:
		v ^= 0xC00000
	case 3:
		v ^= 0xE0000000
	}
	return int(v), nil
}

// extraLengthBytes returns how many bytes follow the control byte.
func extraLengthBytes(first byte) (int, error) {
	switch {
	case first < 0x80:
		return 0, nil
	case first < 0xC0:
		return 1, nil
	case first < 0xE0:
		return 2, nil
	case first < 0xF0:
		return 3, nil
	default:
		return 0, &ProtocolError{Msg: fmt.Sprintf("unknown control byte 0x%02x", first)}
	}
}
