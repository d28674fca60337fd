package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeWord prefixes the payload of s with its encoded byte length.
func EncodeWord(s string) ([]byte, error) {
	prefix, err := EncodeLength(len(s))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(s))
	out = append(out, prefix...)
	out = append(out, s...)
	return out, nil
}

// DecodeWord decodes exactly one encoded word.
func DecodeWord(b []byte) (string, error) {
	if len(b) == 0 {
		return "", &ProtocolError{Msg: "empty word"}
	}
	extra, err := extraLengthBytes(b[0])
	if err != nil {
		return "", err
	}
	if len(b) < extra+1 {
		return "", &ProtocolError{Msg: "truncated length prefix"}
	}
	n, err := DecodeLength(b[:extra+1])
	if err != nil {
		return "", err
	}
	payload := b[extra+1:]
	if len(payload) != n {
		return "", &ProtocolError{Msg: fmt.Sprintf("word payload has %d bytes, want %d", len(payload), n)}
	}
	return string(payload), nil
}

// EncodeSentence encodes words followed by the end-of-sentence marker.
func EncodeSentence(words ...string) ([]byte, error) {
	var out []byte
	for _, word := range words {
		encoded, err := EncodeWord(word)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return append(out, 0x00), nil
}

// ComposeAttribute builds an "=key=value" word.
func ComposeAttribute(key string, value any) string {
	return "=" + key + "=" + FormatValue(value)
}

// ParseAttribute splits an "=key=value" word and coerces the value.
func ParseAttribute(word string) (string, any, error) {
	key, raw, err := splitAttribute(word)
	if err != nil {
		return "", nil, err
	}
	return key, ParseValue(raw), nil
}

func splitAttribute(word string) (string, string, error) {
	if !strings.HasPrefix(word, "=") {
		return "", "", &ProtocolError{Msg: fmt.Sprintf("attribute word %q must start with '='", word)}
	}
	parts := strings.SplitN(word, "=", 3)
	if len(parts) != 3 {
		return "", "", &ProtocolError{Msg: fmt.Sprintf("attribute word %q has no value separator", word)}
	}
	return parts[1], parts[2], nil
}

// ParseValue turns an API string into int64, bool or string.
func ParseValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	switch raw {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	return raw
}

// FormatValue is the inverse of ParseValue.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
