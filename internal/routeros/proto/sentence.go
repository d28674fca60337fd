package proto

import (
	"io"
	"strings"
)

// Pair is one attribute of a sentence in wire order.
type Pair struct {
	Key   string
	Value string
}

// Sentence is one decoded API sentence.
type Sentence struct {
	// Word is the command or reply word (!re, !done, !trap, !fatal).
	Word string
	Tag  string
	List []Pair
	Map  map[string]string
	// Words holds non-attribute words, for example the message of !fatal.
	Words []string
}

// Values returns the attributes with typed values.
func (s *Sentence) Values() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(s.List))
	for _, pair := range s.List {
		out[pair.Key] = ParseValue(pair.Value)
	}
	return out
}

// ExactReader is implemented by transports that loop until n bytes arrive.
type ExactReader interface {
	ReadExact(n int) ([]byte, error)
}

// Reader decodes sentences from a byte stream.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) read(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if exact, ok := r.r.(ExactReader); ok {
		return exact.ReadExact(n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadWord reads one word. end reports the end-of-sentence marker, which
// is the single byte 0x00 and not any zero-length word.
func (r *Reader) ReadWord() (word string, end bool, err error) {
	first, err := r.read(1)
	if err != nil {
		return "", false, err
	}
	if first[0] == 0x00 {
		return "", true, nil
	}
	extra, err := extraLengthBytes(first[0])
	if err != nil {
		return "", false, err
	}
	prefix := first
	if extra > 0 {
		rest, err := r.read(extra)
		if err != nil {
			return "", false, err
		}
		prefix = append(prefix, rest...)
	}
	n, err := DecodeLength(prefix)
	if err != nil {
		return "", false, err
	}
	payload, err := r.read(n)
	if err != nil {
		return "", false, err
	}
	return string(payload), false, nil
}

// ReadSentence reads words until the end-of-sentence marker.
func (r *Reader) ReadSentence() (*Sentence, error) {
	var words []string
	for {
		word, end, err := r.ReadWord()
		if err != nil {
			return nil, err
		}
		if end {
			break
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return nil, &ProtocolError{Msg: "empty sentence"}
	}
	return parseSentence(words)
}

func parseSentence(words []string) (*Sentence, error) {
	sentence := &Sentence{Word: words[0], Map: make(map[string]string, len(words)-1)}
	for _, word := range words[1:] {
		switch {
		case strings.HasPrefix(word, ".tag="):
			sentence.Tag = strings.TrimPrefix(word, ".tag=")
		case strings.HasPrefix(word, "="):
			key, value, err := splitAttribute(word)
			if err != nil {
				return nil, err
			}
			sentence.List = append(sentence.List, Pair{Key: key, Value: value})
			sentence.Map[key] = value
		default:
			sentence.Words = append(sentence.Words, word)
		}
	}
	return sentence, nil
}

// Writer encodes sentences onto a byte stream.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSentence writes the command word, its attribute words and the terminator in one write.
func (w *Writer) WriteSentence(words ...string) error {
	encoded, err := EncodeSentence(words...)
	if err != nil {
		return err
	}
	_, err = w.w.Write(encoded)
	return err
}
