package proto

import (
	"bytes"
	"errors"
	"testing"
)

func TestLengthRoundTrip(t *testing.T) {
	values := []int{
		0, 1, 0x7f, 0x80, 0x81, 0x3fff, 0x4000, 0x4001,
		0x1fffff, 0x200000, 0x200001, 0xfffffff,
	}
	for _, n := range values {
		encoded, err := EncodeLength(n)
		if err != nil {
			t.Fatalf("EncodeLength(%d) returned error: %v", n, err)
		}
		got, err := DecodeLength(encoded)
		if err != nil {
			t.Fatalf("DecodeLength(%x) returned error: %v", encoded, err)
		}
		if got != n {
			t.Fatalf("round trip of %d returned %d", n, got)
		}
	}
}

func TestLengthSweep(t *testing.T) {
	for n := 0; n < 0x30000; n += 7 {
		encoded, err := EncodeLength(n)
		if err != nil {
			t.Fatalf("EncodeLength(%d) returned error: %v", n, err)
		}
		got, err := DecodeLength(encoded)
		if err != nil || got != n {
			t.Fatalf("round trip of %d returned %d, %v", n, got, err)
		}
	}
}

func TestEncodeLengthWidths(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{n: 0x7f, want: []byte{0x7f}},
		{n: 0x80, want: []byte{0x80, 0x80}},
		{n: 0x3fff, want: []byte{0xbf, 0xff}},
		{n: 0x4000, want: []byte{0xc0, 0x40, 0x00}},
		{n: 0x200000, want: []byte{0xe0, 0x20, 0x00, 0x00}},
	}
	for _, tt := range tests {
		got, err := EncodeLength(tt.n)
		if err != nil {
			t.Fatalf("EncodeLength(%d) returned error: %v", tt.n, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Fatalf("EncodeLength(%d) = %x, want %x", tt.n, got, tt.want)
		}
	}
}

func TestEncodeLengthTooLarge(t *testing.T) {
	_, err := EncodeLength(268435456)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestDecodeLengthUnknownControlByte(t *testing.T) {
	_, err := DecodeLength([]byte{0xf0, 0, 0, 0, 0})
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestWordRoundTrip(t *testing.T) {
	words := []string{"", "/interface/print", "=comment=žluťoučký kůň", string(bytes.Repeat([]byte("a"), 300))}
	for _, word := range words {
		encoded, err := EncodeWord(word)
		if err != nil {
			t.Fatalf("EncodeWord returned error: %v", err)
		}
		got, err := DecodeWord(encoded)
		if err != nil {
			t.Fatalf("DecodeWord returned error: %v", err)
		}
		if got != word {
			t.Fatalf("round trip returned %q, want %q", got, word)
		}
	}
}

func TestParseAttribute(t *testing.T) {
	tests := []struct {
		word  string
		key   string
		value any
	}{
		{word: "=x=yes", key: "x", value: true},
		{word: "=x=true", key: "x", value: true},
		{word: "=x=no", key: "x", value: false},
		{word: "=x=false", key: "x", value: false},
		{word: "=x=42", key: "x", value: int64(42)},
		{word: "=x=hello", key: "x", value: "hello"},
		{word: "=x=", key: "x", value: ""},
		{word: "=comment=a=b", key: "comment", value: "a=b"},
		{word: "=.id=*1A", key: ".id", value: "*1A"},
	}
	for _, tt := range tests {
		key, value, err := ParseAttribute(tt.word)
		if err != nil {
			t.Fatalf("ParseAttribute(%q) returned error: %v", tt.word, err)
		}
		if key != tt.key || value != tt.value {
			t.Fatalf("ParseAttribute(%q) = (%q, %#v), want (%q, %#v)", tt.word, key, value, tt.key, tt.value)
		}
	}

	if _, _, err := ParseAttribute("x=1"); err == nil {
		t.Fatalf("expected error for word without leading '='")
	}
}

func TestComposeAttribute(t *testing.T) {
	if got := ComposeAttribute("disabled", true); got != "=disabled=yes" {
		t.Fatalf("unexpected word %q", got)
	}
	if got := ComposeAttribute("disabled", false); got != "=disabled=no" {
		t.Fatalf("unexpected word %q", got)
	}
	if got := ComposeAttribute("mtu", 1500); got != "=mtu=1500" {
		t.Fatalf("unexpected word %q", got)
	}
}

func TestReadSentence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteSentence("!re", "=name=ether1", "=running=true", ".tag=7"); err != nil {
		t.Fatalf("WriteSentence returned error: %v", err)
	}
	if err := w.WriteSentence("!done"); err != nil {
		t.Fatalf("WriteSentence returned error: %v", err)
	}

	r := NewReader(&buf)
	first, err := r.ReadSentence()
	if err != nil {
		t.Fatalf("ReadSentence returned error: %v", err)
	}
	if first.Word != "!re" || first.Tag != "7" {
		t.Fatalf("unexpected sentence header %q tag %q", first.Word, first.Tag)
	}
	values := first.Values()
	if values["name"] != "ether1" || values["running"] != true {
		t.Fatalf("unexpected values %#v", values)
	}
	second, err := r.ReadSentence()
	if err != nil {
		t.Fatalf("ReadSentence returned error: %v", err)
	}
	if second.Word != "!done" || len(second.List) != 0 {
		t.Fatalf("unexpected done sentence %#v", second)
	}
}

func TestReadSentenceEmptyWordIsNotTerminator(t *testing.T) {
	stream := []byte{0x03, '!', 'r', 'e', 0x80, 0x00, 0x04, '=', 'a', '=', 'b', 0x00}
	r := NewReader(bytes.NewReader(stream))

	sentence, err := r.ReadSentence()
	if err != nil {
		t.Fatalf("ReadSentence returned error: %v", err)
	}
	if sentence.Word != "!re" {
		t.Fatalf("unexpected reply word %q", sentence.Word)
	}
	if sentence.Map["a"] != "b" {
		t.Fatalf("attribute after the empty word was lost: %#v", sentence.Map)
	}
	if len(sentence.Words) != 1 || sentence.Words[0] != "" {
		t.Fatalf("expected the empty word to be kept, got %#v", sentence.Words)
	}
}

func TestReadSentenceTruncated(t *testing.T) {
	encoded, _ := EncodeSentence("!re", "=name=ether1")
	r := NewReader(bytes.NewReader(encoded[:5]))
	if _, err := r.ReadSentence(); err == nil {
		t.Fatalf("expected error on truncated stream")
	}
}
