package devices

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"

	"multi-serial-monitor/types"
)

// decoder turns raw input into text for one connection. It is stateful: a multi-byte
// sequence cut in half by a read is completed by the next one, and a BOM is only honoured
// at the start of the stream. Invalid input is dropped; a U+FFFD the device actually sent
// is kept.
type decoder struct {
	t transform.Transformer // nil means ascii
	// unit is the code unit size of utf-16 and utf-32, zero otherwise
	unit    int
	started bool
	pending []byte
}

func newDecoder(enc types.Encoding) *decoder {
	d := &decoder{}
	switch enc {
	case types.EncodingUTF8:
		d.t = encoding.UTF8Validator
	case types.EncodingUTF16:
		d.t = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		d.unit = 2
	case types.EncodingUTF32:
		d.t = utf32.UTF32(utf32.LittleEndian, utf32.UseBOM).NewDecoder()
		d.unit = 4
	}
	return d
}

func knownEncoding(enc types.Encoding) bool {
	switch enc {
	case types.EncodingASCII, types.EncodingUTF8, types.EncodingUTF16, types.EncodingUTF32:
		return true
	}
	return false
}

func (d *decoder) Decode(p []byte) string {
	if d.t == nil {
		return decodeASCII(p)
	}

	src := append(d.pending, p...)
	d.pending = nil
	dst := make([]byte, 4*len(src)+utf8.UTFMax)
	var out strings.Builder

	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(dst, src, false)
		d.emit(&out, dst[:nDst], src[:nSrc])
		src = src[nSrc:]

		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			src = nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		default:
			// skip the offending byte and carry on
			src = src[1:]
		}
	}
	return out.String()
}

// emit writes decoded text. The utf-16 and utf-32 decoders turn every invalid code unit
// into U+FFFD; those are dropped by matching each output rune with the units it came from.
func (d *decoder) emit(out *strings.Builder, decoded, consumed []byte) {
	if d.unit == 0 {
		out.Write(decoded)
		return
	}
	if !d.started && len(consumed) > 0 {
		d.started = true
		consumed = d.trimBOM(consumed)
	}
	for len(decoded) > 0 {
		r, size := utf8.DecodeRune(decoded)
		decoded = decoded[size:]

		n := d.unit
		if d.unit == 2 && r > 0xFFFF {
			n = 4
		}
		n = min(n, len(consumed))
		units := consumed[:n]
		consumed = consumed[n:]

		if r == utf8.RuneError && !d.isReplacementChar(units) {
			continue
		}
		out.WriteRune(r)
	}
}

func (d *decoder) trimBOM(p []byte) []byte {
	var boms [][]byte
	if d.unit == 2 {
		boms = [][]byte{{0xFE, 0xFF}, {0xFF, 0xFE}}
	} else {
		boms = [][]byte{{0x00, 0x00, 0xFE, 0xFF}, {0xFF, 0xFE, 0x00, 0x00}}
	}
	for _, bom := range boms {
		if bytes.HasPrefix(p, bom) {
			return p[len(bom):]
		}
	}
	return p
}

// isReplacementChar reports whether units encode U+FFFD in either byte order.
func (d *decoder) isReplacementChar(units []byte) bool {
	switch string(units) {
	case "\xFD\xFF", "\xFF\xFD":
		return d.unit == 2
	case "\xFD\xFF\x00\x00", "\x00\x00\xFF\xFD":
		return d.unit == 4
	}
	return false
}

func decodeASCII(p []byte) string {
	var b strings.Builder
	b.Grow(len(p))
	for _, c := range p {
		if c < utf8.RuneSelf {
			b.WriteByte(c)
		}
	}
	return b.String()
}
