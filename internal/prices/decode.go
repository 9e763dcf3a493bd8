package prices

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

const (
	// controlCharThreshold is how many non-whitespace bytes below 0x20 a body
	// may hold before it counts as binary.
	controlCharThreshold = 10
	maxDecodedBytes      = 64 << 20
	envelopeField        = "contents"
)

const (
	codecBrotli  = "br"
	codecGzip    = "gzip"
	codecDeflate = "deflate"
)

// RawPayload is one response body as it came off the wire.
type RawPayload struct {
	Body            []byte
	ContentEncoding string
	Status          int
	URL             string
	UsedRelay       bool
}

// Decode turns a raw body into JSON text: it decompresses bodies the
// transport left encoded, unwraps relay envelopes and drops noise in front
// of the first array bracket.
//
// A body with no usable codec is passed on as text. A failed decompression
// is an error only when the body is binary; text under a stale
// Content-Encoding header is kept as is.
func Decode(p RawPayload) (string, error) {
	text := strings.TrimSpace(string(p.Body))

	if !looksLikeJSON(text) {
		if codec := codecFor(p.ContentEncoding, p.Body); codec != "" {
			b, err := decompress(codec, p.Body)
			switch {
			case err == nil:
				text = strings.TrimSpace(string(b))
			case looksBinary(p.Body):
				return "", &DecodeError{Encoding: codec, Err: err}
			}
		}
	}

	text, err := unwrapEnvelope(text)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(text, "[") {
		if i := strings.IndexByte(text, '['); i > 0 {
			text = text[i:]
		}
	}
	return strings.TrimSpace(text), nil
}

func looksLikeJSON(text string) bool {
	return strings.HasPrefix(text, "[") || strings.HasPrefix(text, "{")
}

func looksBinary(b []byte) bool {
	return controlChars(b) > controlCharThreshold
}

// controlChars counts bytes below 0x20, ignoring the whitespace that
// pretty-printed JSON carries.
func controlChars(b []byte) int {
	n := 0
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			n++
		}
	}
	return n
}

// codecFor trusts the Content-Encoding header. Without one, only the gzip
// magic number is recognised.
func codecFor(contentEncoding string, body []byte) string {
	enc := strings.ToLower(contentEncoding)
	switch {
	case strings.Contains(enc, "br"):
		return codecBrotli
	case strings.Contains(enc, "gzip"):
		return codecGzip
	case strings.Contains(enc, "deflate"):
		return codecDeflate
	}
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		return codecGzip
	}
	return ""
}

func decompress(codec string, body []byte) ([]byte, error) {
	var r io.Reader
	switch codec {
	case codecBrotli:
		r = brotli.NewReader(bytes.NewReader(body))
	case codecGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case codecDeflate:
		// servers disagree on whether deflate means zlib or raw flate
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		}
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}

	out, err := io.ReadAll(io.LimitReader(r, maxDecodedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecodedBytes {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", maxDecodedBytes)
	}
	return out, nil
}

// unwrapEnvelope extracts the payload a relay wrapped as {"contents": "..."}.
// Objects that are not envelopes pass through unchanged.
func unwrapEnvelope(text string) (string, error) {
	if !strings.HasPrefix(text, "{") || !strings.Contains(text, `"`+envelopeField+`"`) {
		return text, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return text, nil
	}
	raw, ok := wrapper[envelopeField]
	if !ok {
		return text, nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && (raw[0] == '[' || raw[0] == '{') {
		// some relays embed the JSON directly instead of as a string
		return string(raw), nil
	}
	var contents string
	if len(raw) == 0 || raw[0] != '"' {
		return "", &DecodeError{Err: errEnvelopeFormat}
	}
	if err := json.Unmarshal(raw, &contents); err != nil {
		return "", &DecodeError{Err: errEnvelopeFormat}
	}
	return strings.TrimSpace(contents), nil
}
