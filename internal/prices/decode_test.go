package prices

import (
	"bytes"
	"compress/gzip"
	"errors"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

const sampleItems = `[{"market_hash_name":"AK-47 | Redline (Field-Tested)","lowest_price":12.5,"min_price":12.1},` +
	`{"market_hash_name":"AWP | Asiimov (Battle-Scarred)","lowest_price":null,"min_price":48.3}]`

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func brotliBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write([]byte(s)); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePlainJSON(t *testing.T) {
	got, err := Decode(RawPayload{Body: []byte("  " + sampleItems + "\n")})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != sampleItems {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecodeCompressed(t *testing.T) {
	cases := []struct {
		name     string
		body     []byte
		encoding string
	}{
		{"gzip header", gzipBytes(t, sampleItems), "gzip"},
		{"gzip sniffed", gzipBytes(t, sampleItems), ""},
		{"brotli header", brotliBytes(t, sampleItems), "br"},
		{"brotli mixed case header", brotliBytes(t, sampleItems), "BR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(RawPayload{Body: tc.body, ContentEncoding: tc.encoding})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != sampleItems {
				t.Fatalf("Decode = %q", got)
			}
		})
	}
}

func TestDecodeBinaryHeaderMismatch(t *testing.T) {
	body := bytes.Repeat([]byte{0x01, 0x02, 'x'}, 20)
	_, err := Decode(RawPayload{Body: body, ContentEncoding: "gzip"})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Encoding != "gzip" {
		t.Fatalf("encoding = %q", de.Encoding)
	}
}

func TestDecodeTextUnderStaleHeader(t *testing.T) {
	body := "upstream notice: " + sampleItems
	got, err := Decode(RawPayload{Body: []byte(body), ContentEncoding: "gzip"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != sampleItems {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecodeUnknownBinaryPassesThrough(t *testing.T) {
	body := bytes.Repeat([]byte{0x01, 0x02, 'x'}, 20)
	got, err := Decode(RawPayload{Body: body})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// no codec, so the parser is the one to reject it
	if _, _, err := Parse(got); err == nil {
		t.Fatal("expected parse error for binary body")
	}
}

func TestDecodePrettyPrintedBehindBanner(t *testing.T) {
	body := "Warning: upstream slow\n[\n" +
		"  {\n    \"market_hash_name\": \"AK-47 | Redline (Field-Tested)\",\n    \"lowest_price\": 12.5\n  },\n" +
		"  {\n    \"market_hash_name\": \"AWP | Asiimov (Battle-Scarred)\",\n    \"min_price\": 48.3\n  }\n]\n"
	got, err := Decode(RawPayload{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !strings.HasPrefix(got, "[") || !strings.HasSuffix(got, "]") {
		t.Fatalf("Decode = %q", got)
	}
	cands, _, err := Parse(got)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %+v", cands)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	inner := strings.ReplaceAll(sampleItems, `"`, `\"`)
	body := `{"contents":"` + inner + `","status":{"http_code":200}}`

	got, err := Decode(RawPayload{Body: []byte(body), UsedRelay: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != sampleItems {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecodeEnvelopeEmbeddedArray(t *testing.T) {
	got, err := Decode(RawPayload{Body: []byte(`{"contents":` + sampleItems + `}`)})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != sampleItems {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecodeEnvelopeNotString(t *testing.T) {
	for _, body := range []string{`{"contents":null}`, `{"contents":42}`} {
		_, err := Decode(RawPayload{Body: []byte(body)})
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Decode(%s): expected DecodeError, got %v", body, err)
		}
	}
}

func TestDecodeObjectWithoutEnvelope(t *testing.T) {
	body := `{"errors":[{"id":"rate_limited"}]}`
	got, err := Decode(RawPayload{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// the bracket trim still applies to objects that are not envelopes
	if got != `[{"id":"rate_limited"}]}` {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecodeTrimsPrefixNoise(t *testing.T) {
	body := "<b>Warning</b>: upstream slow\n" + sampleItems
	got, err := Decode(RawPayload{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != sampleItems {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecodeGzippedEnvelope(t *testing.T) {
	inner := strings.ReplaceAll(sampleItems, `"`, `\"`)
	body := gzipBytes(t, `{"contents":"`+inner+`"}`)
	got, err := Decode(RawPayload{Body: body, ContentEncoding: "gzip", UsedRelay: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != sampleItems {
		t.Fatalf("Decode = %q", got)
	}
}
