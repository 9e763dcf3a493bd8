package prices

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"skinprice/internal/logger"
)

const (
	nameField          = "market_hash_name"
	primaryPriceField  = "lowest_price"
	fallbackPriceField = "min_price"

	parseExcerptLen    = 200
	notArrayExcerptLen = 120
)

// Reasons an element is dropped from a payload.
const (
	SkipNotObject = "not_object"
	SkipNoName    = "missing_name"
	SkipBadName   = "invalid_name"
	SkipNoPrice   = "no_positive_price"
)

// Candidate is one (name, price) pair as the upstream spelled it.
type Candidate struct {
	Name  string
	Price float64
}

// ParseReport counts what happened to each array element.
type ParseReport struct {
	Elements int
	Accepted int
	Skipped  map[string]int
}

// Parse reads the first JSON value in text, which must be an array, and
// extracts a candidate from every element that has a name and a positive
// price. Anything after the first value is ignored.
func Parse(text string) ([]Candidate, ParseReport, error) {
	report := ParseReport{Skipped: map[string]int{}}

	dec := json.NewDecoder(strings.NewReader(text))
	var top json.RawMessage
	if err := dec.Decode(&top); err != nil {
		return nil, report, &ParseError{Excerpt: excerpt(text, parseExcerptLen), Err: err}
	}
	if t := bytes.TrimSpace(top); len(t) == 0 || t[0] != '[' {
		return nil, report, &ParseError{Excerpt: excerpt(text, notArrayExcerptLen), Err: errNotArray}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(top, &elems); err != nil {
		return nil, report, &ParseError{Excerpt: excerpt(text, parseExcerptLen), Err: err}
	}

	report.Elements = len(elems)
	cands := make([]Candidate, 0, len(elems))
	for _, el := range elems {
		c, reason := parseElement(el)
		if reason != "" {
			report.Skipped[reason]++
			continue
		}
		cands = append(cands, c)
	}
	report.Accepted = len(cands)
	return cands, report, nil
}

func parseElement(el json.RawMessage) (Candidate, string) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(el, &obj); err != nil || obj == nil {
		return Candidate{}, SkipNotObject
	}

	rawName, ok := obj[nameField]
	if !ok {
		return Candidate{}, SkipNoName
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || strings.TrimSpace(name) == "" {
		return Candidate{}, SkipBadName
	}

	price, ok := numberField(obj, primaryPriceField)
	if !ok || price <= 0 {
		price, ok = numberField(obj, fallbackPriceField)
	}
	if !ok || price <= 0 {
		return Candidate{}, SkipNoPrice
	}
	return Candidate{Name: name, Price: price}, ""
}

// numberField accepts JSON numbers and numeric strings. Null, absent and
// non-finite values report false.
func numberField(obj map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := obj[key]
	if !ok {
		return 0, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// excerpt bounds text for error messages. HTML error pages are reduced to
// their title, which says more than the first bytes of markup.
func excerpt(text string, max int) string {
	if isHTML(text) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				return logger.Snippet("html: "+title, max)
			}
		}
	}
	return logger.Snippet(text, max)
}

func isHTML(text string) bool {
	head := strings.ToLower(logger.Snippet(strings.TrimSpace(text), 512))
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html")
}
