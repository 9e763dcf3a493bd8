package prices

import (
	"errors"
	"fmt"
)

var (
	errEmptySnapshot  = errors.New("snapshot has no priced items")
	errNotArray       = errors.New("payload is not a JSON array")
	errEnvelopeFormat = errors.New("relay envelope contents is not a string")
)

// FetchError covers transport failures, timeouts and unhandled statuses.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError covers decompression and envelope failures.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Encoding != "" {
		return fmt.Sprintf("decode (%s): %v", e.Encoding, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ParseError carries a bounded excerpt of the text that failed to parse.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %v (excerpt: %q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistError reports a batch in which no record could be written.
type PersistError struct {
	Failed int
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist: %d records failed: %v", e.Failed, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// stage names the pipeline step an error came from, for logs and metrics.
func stage(err error) string {
	var (
		fe *FetchError
		de *DecodeError
		pe *ParseError
		se *PersistError
	)
	switch {
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &se):
		return "persist"
	case errors.Is(err, errEmptySnapshot):
		return "empty"
	default:
		return "other"
	}
}
