package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDataFormat matches any *DataFormatError via errors.Is.
	ErrDataFormat = errors.New("contribution data format error")
	// ErrFetch matches any *FetchError via errors.Is.
	ErrFetch = errors.New("contribution calendar unavailable")
)

// DataFormatError reports a day record that cannot be aggregated. Week and Day
// are positions in the calendar as received.
type DataFormatError struct {
	Week   int
	Day    int
	Date   string
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("invalid contribution day (week=%d, day=%d, date=%q): %s", e.Week, e.Day, e.Date, e.Reason)
}

func (e *DataFormatError) Is(target error) bool {
	return target == ErrDataFormat
}

// FetchErrorKind classifies why the calendar could not be fetched.
type FetchErrorKind string

const (
	FetchNetwork     FetchErrorKind = "network"
	FetchAuth        FetchErrorKind = "auth"
	FetchRateLimited FetchErrorKind = "rate_limited"
	FetchNotFound    FetchErrorKind = "not_found"
	FetchMalformed   FetchErrorKind = "malformed"
)

// FetchError reports that the calendar collaborator could not supply data.
type FetchError struct {
	Identity string
	Kind     FetchErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch contributions for %q (%s): %v", e.Identity, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch contributions for %q (%s)", e.Identity, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// NewFetchError wraps err as a FetchError of the given kind.
func NewFetchError(identity string, kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Identity: identity, Kind: kind, Err: err}
}
