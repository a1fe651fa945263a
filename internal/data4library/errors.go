package data4library

import (
	"errors"
	"fmt"
)

var (
	ErrCountMismatch    = errors.New("library count mismatch")
	ErrUnexpectedStatus = errors.New("unexpected upstream status")

	// Book page resolution failures.
	ErrNoLibCode     = errors.New("no library code on page")
	ErrNoLink        = errors.New("no download link on page")
	ErrNoURL         = errors.New("download link has no url attribute")
	ErrLibCodeFormat = errors.New("library code does not match expected pattern")
)

// ScrapeError reports which page failed to resolve and why.
type ScrapeError struct {
	PageID string
	Err    error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("library page %s: %v", e.PageID, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }
