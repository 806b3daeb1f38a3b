package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyDirectory = errors.New("asset directory is empty")
	ErrOfferNotFound  = errors.New("offer not accessible")
	ErrNoOffers       = errors.New("no offers")
	ErrWrongOfferType = errors.New("wrong offer type")
	ErrAlreadyExists  = errors.New("already exists")
	ErrTxFailed       = errors.New("transaction reverted")
	ErrLockHeld       = errors.New("lock already held")
)

// ExternalError wraps a failure from a third-party HTTP API or a chain RPC
// call. Source names the collaborator ("cryptomarket", "realestate",
// "miningsite", "chain"), Op the operation that failed, and Status carries an
// HTTP-style status code when one applies (0 otherwise).
type ExternalError struct {
	Source string
	Op     string
	Status int
	Err    error
}

func (e *ExternalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Source, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// NewExternalError builds an ExternalError; a nil cause is normalized so the
// wrapper never panics when formatted.
func NewExternalError(source, op string, status int, err error) *ExternalError {
	if err == nil {
		err = errors.New("request failed")
	}
	return &ExternalError{Source: source, Op: op, Status: status, Err: err}
}

// IsExternal reports whether err is (or wraps) an ExternalError. The HTTP
// layer maps these to 5xx responses; every other error kind travels back as
// an informational payload.
func IsExternal(err error) bool {
	var e *ExternalError
	return errors.As(err, &e)
}
