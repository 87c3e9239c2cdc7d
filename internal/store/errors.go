package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrReportNotFound is returned by Get for an sn that was never saved.
	ErrReportNotFound = fmt.Errorf("report %w", ErrNotFound)

	// ErrInvalidEntity means a stored report could not be decoded or a row
	// was rejected by a schema constraint.
	ErrInvalidEntity = errors.New("invalid report data")

	// ErrTransactionFailed is returned when a transaction cannot begin or commit.
	ErrTransactionFailed = errors.New("transaction failed")
)

// IsNotFoundError reports whether err is a lookup miss.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// OpError records which store operation failed for which report.
type OpError struct {
	Op  string // "save" or "get"
	SN  string
	Err error
}

func (e *OpError) Error() string {
	if e.SN == "" {
		return fmt.Sprintf("report %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("report %s %s: %v", e.Op, e.SN, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// WrapOp returns nil for a nil err and an *OpError otherwise.
func WrapOp(op, sn string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, SN: sn, Err: err}
}
