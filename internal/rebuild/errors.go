package rebuild

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes rebuild failures. Every code is fatal to the pass.
type Code string

const (
	// CodeStructural indicates a drop, create or view statement failed.
	CodeStructural Code = "STRUCTURAL"

	// CodeUnknownDiscriminator indicates a (type, subtype) pair with no variant.
	CodeUnknownDiscriminator Code = "UNKNOWN_DISCRIMINATOR"

	// CodeUnknownVariant indicates a decoded payload the router cannot project.
	CodeUnknownVariant Code = "UNKNOWN_VARIANT"

	// CodeMalformedPayload indicates attachment bytes that do not decode.
	CodeMalformedPayload Code = "MALFORMED_PAYLOAD"

	// CodeReferential indicates a row referencing a missing parent.
	CodeReferential Code = "REFERENTIAL"

	// CodeWrite indicates any other statement failure, including the commit.
	CodeWrite Code = "WRITE"

	// CodeSource indicates the ledger cursor failed.
	CodeSource Code = "SOURCE"
)

// Error is the failure of a rebuild pass. The unit of work has been rolled
// back by the time it is returned.
type Error struct {
	Code Code

	// Phase is the phase the pass was trying to reach.
	Phase Phase

	PassID string

	// TransactionID is the ledger row being processed, or 0.
	TransactionID int64

	// Statement is the failing SQL, if any.
	Statement string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: rebuild failed entering %s", e.Code, e.Phase)
	if e.TransactionID != 0 {
		fmt.Fprintf(&b, " at transaction %d", e.TransactionID)
	}
	if e.PassID != "" {
		fmt.Fprintf(&b, " (pass=%s)", e.PassID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a rebuild Error with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// CodeOf returns the code of a rebuild Error, or "" for other errors.
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// ReferenceError names a side-table row whose reference has no parent.
type ReferenceError struct {
	Table         string
	TransactionID int64
	Parent        string
	Detail        string
}

func (e *ReferenceError) Error() string {
	msg := fmt.Sprintf("%s row for transaction %d references a missing %s row", e.Table, e.TransactionID, e.Parent)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
