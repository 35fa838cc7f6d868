// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Kind classifies a Diagnostic so printers and writers can filter or
// format without string-matching messages.
type Kind int

const (
	// SchemaError is a duplicate, malformed, or missing schema definition.
	SchemaError Kind = iota

	// TypeError is a declared type that is unknown to the codec.
	TypeError

	// EncodingError is a declared encoding that is unknown, or inconsistent
	// with the token it is applied to.
	EncodingError

	// TokenError is a value token that did not parse under its declared
	// encoding/type.
	TokenError

	// LengthMismatch is a declared element count that does not match the
	// number of elements actually supplied.
	LengthMismatch

	// FormatError is a container (QCN/MBN/ELF) that failed a structural
	// check. Fatal when returned through fatal(); the readers also record
	// it as a collected diagnostic for a damaged record or stream they skip.
	FormatError

	// RangeError is an integer value outside the declared bit width.
	RangeError

	// IoError is an underlying file I/O failure. Fatal when returned through
	// fatal(); a failed QCN stream read or xi:include is recorded as a
	// collected diagnostic instead.
	IoError
)

func (k Kind) String() string {
	switch k {
	case SchemaError:
		return "SchemaError"
	case TypeError:
		return "TypeError"
	case EncodingError:
		return "EncodingError"
	case TokenError:
		return "TokenError"
	case LengthMismatch:
		return "LengthMismatch"
	case FormatError:
		return "FormatError"
	case RangeError:
		return "RangeError"
	case IoError:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Diagnostic is one item in an item's append-only errors list. A present
// Diagnostic never blocks emission of the surrounding data; printers and
// writers read the byte payload unconditionally.
type Diagnostic struct {
	Kind    Kind
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// newDiag builds a Diagnostic with a formatted message.
func newDiag(k Kind, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// diagList is an append-only, ordered collection of per-item diagnostics.
// Internally it rides on multierr so components can build it up with
// ordinary error-handling idiom, then flatten to []Diagnostic for
// presentation.
type diagList struct {
	err error
}

func (d *diagList) add(diag Diagnostic) {
	d.err = multierr.Append(d.err, diag)
}

func (d *diagList) addf(k Kind, format string, args ...any) {
	d.add(newDiag(k, format, args...))
}

func (d *diagList) extend(other []Diagnostic) {
	for _, diag := range other {
		d.add(diag)
	}
}

// diagnostics flattens the accumulated errors into an ordered slice,
// preserving the order diagnostics were produced in.
func (d *diagList) diagnostics() []Diagnostic {
	errs := multierr.Errors(d.err)
	out := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		var diag Diagnostic
		if errors.As(e, &diag) {
			out = append(out, diag)
		} else {
			out = append(out, Diagnostic{Kind: FormatError, Message: e.Error()})
		}
	}
	return out
}

func (d *diagList) empty() bool {
	return d.err == nil
}

// fatal wraps a Diagnostic of a fatal Kind (FormatError or IoError) as a
// plain Go error, for components whose contract is "abort the current
// command" rather than "collect and continue".
func fatal(k Kind, format string, args ...any) error {
	return fmt.Errorf("%w", newDiag(k, format, args...))
}
