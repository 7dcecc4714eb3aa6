// Package kerr implements the error-kind taxonomy of spec.md §7. It is
// modeled on the call-site style of github.com/grailbio/base/errors
// (errors.E(...) to construct, errors.Is(kind, err) to classify) as used
// throughout the teacher (grailbio-gql/gql/cache.go, gql/panic.go), but
// defines its own Kind enum because spec.md's seven kinds
// (SyntaxError, TypeError, EvaluationError, MemoryError, RuleError,
// CatalogError, Cancelled) have no counterpart in grailbio/base/errors's
// own closed Kind set.
package kerr

import "fmt"

// Kind classifies an Error per spec.md §7.
type Kind int

const (
	// Other is the zero value: an error with no specific kind.
	Other Kind = iota
	// SyntaxError: rule or expression parse failure.
	SyntaxError
	// TypeError: undefined AST node type, operator on incompatible
	// operands, unresolved type in the catalog.
	TypeError
	// EvaluationError: expression could not be folded to a constant when
	// one was required.
	EvaluationError
	// MemoryError: failed virtual-to-physical translation or read past
	// end of dump.
	MemoryError
	// RuleError: runtime failure in a rule action.
	RuleError
	// CatalogError: internal id collision, structural-hash mismatch on
	// update.
	CatalogError
	// Cancelled: operation interrupted.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case TypeError:
		return "TypeError"
	case EvaluationError:
		return "EvaluationError"
	case MemoryError:
		return "MemoryError"
	case RuleError:
		return "RuleError"
	case CatalogError:
		return "CatalogError"
	case Cancelled:
		return "Cancelled"
	default:
		return "Error"
	}
}

// Location is the file:line:column triple spec.md §4.B.5 and §7 require
// every error to report.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a Kind-tagged error with an optional source location and
// wrapped cause, following errors.E's "construct from a mix of typed
// arguments" convention.
type Error struct {
	Kind     Kind
	Location Location
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	loc := e.Location.String()
	switch {
	case loc != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %s: %v", loc, e.Kind, e.Message, e.Cause)
	case loc != "":
		return fmt.Sprintf("%s: %s: %s", loc, e.Kind, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// E constructs an *Error from a mix of Kind, Location, error, and
// fmt.Sprintf-style (format, args...) arguments, mirroring
// errors.E(...)'s variadic-by-type-switch convention.
func E(args ...interface{}) *Error {
	e := &Error{}
	var formatArgs []interface{}
	var format string
	haveFormat := false
	for _, a := range args {
		switch v := a.(type) {
		case Kind:
			e.Kind = v
		case Location:
			e.Location = v
		case error:
			e.Cause = v
		case string:
			if !haveFormat {
				format = v
				haveFormat = true
			} else {
				formatArgs = append(formatArgs, v)
			}
		default:
			formatArgs = append(formatArgs, v)
		}
	}
	if haveFormat {
		e.Message = fmt.Sprintf(format, formatArgs...)
	}
	return e
}

// Is reports whether err is a *Error of the given Kind, unwrapping
// through any wrapper chain, mirroring errors.Is(kind, err).
func Is(kind Kind, err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
