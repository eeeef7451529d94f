package payerr

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind is the local classification of an error raised while resolving,
// bounding, quoting or submitting a payment.
type Kind uint8

const (
	// ParseFailure is returned when input cannot be converted to a valid
	// amount.
	ParseFailure Kind = iota

	// ClassificationFailure is returned when a target string matches no
	// known payment format.
	ClassificationFailure

	// InfeasibleBound is returned when no valid amount exists for the
	// target/asset/balance combination. It is reported in preference to
	// OutOfRange.
	InfeasibleBound

	// OutOfRange is returned when an amount lies outside [min, max].
	OutOfRange

	// QuoteStale is returned when a submission is attempted with a quote
	// that has been invalidated. It is a programming guard.
	QuoteStale

	// PrepareFailed is returned when the external prepare call failed.
	PrepareFailed

	// SubmitFailed is returned when the external submit call failed.
	SubmitFailed

	// Expired is returned when a payment did not reach a terminal status
	// within the poll window.
	Expired

	// InvalidFeeRate is returned when a custom fee rate is not a positive
	// number at or above the minimum relay fee.
	InvalidFeeRate

	// InvalidTransition is returned when an operation is not permitted
	// in the current lifecycle state.
	InvalidTransition
)

// String returns a human readable name of the kind.
func (k Kind) String() string {
	switch k {
	case ParseFailure:
		return "ParseFailure"
	case ClassificationFailure:
		return "ClassificationFailure"
	case InfeasibleBound:
		return "InfeasibleBound"
	case OutOfRange:
		return "OutOfRange"
	case QuoteStale:
		return "QuoteStale"
	case PrepareFailed:
		return "PrepareFailed"
	case SubmitFailed:
		return "SubmitFailed"
	case Expired:
		return "Expired"
	case InvalidFeeRate:
		return "InvalidFeeRate"
	case InvalidTransition:
		return "InvalidTransition"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// UserFacing reports whether errors of this kind are meant to be shown to
// the user. Programming guards are logged instead.
func (k Kind) UserFacing() bool {
	switch k {
	case QuoteStale, InvalidTransition:
		return false
	default:
		return true
	}
}

// Error carries a Kind together with the local detail and, for errors that
// originate from an external call, the untouched external message and the
// suggestion derived from it.
type Error struct {
	// Kind is the local classification.
	Kind Kind

	// Detail is the local, human readable description.
	Detail string

	// Raw is the unmodified message returned by the node or SDK, if any.
	Raw string

	// Suggestion is the actionable hint derived from Raw.
	Suggestion Suggestion

	// stillTyping marks a ParseFailure produced by partial input such as
	// a lone decimal point.
	stillTyping bool

	// stack is only captured for programming guards.
	stack *goerrors.Error
}

// A compile time check to ensure Error implements the error interface.
var _ error = (*Error)(nil)

// Error returns the local detail followed by the raw external message.
func (e *Error) Error() string {
	switch {
	case e.Raw != "" && e.Detail != "":
		return fmt.Sprintf("%v: %v: %v", e.Kind, e.Detail, e.Raw)
	case e.Raw != "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Raw)
	case e.Detail != "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Detail)
	default:
		return e.Kind.String()
	}
}

// Is makes errors.Is match any *Error of the same kind when the target
// carries no detail, so the exported sentinels below can be used directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.stillTyping && !e.stillTyping {
		return false
	}

	return t.Detail == "" || t.Detail == e.Detail
}

// StillTyping reports whether this is a ParseFailure caused by partial input
// that may become valid with more keystrokes.
func (e *Error) StillTyping() bool {
	return e.stillTyping
}

// Stack returns the captured call stack for programming guards, or an empty
// string.
func (e *Error) Stack() string {
	if e.stack == nil {
		return ""
	}

	return e.stack.ErrorStack()
}

var (
	// ErrParseFailure matches every ParseFailure.
	ErrParseFailure = &Error{Kind: ParseFailure}

	// ErrStillTyping matches ParseFailures caused by partial input.
	ErrStillTyping = &Error{Kind: ParseFailure, stillTyping: true}

	// ErrInfeasibleBound matches every InfeasibleBound.
	ErrInfeasibleBound = &Error{Kind: InfeasibleBound}

	// ErrOutOfRange matches every OutOfRange.
	ErrOutOfRange = &Error{Kind: OutOfRange}

	// ErrQuoteStale matches every QuoteStale.
	ErrQuoteStale = &Error{Kind: QuoteStale}

	// ErrExpired matches every Expired.
	ErrExpired = &Error{Kind: Expired}

	// ErrInvalidFeeRate matches every InvalidFeeRate.
	ErrInvalidFeeRate = &Error{Kind: InvalidFeeRate}

	// ErrInvalidTransition matches every InvalidTransition.
	ErrInvalidTransition = &Error{Kind: InvalidTransition}
)

// New creates a local error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// NewStillTyping creates the ParseFailure returned for partial input.
func NewStillTyping(input string) *Error {
	return &Error{
		Kind:        ParseFailure,
		Detail:      fmt.Sprintf("incomplete amount %q", input),
		stillTyping: true,
	}
}

// Guard creates a programming guard error with its call stack attached.
func Guard(kind Kind, format string, args ...interface{}) *Error {
	detail := fmt.Sprintf(format, args...)

	return &Error{
		Kind:   kind,
		Detail: detail,
		stack:  goerrors.Wrap(detail, 1),
	}
}

// External wraps an error returned by the node or SDK. The raw message is
// preserved verbatim and classified into a suggestion.
func External(kind Kind, detail string, err error) *Error {
	raw := ""
	if err != nil {
		raw = err.Error()
	}

	return &Error{
		Kind:       kind,
		Detail:     detail,
		Raw:        raw,
		Suggestion: ClassifyFailure(raw),
	}
}

// KindOf extracts the Kind of err, if err wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}

	return e.Kind, true
}

// IsKind returns true if err wraps an *Error with any of the given kinds.
func IsKind(err error, kinds ...Kind) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}

	for _, k := range kinds {
		if k == kind {
			return true
		}
	}

	return false
}
