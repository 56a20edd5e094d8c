package werr

import "fmt"

// Error is the single error type every component in this module returns.
// Op names the operation that failed (e.g. "keystore.OpenAsOwner"); Err
// wraps an underlying cause when one exists, otherwise nil.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error of the given kind for op, with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap constructs an Error of the given kind for op, wrapping err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, otherwise returns KindRuntimeFault for any non-nil err and
// KindNone for a nil err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var werr *Error
	if asError(err, &werr) {
		return werr.Kind
	}
	return KindRuntimeFault
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
