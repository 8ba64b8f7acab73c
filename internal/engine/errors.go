package engine

import (
	"errors"
	"fmt"
)

// Kind classifies command rejections. Every Kind is locally recoverable: the
// command is refused with a descriptive reply and no state is mutated.
type Kind int

const (
	// KindUnknownReference: a nick or group was required to exist but does not.
	KindUnknownReference Kind = iota + 1
	// KindInvalidListContent: a group token appeared where only users are allowed.
	KindInvalidListContent
	// KindEmptyList: a removal command resolved no members; reported as a no-op.
	KindEmptyList
	// KindMalformedPattern: an unterminated character class in a listing pattern.
	KindMalformedPattern
	// KindUnauthorized: a non-privileged sender requested URGENT priority.
	KindUnauthorized
	// KindStaleReplyContext: the reply target expired or was never recorded.
	KindStaleReplyContext
)

// Error is a command rejection with a user-presentable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func reject(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a command rejection of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// RejectionOf returns the rejection wrapped in err, if any.
func RejectionOf(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
