package exception

import "errors"

// General errors
var (
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsMisuse reports whether err is caused by calling the engine API out of
// sequence. Misuse is a programming error, every other error in this module
// is a recoverable runtime condition.
func IsMisuse(err error) bool {
	return errors.Is(err, ErrInvalidSequence) || errors.Is(err, ErrAlreadyExecuting)
}
