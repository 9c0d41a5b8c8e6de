package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/julianstephens/habitual/internal/logger"
)

// Kind classifies a failure so callers can pick a single user-facing path for it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotAuthenticated
	KindValidation
	KindStore
	KindScheduling
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not authenticated"
	case KindValidation:
		return "validation failed"
	case KindStore:
		return "store failure"
	case KindScheduling:
		return "scheduling failure"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown error"
	}
}

// Error is the value every core operation returns on failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return e.Kind.String()
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors (those with only a Kind set) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrStore            = &Error{Kind: KindStore}
	ErrScheduling       = &Error{Kind: KindScheduling}
	ErrForbidden        = &Error{Kind: KindForbidden}
)

func NotAuthenticated(op string) error {
	return &Error{Kind: KindNotAuthenticated, Op: op, Msg: "no active session"}
}

func Validation(op, msg string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Err: err}
}

func Store(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

func Scheduling(op string, err error) error {
	return &Error{Kind: KindScheduling, Op: op, Err: err}
}

func Forbidden(op, msg string) error {
	return &Error{Kind: KindForbidden, Op: op, Msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage renders err as the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNotAuthenticated:
		return "You are not signed in. Run 'habitual login' first."
	case KindValidation:
		var e *Error
		stderrors.As(err, &e)
		if e.Msg != "" {
			return e.Msg
		}
		return "The habit is incomplete."
	case KindStore:
		return "Could not save your changes. Please try again."
	case KindScheduling:
		return "The habit was saved but its reminder could not be scheduled."
	case KindForbidden:
		return "You can only modify your own habits."
	default:
		return err.Error()
	}
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %s", UserMessage(err))
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err, "kind", KindOf(err))
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}
