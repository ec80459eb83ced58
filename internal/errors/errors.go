// Package errors defines the archive's error taxonomy. Every typed error
// carries a code and wraps one of the package sentinels so callers can
// match with errors.Is and branch on Code.
package errors

import (
	"errors"
	"fmt"
	"strconv"
)

// Error codes.
const (
	CodeUnknown            = "UNKNOWN"
	CodeDatabase           = "DATABASE"
	CodeConfig             = "CONFIG"
	CodeValidation         = "VALIDATION"
	CodeMissingChannel     = "MISSING_CHANNEL"
	CodeInvalidTimestamp   = "INVALID_TIMESTAMP"
	CodeDuplicateTimestamp = "DUPLICATE_TIMESTAMP"
	CodeTargetNotFound     = "TARGET_NOT_FOUND"
	CodeOrphanedReply      = "ORPHANED_REPLY"
	CodePageNotFound       = "PAGE_NOT_FOUND"
	CodePageConflict       = "PAGE_CONFLICT"
)

// Sentinels matched with errors.Is.
var (
	ErrDatabase           = errors.New("database error")
	ErrConfig             = errors.New("configuration error")
	ErrValidation         = errors.New("validation error")
	ErrMissingChannel     = errors.New("message has no channel")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	ErrTargetNotFound     = errors.New("target message not found")
	ErrOrphanedReply      = errors.New("reply parent not found")
	ErrPageNotFound       = errors.New("page not found")
	ErrPageConflict       = errors.New("page changed concurrently")
)

// ApplicationError is implemented by every error in this package.
type ApplicationError interface {
	error
	Code() string
}

// Error is a coded error scoped to a channel and timestamp where relevant.
type Error struct {
	code     string
	sentinel error
	message  string
	cause    error

	Channel string
	TS      float64
}

func (e *Error) Error() string {
	msg := e.message
	if e.Channel != "" {
		msg += " (channel " + e.Channel
		if e.TS != 0 {
			msg += ", ts " + strconv.FormatFloat(e.TS, 'f', -1, 64)
		}
		msg += ")"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.sentinel, e.cause}
	}
	return []error{e.sentinel}
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return CodeUnknown
}

func NewDatabaseError(message string, cause error) error {
	return &Error{code: CodeDatabase, sentinel: ErrDatabase, message: message, cause: cause}
}

func NewConfigError(message string, cause error) error {
	return &Error{code: CodeConfig, sentinel: ErrConfig, message: message, cause: cause}
}

func NewValidationError(message string, cause error) error {
	return &Error{code: CodeValidation, sentinel: ErrValidation, message: message, cause: cause}
}

func NewMissingChannelError() error {
	return &Error{code: CodeMissingChannel, sentinel: ErrMissingChannel, message: ErrMissingChannel.Error()}
}

func NewInvalidTimestampError(field, value string, cause error) error {
	return &Error{
		code:     CodeInvalidTimestamp,
		sentinel: ErrInvalidTimestamp,
		message:  fmt.Sprintf("invalid timestamp in %s: %q", field, value),
		cause:    cause,
	}
}

func NewDuplicateTimestampError(channel string, ts float64) error {
	return &Error{
		code:     CodeDuplicateTimestamp,
		sentinel: ErrDuplicateTimestamp,
		message:  ErrDuplicateTimestamp.Error(),
		Channel:  channel,
		TS:       ts,
	}
}

func NewTargetNotFoundError(channel string, ts float64) error {
	return &Error{
		code:     CodeTargetNotFound,
		sentinel: ErrTargetNotFound,
		message:  ErrTargetNotFound.Error(),
		Channel:  channel,
		TS:       ts,
	}
}

func NewOrphanedReplyError(channel string, ts, parentTS float64) error {
	return &Error{
		code:     CodeOrphanedReply,
		sentinel: ErrOrphanedReply,
		message:  "reply parent " + strconv.FormatFloat(parentTS, 'f', -1, 64) + " not found",
		Channel:  channel,
		TS:       ts,
	}
}

func NewPageNotFoundError(channel string, message string) error {
	return &Error{
		code:     CodePageNotFound,
		sentinel: ErrPageNotFound,
		message:  message,
		Channel:  channel,
	}
}

// NewPageConflictError reports that a page write was based on a stale read
// because another writer closed the page or opened a later one.
func NewPageConflictError(channel string, page int) error {
	return &Error{
		code:     CodePageConflict,
		sentinel: ErrPageConflict,
		message:  fmt.Sprintf("page %d changed concurrently", page),
		Channel:  channel,
	}
}
