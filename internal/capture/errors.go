package capture

import (
	"errors"
	"fmt"
)

// Kind classifies capture errors by where in a session they originate.
type Kind string

// Error kinds
const (
	KindConfig  Kind = "CONFIG_ERROR"
	KindBuild   Kind = "BUILD_ERROR"
	KindLink    Kind = "LINK_ERROR"
	KindRuntime Kind = "RUNTIME_ERROR"
	KindIO      Kind = "IO_ERROR"
)

// Error represents a domain-specific capture error
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrBuild)
// holds for every build failure regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrConfig  = &Error{Kind: KindConfig}
	ErrBuild   = &Error{Kind: KindBuild}
	ErrLink    = &Error{Kind: KindLink}
	ErrRuntime = &Error{Kind: KindRuntime}
	ErrIO      = &Error{Kind: KindIO}
)

// NewConfigError reports an invalid or missing capture target or device.
func NewConfigError(message string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: message, Cause: cause}
}

// NewBuildError reports an element or codec missing from the engine.
func NewBuildError(message string, cause error) *Error {
	return &Error{Kind: KindBuild, Message: message, Cause: cause}
}

// NewLinkError reports two stages that cannot be connected.
func NewLinkError(message string, cause error) *Error {
	return &Error{Kind: KindLink, Message: message, Cause: cause}
}

// NewRuntimeError reports an error posted by the engine during playback.
func NewRuntimeError(message string, cause error) *Error {
	return &Error{Kind: KindRuntime, Message: message, Cause: cause}
}

// NewIOError reports a temp-file create or remove failure.
func NewIOError(message string, cause error) *Error {
	return &Error{Kind: KindIO, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
