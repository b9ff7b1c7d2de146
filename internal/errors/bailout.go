package errors

import (
	"errors"
	"fmt"
)

// Bailout aborts the current compilation. A permanent bailout means the method cannot
// be compiled under current assumptions; otherwise a retry may succeed.
type Bailout struct {
	Permanent bool
	Reason    string
	Cause     error
}

func (b *Bailout) Error() string {
	kind := "retryable"
	if b.Permanent {
		kind = "permanent"
	}
	if b.Cause != nil {
		return fmt.Sprintf("%s bailout: %s: %v", kind, b.Reason, b.Cause)
	}
	return fmt.Sprintf("%s bailout: %s", kind, b.Reason)
}

func (b *Bailout) Unwrap() error { return b.Cause }

// Code returns the diagnostic code of the bailout
func (b *Bailout) Code() string {
	if b.Permanent {
		return ErrorBailoutPermanent
	}
	return ErrorBailoutRetryable
}

// PermanentBailout creates a bailout that no retry can fix
func PermanentBailout(format string, args ...any) *Bailout {
	return &Bailout{Permanent: true, Reason: fmt.Sprintf(format, args...)}
}

// RetryableBailout creates a bailout caused by a transient condition
func RetryableBailout(cause error, format string, args ...any) *Bailout {
	return &Bailout{Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// IsRetryable reports whether err is, or wraps, a retryable bailout
func IsRetryable(err error) bool {
	var b *Bailout
	return errors.As(err, &b) && !b.Permanent
}

// VerificationError reports a broken invariant of the graph or of a phase. It is a
// compiler bug and aborts the compilation.
type VerificationError struct {
	Code    string
	Phase   string // phase after which the check ran, if any
	Node    string // offending node, if any
	Message string
}

func (v *VerificationError) Error() string {
	msg := fmt.Sprintf("verification failed [%s]", v.Code)
	if v.Phase != "" {
		msg += " after " + v.Phase
	}
	if v.Node != "" {
		msg += " at " + v.Node
	}
	return msg + ": " + v.Message
}

// Verification creates a verification error
func Verification(code, node, format string, args ...any) *VerificationError {
	return &VerificationError{Code: code, Node: node, Message: fmt.Sprintf(format, args...)}
}

// IsVerification reports whether err is, or wraps, a verification error
func IsVerification(err error) bool {
	var v *VerificationError
	return errors.As(err, &v)
}

// CodeOf returns the diagnostic code carried by err, or "" when it carries none
func CodeOf(err error) string {
	var (
		v  *VerificationError
		b  *Bailout
		ce CompilerError
		cl ErrorList
	)
	switch {
	case errors.As(err, &v):
		return v.Code
	case errors.As(err, &b):
		return b.Code()
	case errors.As(err, &ce):
		return ce.Code
	case errors.As(err, &cl) && len(cl) > 0:
		return cl[0].Code
	}
	return ""
}
