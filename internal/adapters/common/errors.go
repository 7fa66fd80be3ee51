package common

import "errors"

// ErrTransient and ErrPermanent are sentinel errors adapters will use when
// classifying provider failures.
var (
	ErrTransient = errors.New("transient error")
	ErrPermanent = errors.New("permanent error")
)

// ClassifiedError tags an error with a failure class while keeping its
// message and chain intact, so errors.As still reaches the provider error.
type ClassifiedError struct {
	Class error
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return e.Class.Error()
	}
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Is matches the failure class.
func (e *ClassifiedError) Is(target error) bool { return target == e.Class }

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return &ClassifiedError{Class: ErrTransient, Err: err}
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return &ClassifiedError{Class: ErrPermanent, Err: err}
}
