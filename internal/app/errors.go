package app

import (
	"errors"
	"fmt"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownReference = errors.New("unknown reference")
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrJointBlocked     = errors.New("joint is blocked")
)

// UnknownReferenceError reports a write that names a joint, line or fluid the registry does not hold.
type UnknownReferenceError struct {
	Entity string
	ID     string
}

// Error implements error.
func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Entity, e.ID)
}

// Unwrap lets errors.Is match ErrUnknownReference.
func (e *UnknownReferenceError) Unwrap() error {
	return ErrUnknownReference
}

// unknownRef builds an UnknownReferenceError.
func unknownRef(entity, id string) error {
	return &UnknownReferenceError{Entity: entity, ID: id}
}
