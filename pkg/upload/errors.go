// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"errors"
	"net/http"
)

// Error codes for upload operations
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeValidation
	ErrCodeStorage
	ErrCodeAssembly
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeValidation:
		return "validation"
	case ErrCodeStorage:
		return "storage"
	case ErrCodeAssembly:
		return "assembly"
	default:
		return "none"
	}
}

// Error represents an upload service error with an error code. Message is
// safe to show to clients; Err carries the internal cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to a response status.
func (e *Error) HTTPStatus() int {
	if e.Code == ErrCodeValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func validationError(msg string, err error) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg, Err: err}
}

func storageError(msg string, err error) *Error {
	return &Error{Code: ErrCodeStorage, Message: msg, Err: err}
}

func assemblyError(msg string, err error) *Error {
	return &Error{Code: ErrCodeAssembly, Message: msg, Err: err}
}

// CodeOf returns the code of an upload Error anywhere in err's chain.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeNone
}
