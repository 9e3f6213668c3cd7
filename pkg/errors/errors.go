package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	// CodeBuildFailed covers any error while creating, populating or
	// indexing a cache generation. Recovered locally by resetting the
	// target generation; the serving generation is untouched.
	CodeBuildFailed Code = "BUILD_FAILED"
	// CodeCacheUnavailable signals that no generation is ready. Callers
	// must fall back to the live transactional path, never fail hard.
	CodeCacheUnavailable Code = "CACHE_UNAVAILABLE"
	// CodeInvalidFilter marks a filter or sort name that was never
	// registered. Programmer error, raised at query time.
	CodeInvalidFilter Code = "INVALID_FILTER"
	// CodeConfiguration marks query inputs that cannot resolve a pricing
	// context (empty price-list or visibility-list sets).
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	// CodeContention marks an incremental update that hit a held write
	// path and was abandoned after its bounded wait.
	CodeContention Code = "CONTENTION"
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeDependency Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeBuildFailed: {
		Retryable:     true,
		PublicMessage: "cache rebuild failed",
	},
	CodeCacheUnavailable: {
		Retryable:     true,
		PublicMessage: "catalog cache not ready",
	},
	CodeInvalidFilter: {
		Retryable:     false,
		PublicMessage: "unknown filter or sort",
	},
	CodeConfiguration: {
		Retryable:     false,
		PublicMessage: "pricing context cannot be resolved",
	},
	CodeContention: {
		Retryable:     true,
		PublicMessage: "cache write path contended",
	},
	CodeInternal: {
		Retryable:     true,
		PublicMessage: "internal error",
	},
	CodeDependency: {
		Retryable:     true,
		PublicMessage: "dependency unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
