package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConnection        ErrorKind = "CONNECTION"
	KindParse             ErrorKind = "PARSE"
	KindDuplicateEntry    ErrorKind = "DUPLICATE"
	KindExistingEntry     ErrorKind = "EXISTING"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindEntry             ErrorKind = "ENTRY"
	KindDelete            ErrorKind = "DELETE"
	KindUnknownFormat     ErrorKind = "UNKNOWN_FORMAT"
	KindUnsupportedFormat ErrorKind = "UNSUPPORTED_FORMAT"
	KindLogic             ErrorKind = "LOGIC"
)

// Sentinels for errors.Is checks against an *AppError of the same kind.
var (
	ErrConnection        = &AppError{Kind: KindConnection}
	ErrParse             = &AppError{Kind: KindParse}
	ErrDuplicateEntry    = &AppError{Kind: KindDuplicateEntry}
	ErrExistingEntry     = &AppError{Kind: KindExistingEntry}
	ErrNotFound          = &AppError{Kind: KindNotFound}
	ErrEntry             = &AppError{Kind: KindEntry}
	ErrDelete            = &AppError{Kind: KindDelete}
	ErrUnknownFormat     = &AppError{Kind: KindUnknownFormat}
	ErrUnsupportedFormat = &AppError{Kind: KindUnsupportedFormat}
	ErrLogic             = &AppError{Kind: KindLogic}
)

type AppError struct {
	Kind     ErrorKind
	Table    string
	Key      string
	FileName string
	Message  string
	Err      error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Table != "" {
		msg += fmt.Sprintf(" - table: %s", e.Table)
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" - key: %s", e.Key)
	}
	if e.FileName != "" {
		msg += fmt.Sprintf(" - file: %s", e.FileName)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" - %v", e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches any *AppError with the same Kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *AppError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
