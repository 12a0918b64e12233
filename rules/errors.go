package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidLoadType
	KindSourceNotFound
	KindSourceUnreadable
	KindSourceTimeout
	KindDuplicateRuleID
	KindMalformedRule
	KindInvalidIdentifier
	KindInvalidMode
	KindCanceled
)

// Sentinel errors, one per kind. A *Error matches its kind's sentinel with errors.Is.
var (
	ErrInvalidLoadType   = errors.New("invalid load type")
	ErrSourceNotFound    = errors.New("source not found")
	ErrSourceUnreadable  = errors.New("source unreadable")
	ErrSourceTimeout     = errors.New("source timeout")
	ErrDuplicateRuleID   = errors.New("duplicate rule id")
	ErrMalformedRule     = errors.New("malformed rule")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidMode       = errors.New("invalid process mode")
	ErrCanceled          = errors.New("request canceled")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidLoadType:   ErrInvalidLoadType,
	KindSourceNotFound:    ErrSourceNotFound,
	KindSourceUnreadable:  ErrSourceUnreadable,
	KindSourceTimeout:     ErrSourceTimeout,
	KindDuplicateRuleID:   ErrDuplicateRuleID,
	KindMalformedRule:     ErrMalformedRule,
	KindInvalidIdentifier: ErrInvalidIdentifier,
	KindInvalidMode:       ErrInvalidMode,
	KindCanceled:          ErrCanceled,
}

// String returns the kind's human-readable name
func (k ErrorKind) String() string {
	if sentinel, ok := kindSentinels[k]; ok {
		return sentinel.Error()
	}
	return "unknown error"
}

// Stage names the pipeline step that raised an error
type Stage string

const (
	StageRequest Stage = "request"
	StageResolve Stage = "resolve"
	StageParse   Stage = "parse"
	StageProcess Stage = "process"
)

// Error is the error type returned by every pipeline stage.
// It carries enough context for a caller to log or display the failure.
type Error struct {
	Kind       ErrorKind
	Identifier string
	LoadType   LoadType
	Stage      Stage
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Identifier != "" {
		fmt.Fprintf(&b, " %q", e.Identifier)
	}
	if e.LoadType.Valid() {
		fmt.Fprintf(&b, " (%s)", e.LoadType)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " during %s", e.Stage)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the ErrorKind of err, or KindUnknown if err is not a *Error
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// withContext fills in identifier, load type and stage on a *Error that lacks them
func withContext(err error, identifier string, loadType LoadType, stage Stage) error {
	var re *Error
	if !errors.As(err, &re) {
		return &Error{Kind: KindUnknown, Identifier: identifier, LoadType: loadType, Stage: stage, Err: err}
	}
	if re.Identifier == "" {
		re.Identifier = identifier
	}
	if !re.LoadType.Valid() {
		re.LoadType = loadType
	}
	if re.Stage == "" {
		re.Stage = stage
	}
	return re
}
