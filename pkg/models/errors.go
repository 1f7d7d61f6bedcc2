package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the HTTP layer can map them to status codes
type ErrorKind string

const (
	KindNoData         ErrorKind = "no_data"
	KindNoArtifact     ErrorKind = "no_artifact"
	KindTraining       ErrorKind = "training"
	KindIngest         ErrorKind = "ingest"
	KindNotReady       ErrorKind = "not_ready"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindNotFound       ErrorKind = "not_found"
	KindStorage        ErrorKind = "storage"
)

// Sentinel errors, matched by kind through errors.Is
var (
	ErrNoData         = &Error{Kind: KindNoData}
	ErrNoArtifact     = &Error{Kind: KindNoArtifact}
	ErrTraining       = &Error{Kind: KindTraining}
	ErrIngest         = &Error{Kind: KindIngest}
	ErrNotReady       = &Error{Kind: KindNotReady}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
	ErrNotFound       = &Error{Kind: KindNotFound}
)

// Error is a classified failure with the model and operation it happened in.
// Hint is a remediation suggestion shown to API clients.
type Error struct {
	Kind  ErrorKind
	Model string
	Op    string
	Hint  string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Model != "" {
		msg += fmt.Sprintf(" (model %q)", e.Model)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Model == "" && t.Op == "" && t.Err == nil
}

// KindOf returns the kind of the first classified error in the chain, or "" if none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HintOf returns the first non-empty hint in the chain
func HintOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Hint != "" {
			return e.Hint
		}
		err = e.Err
	}
	return ""
}

// NoData reports that a model has no measurements to train on
func NoData(model string) *Error {
	return &Error{
		Kind:  KindNoData,
		Model: model,
		Op:    "train",
		Err:   fmt.Errorf("no measurements stored"),
		Hint:  fmt.Sprintf("feed measurements via POST /feed/%s or seed synthetic data via /feed/%s/testData", model, model),
	}
}

// NoArtifact reports that a model has no usable trained artifact
func NoArtifact(model string, err error) *Error {
	if err == nil {
		err = fmt.Errorf("model has not been trained")
	}
	return &Error{
		Kind:  KindNoArtifact,
		Model: model,
		Op:    "load_artifact",
		Err:   err,
		Hint:  fmt.Sprintf("make sure you call /feed/%s and /retrain/%s first", model, model),
	}
}

// Training wraps a failure of the fitting step
func Training(model string, err error) *Error {
	return &Error{Kind: KindTraining, Model: model, Op: "train", Err: err}
}

// Ingest wraps a failure to persist measurements
func Ingest(model string, err error) *Error {
	return &Error{Kind: KindIngest, Model: model, Op: "ingest", Err: err}
}

// InvalidRequest reports a malformed or out-of-range client request
func InvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Err: errors.New(msg)}
}

// NotReady reports that the service has not finished starting
func NotReady() *Error {
	return &Error{Kind: KindNotReady, Err: errors.New("service is starting up"), Hint: "retry after /health/ready returns 200"}
}

// NotFound reports a missing resource such as an unknown training run
func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf("%s %q not found", what, id)}
}
