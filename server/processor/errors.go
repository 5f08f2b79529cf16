package processor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a frame could not be ingested.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindMissingInput: the upload carried no image.
	KindMissingInput
	// KindDecodeFailure: malformed data URL, base64 or image bytes.
	KindDecodeFailure
	// KindDetectionFailure: a detector failed, timed out or panicked.
	KindDetectionFailure
	// KindOverloaded: the processing queue is full or shutting down.
	KindOverloaded
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindDecodeFailure:
		return "decode_failure"
	case KindDetectionFailure:
		return "detection_failure"
	case KindOverloaded:
		return "overloaded"
	default:
		return "unknown"
	}
}

type IngestError struct {
	Kind ErrorKind
	Err  error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func newIngestError(kind ErrorKind, err error) *IngestError {
	return &IngestError{Kind: kind, Err: err}
}

// KindOf returns the ingest classification of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}
