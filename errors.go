package xpk

import (
	"errors"
	"fmt"

	"github.com/nxengine/xpk/internal/encoding"
)

// Common sentinel errors for the xpk package.
var (
	// ErrInvalidSignature is returned when a buffer does not start with the
	// packed-data signature.
	ErrInvalidSignature = errors.New("invalid packed-data signature")

	// ErrTruncatedInput is returned when a buffer is shorter than its header
	// or one of its streams declares.
	ErrTruncatedInput = errors.New("truncated packed data")

	// ErrCorruptStream is returned when a decoded rank, length or
	// back-reference falls outside its valid range.
	ErrCorruptStream = errors.New("corrupt packed data")

	// ErrNotCompressible is returned by Pack when packing would not shrink
	// the input. It is not a failure: store the input verbatim instead.
	ErrNotCompressible = errors.New("data not compressible")

	// ErrInvalidMode is returned for a mode outside ModeRank..ModeBackref.
	ErrInvalidMode = errors.New("invalid pack mode")

	// ErrAssetNotFound is returned when an asset key does not exist.
	ErrAssetNotFound = errors.New("asset not found")
)

// FormatErrorKind categorizes decode failures.
type FormatErrorKind int

const (
	// FormatErrorSignature indicates a header tag mismatch.
	FormatErrorSignature FormatErrorKind = iota
	// FormatErrorTruncated indicates the buffer ended early.
	FormatErrorTruncated
	// FormatErrorCorrupt indicates an out-of-range value in a stream.
	FormatErrorCorrupt
)

// FormatError provides detailed information about unpack failures.
type FormatError struct {
	Kind  FormatErrorKind
	Stage string
	Depth int
	Cause error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("unpack %s", e.Stage)
	if e.Depth > 0 {
		msg = fmt.Sprintf("%s (depth %d)", msg, e.Depth)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for FormatError.
func (e *FormatError) Is(target error) bool {
	switch e.Kind {
	case FormatErrorSignature:
		return target == ErrInvalidSignature
	case FormatErrorTruncated:
		return target == ErrTruncatedInput
	case FormatErrorCorrupt:
		return target == ErrCorruptStream
	}
	return false
}

func newFormatError(kind FormatErrorKind, stage string, cause error) *FormatError {
	return &FormatError{Kind: kind, Stage: stage, Cause: cause}
}

// stageError classifies an error from an encoding stage.
func stageError(stage string, err error) error {
	kind := FormatErrorCorrupt
	if errors.Is(err, encoding.ErrTruncated) {
		kind = FormatErrorTruncated
	}
	return newFormatError(kind, stage, err)
}
