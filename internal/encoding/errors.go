package encoding

import "errors"

var (
	// ErrCorrupt is returned when a decoded value falls outside its valid range.
	ErrCorrupt = errors.New("corrupt stream")

	// ErrTruncated is returned when a stream ends before the expected data.
	ErrTruncated = errors.New("truncated stream")
)
