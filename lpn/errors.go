package lpn

import "errors"

var (
	ErrBlobVersionMismatch = errors.New("blob version mismatch")
	ErrBlobNotFound        = errors.New("blob not found")

	ErrShardNotFound    = errors.New("shard not found")
	ErrMetaNotFound     = errors.New("meta not found")
	ErrIndexUnavailable = errors.New("index temporarily unavailable")

	ErrMissingQuery      = errors.New("missing lpn parameter")
	ErrNoFiles           = errors.New("no files uploaded")
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	ErrInvalidWorkbook   = errors.New("invalid workbook")

	ErrWriteLeaseConflict = errors.New("write lease conflict")
)

// IsInvalidInput reports whether err was caused by the caller's input rather
// than by storage.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrMissingQuery) ||
		errors.Is(err, ErrNoFiles) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrInvalidWorkbook)
}
