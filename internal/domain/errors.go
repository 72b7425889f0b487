package domain

import "errors"

// permanentError is implemented by backend errors that retrying would
// not fix, e.g. a Smarty 4xx response other than a rate limit. Run's
// retry loop checks for it via IsPermanent to stop retrying immediately
// instead of exhausting the configured backoff schedule first.
type permanentError interface {
	Permanent() bool
}

// IsPermanent reports whether err (or anything it wraps) identifies
// itself as non-retryable.
func IsPermanent(err error) bool {
	var p permanentError
	if errors.As(err, &p) {
		return p.Permanent()
	}
	return false
}

// Data errors — surfaced immediately, never retried.
var (
	ErrUnknownSpecColumn = errors.New("spec references a column not present in the header")
	ErrDuplicateHeader   = errors.New("duplicate header column")
	ErrArityMismatch     = errors.New("geocoder returned a different number of results than addresses given")
	ErrCachedValueHasNUL = errors.New("cached value contains a NUL byte")
	ErrCacheLengthMismatch = errors.New("cached value has a different column count than the geocoder declares")
)
