package course

import "errors"

// Sentinel errors for course loading.
var (
	// ErrCourseUnavailable means no usable course could be loaded. The
	// pipeline continues without geometry.
	ErrCourseUnavailable = errors.New("course unavailable")
	ErrUnsupportedFormat = errors.New("unsupported course format")
	ErrNoPoints          = errors.New("course has no positioned points")
	ErrCourseTooLarge    = errors.New("course file too large")
	ErrForbiddenURL      = errors.New("course url not allowed")
	ErrForeignBucket     = errors.New("course bucket not allowed")
)
