package flow

import "errors"

// Sentinel errors for the analysis error taxonomy.
//
// Only ErrMalformedInput and a failed fetch of the top-level workflow abort an
// analysis. The other kinds are recorded in the output (as warnings, sentinel
// analyses or absent children) and are exposed here so collaborators can
// classify wrapped errors with errors.Is.
var (
	// ErrMalformedInput is returned when the root metadata element is missing
	// or the document cannot be parsed.
	ErrMalformedInput = errors.New("flowscope: malformed flow metadata")

	// ErrNotFound is returned by sources when no definition exists for a name.
	ErrNotFound = errors.New("flowscope: flow not found")

	// ErrUnresolvedReference marks an edge or sub-workflow reference that
	// points at a name that cannot be resolved.
	ErrUnresolvedReference = errors.New("flowscope: unresolved reference")

	// ErrDepthExceeded marks a sub-workflow chain that hit the recursion limit.
	ErrDepthExceeded = errors.New("flowscope: maximum recursion depth reached")

	// ErrFetchFailure wraps a failed sub-workflow fetch.
	ErrFetchFailure = errors.New("flowscope: sub-workflow fetch failed")
)

// IsMalformedInputErr returns true if err is or wraps ErrMalformedInput.
func IsMalformedInputErr(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsNotFoundErr returns true if err is or wraps ErrNotFound.
func IsNotFoundErr(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnresolvedReferenceErr returns true if err is or wraps ErrUnresolvedReference.
func IsUnresolvedReferenceErr(err error) bool {
	return errors.Is(err, ErrUnresolvedReference)
}

// IsDepthExceededErr returns true if err is or wraps ErrDepthExceeded.
func IsDepthExceededErr(err error) bool {
	return errors.Is(err, ErrDepthExceeded)
}

// IsFetchFailureErr returns true if err is or wraps ErrFetchFailure.
func IsFetchFailureErr(err error) bool {
	return errors.Is(err, ErrFetchFailure)
}
