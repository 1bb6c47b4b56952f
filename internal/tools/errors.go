// ABOUTME: Sentinel errors for the tool failure taxonomy.
// ABOUTME: Handlers wrap these so the executor boundary can classify failures.

package tools

import "errors"

var (
	// ErrUnknownTool indicates a lookup for a name not in the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingArgument indicates a required argument was absent.
	ErrMissingArgument = errors.New("missing argument")

	// ErrSandboxViolation indicates a path outside the base directory or a
	// disallowed write extension.
	ErrSandboxViolation = errors.New("sandbox violation")

	// ErrNotFound indicates a file or directory that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWrongType indicates a file where a directory was expected, or the
	// other way around.
	ErrWrongType = errors.New("wrong path type")

	// ErrTooLarge indicates a file over the configured read limit.
	ErrTooLarge = errors.New("file too large")

	// ErrDecodeFailure indicates content that could not be decoded as text
	// in any supported encoding.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrIOFailure indicates an underlying I/O or transport error.
	ErrIOFailure = errors.New("io failure")
)
