package manifest

import "errors"

// File-level failures. Any of these aborts a load or save as a whole; callers
// keep their previous in-memory state.
var (
	// ErrNotFound means the chosen path holds no manifest.
	ErrNotFound = errors.New("manifest not found")
	// ErrParse means the manifest is not valid JSON or its root is not an object.
	ErrParse = errors.New("manifest parse error")
	// ErrIO covers read and write failures (permissions, disk).
	ErrIO = errors.New("manifest i/o error")
)

// ValidationSkip records a field value that was outside its expected set and
// was normalized in place instead of failing the load.
type ValidationSkip struct {
	Sample int    // index into samples, -1 for dataset metadata
	Field  string // manifest key
	Raw    string // value as found in the file
	Used   string // value kept after normalization
}
