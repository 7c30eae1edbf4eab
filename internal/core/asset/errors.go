package asset

import "errors"

// Error taxonomy shared across the pipeline. Callers match with errors.Is.
var (
	// ErrDuplicate marks a uniqueness violation in the catalog or ledger.
	ErrDuplicate = errors.New("already exists")
	// ErrValidation marks a row batch that failed its schema or range checks.
	ErrValidation = errors.New("validation failed")
	// ErrParse marks a candidate file that could not be decoded.
	ErrParse = errors.New("unparseable")
	// ErrExternalTool marks a failed solver run or network fetch.
	ErrExternalTool = errors.New("external tool failed")
	// ErrConfig marks invalid configuration detected at construction.
	ErrConfig = errors.New("invalid configuration")
	// ErrNoCandidates means a stage found nothing to do.
	ErrNoCandidates = errors.New("no candidates")
	// ErrNotFound marks a missing catalog entry.
	ErrNotFound = errors.New("not found")
	// ErrInUse marks a catalog entry that derived records still reference.
	ErrInUse = errors.New("still referenced")
)

// IsRecoverable reports whether err should be absorbed at the candidate level.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrExternalTool)
}
