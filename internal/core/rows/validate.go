package rows

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/sfg/internal/core/asset"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RowError describes why one row of a batch was rejected.
type RowError struct {
	Index  int
	Reason string
}

// ValidationError rejects a whole batch. No row of a rejected batch is stored.
type ValidationError struct {
	Kind   Kind
	Errors []RowError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s rows failed validation:", len(e.Errors), e.Kind)
	for i, re := range e.Errors {
		if i == 5 {
			fmt.Fprintf(&b, "\n • ... %d more", len(e.Errors)-i)
			break
		}
		fmt.Fprintf(&b, "\n • row %d: %s", re.Index, re.Reason)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return asset.ErrValidation }

// ValidateBatch normalizes each row, then checks tags and cross-field
// invariants. It returns nil or a *ValidationError covering every failing row.
func ValidateBatch[R Row](kind Kind, batch []R) error {
	var failed []RowError
	for i, r := range batch {
		r.Normalize()
		if err := validate.Struct(r); err != nil {
			failed = append(failed, RowError{Index: i, Reason: fieldErrorsToString(err)})
			continue
		}
		if err := r.Check(); err != nil {
			failed = append(failed, RowError{Index: i, Reason: err.Error()})
		}
	}
	if len(failed) > 0 {
		return &ValidationError{Kind: kind, Errors: failed}
	}
	return nil
}

// ValidateStruct runs the tag validator over any struct, returning a flat
// message on failure.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return errors.New(fieldErrorsToString(err))
	}
	return nil
}

func fieldErrorsToString(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s': rule '%s' expected '%s', got '%v'",
			fe.StructField(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return strings.Join(parts, "; ")
}

// KindForAsset maps an array-backed asset type to its store kind.
func KindForAsset(t asset.Type) (Kind, bool) {
	switch t {
	case asset.TypeKinPosition:
		return KindPosition, true
	case asset.TypeIMUPosition:
		return KindIMUPosition, true
	case asset.TypeShotData:
		return KindShot, true
	case asset.TypeGNSSObsTDB:
		return KindObservable, true
	case asset.TypeAcoustic:
		return KindAcoustic, true
	}
	return "", false
}
