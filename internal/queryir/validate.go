package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/conduit/internal/ir"
)

var (
	// ErrMalformedField marks a field path that is empty or not rooted at
	// "id" or "payload.".
	ErrMalformedField = errors.New("malformed field path")

	// ErrUnindexedField marks a field path outside the topic's declared
	// index set.
	ErrUnindexedField = errors.New("field is not indexed")

	// ErrInvalidValue marks a comparison value that cannot match, such as
	// a missing value or a non-string id.
	ErrInvalidValue = errors.New("invalid comparison value")
)

// Validate checks a Select before compilation. indexed reports whether a
// payload path is in the topic's declared index set; "id" is always
// answerable. The returned error wraps one of the sentinel errors above.
func Validate(sel Select, indexed func(path string) bool) error {
	if sel.From == "" {
		return errors.New("select: topic is required")
	}
	if sel.Limit < 0 {
		return fmt.Errorf("select: negative limit %d", sel.Limit)
	}
	if sel.Order != Ascending && sel.Order != Descending {
		return fmt.Errorf("select: unknown order %d", sel.Order)
	}
	return validatePredicate(sel.Filter, indexed)
}

func validatePredicate(p Predicate, indexed func(string) bool) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		return validateEquals(pred, indexed)
	case *Equals:
		return validateEquals(*pred, indexed)
	case And:
		return validateAnd(pred, indexed)
	case *And:
		return validateAnd(*pred, indexed)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateEquals(eq Equals, indexed func(string) bool) error {
	if err := ir.ValidFieldPath(eq.Field); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	if eq.Value == nil {
		return fmt.Errorf("%w: field %q has no value", ErrInvalidValue, eq.Field)
	}
	if eq.Field == ir.IDField {
		if _, ok := eq.Value.(ir.IRString); !ok {
			return fmt.Errorf("%w: id must be a string, got %T", ErrInvalidValue, eq.Value)
		}
		return nil
	}
	if !indexed(eq.Field) {
		return fmt.Errorf("%w: %q", ErrUnindexedField, eq.Field)
	}
	return nil
}

func validateAnd(and And, indexed func(string) bool) error {
	for _, sub := range and.Predicates {
		if err := validatePredicate(sub, indexed); err != nil {
			return err
		}
	}
	return nil
}
