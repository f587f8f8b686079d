package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rowloom/rowloom/internal/store"
)

// ErrorKind classifies an underlying store failure.
type ErrorKind string

const (
	ErrMissingField    ErrorKind = "missing_required_field"
	ErrUniqueViolation ErrorKind = "unique_violation"
	ErrForeignKey      ErrorKind = "foreign_key_violation"
	ErrDataTooLong     ErrorKind = "data_too_long"
	ErrTypeMismatch    ErrorKind = "type_mismatch"
	ErrUnknownKind     ErrorKind = "unknown"
)

// Remediations returns the actions a caller may offer for this failure
// class. The loader never picks one itself.
func (k ErrorKind) Remediations() []string {
	switch k {
	case ErrMissingField:
		return []string{"skip-row", "set-default", "continue-with-errors"}
	case ErrUniqueViolation:
		return []string{"skip-row", "switch-to-update", "lookup-only"}
	case ErrForeignKey:
		return []string{"skip-row", "create-missing", "lookup-only"}
	case ErrDataTooLong:
		return []string{"skip-row", "truncate", "continue-with-errors"}
	case ErrTypeMismatch:
		return []string{"skip-row", "add-cast-transform", "continue-with-errors"}
	default:
		return []string{"skip-row", "continue-with-errors"}
	}
}

// Classify maps a store error onto an ErrorKind, preferring PostgreSQL
// SQLSTATE codes and falling back to error-text matching for other
// drivers. Unclassifiable errors report ErrUnknownKind; callers re-throw
// those as-is.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrUnknownKind
	}

	if _, ok := store.AsUniqueViolation(err); ok {
		return ErrUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502":
			return ErrMissingField
		case "23505":
			return ErrUniqueViolation
		case "23503":
			return ErrForeignKey
		case "22001":
			return ErrDataTooLong
		case "22P02", "42804":
			return ErrTypeMismatch
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "null value") || strings.Contains(msg, "ora-01400"):
		return ErrMissingField
	case strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "ora-00001"):
		return ErrUniqueViolation
	case strings.Contains(msg, "foreign key") || strings.Contains(msg, "ora-02291"):
		return ErrForeignKey
	case strings.Contains(msg, "too long") || strings.Contains(msg, "ora-12899"):
		return ErrDataTooLong
	case strings.Contains(msg, "invalid input syntax") || strings.Contains(msg, "ora-01722"):
		return ErrTypeMismatch
	default:
		return ErrUnknownKind
	}
}

// ResolutionError is a typed relation-resolution failure carrying enough
// structure for callers to render actionable messages or offer interactive
// remediation.
type ResolutionError struct {
	Entity          string
	Relation        string
	LookupField     string
	LookupValue     any
	CreateIfMissing bool
	Kind            ErrorKind
	Err             error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving relation %s.%s by %s = %v (create_if_missing=%t): %v",
		e.Entity, e.Relation, e.LookupField, e.LookupValue, e.CreateIfMissing, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DuplicateError is the deliberate row failure raised by the "error"
// duplicate strategy.
type DuplicateError struct {
	Entity string
	Keys   []string
	Values []any
}

func (e *DuplicateError) Error() string {
	pairs := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		var v any
		if i < len(e.Values) {
			v = e.Values[i]
		}
		pairs[i] = fmt.Sprintf("%s = %v", k, v)
	}
	return fmt.Sprintf("duplicate %s record for %s", e.Entity, strings.Join(pairs, ", "))
}
