package persistence

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrEntityNotFound indicates the requested entity row does not exist.
var ErrEntityNotFound = errors.New("entity not found")

// ErrDuplicateEntity indicates a uniqueness violation while persisting an entity.
var ErrDuplicateEntity = errors.New("entity already exists")

// ErrLinkedEntities indicates a referential-integrity violation: other rows still reference the entity.
var ErrLinkedEntities = errors.New("linked entities exist")

// ErrInvalidFilter indicates a structurally invalid filter predicate (e.g. BETWEEN missing a bound).
var ErrInvalidFilter = errors.New("invalid filter")

// AttributeResolutionError is returned when a filter or order-by attribute
// cannot be resolved against the entity descriptor. It aborts the whole
// compile; there is never a partial predicate.
type AttributeResolutionError struct {
	Attribute string
}

func (e *AttributeResolutionError) Error() string {
	return fmt.Sprintf("attribute %q not found on entity or its relations", e.Attribute)
}

// UnknownOperatorError is returned when a filter operator is outside the enumerated set.
type UnknownOperatorError struct {
	Operator FilterOperator
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator %q", e.Operator)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapStorageError classifies integrity violations so the boundary layer can
// render distinct user messages; all other errors pass through untouched.
func MapStorageError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrLinkedEntities, pgErr.ConstraintName)
		}
	}

	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
