package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/agronova/tracker-backend/platform/go/persistence"
)

var descriptor = mustDescriptor()

// Descriptor returns the users entity metadata shared by the service and the
// HTTP layer. Password stays a declared column so generic saves can persist
// it; the service scrubs it from every response.
func Descriptor() persistence.TableDescriptor {
	return descriptor
}

func mustDescriptor() persistence.TableDescriptor {
	desc, err := persistence.NewTableDescriptor("users", []persistence.Column{
		{Name: "email", Type: persistence.ColumnText},
		{Name: "password", Type: persistence.ColumnText},
		{Name: "image_src", Type: persistence.ColumnText},
		{Name: "is_admin", Type: persistence.ColumnBoolean},
	}, nil, true)
	if err != nil {
		panic(err)
	}
	return desc
}

// Repository defines the users-specific lookups beyond the generic surface.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (map[string]any, error)
}

type postgresRepository struct {
	base *persistence.Repository
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(base *persistence.Repository) Repository {
	if base == nil {
		panic("persistence repository is required")
	}
	return &postgresRepository{base: base}
}

// FindByEmail matches the address case-insensitively. A miss returns
// (nil, nil); login treats it the same as a bad password.
func (r *postgresRepository) FindByEmail(ctx context.Context, email string) (map[string]any, error) {
	desc := Descriptor()

	columns := make([]string, 0, len(desc.Columns()))
	for _, col := range desc.Columns() {
		columns = append(columns, col.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE LOWER(email) = LOWER($1)",
		strings.Join(columns, ", "), desc.TableName())

	rows, err := r.base.Pool().Query(ctx, query, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	values, err := rows.Values()
	if err != nil {
		return nil, err
	}

	record := make(map[string]any, len(columns))
	for i, col := range columns {
		record[col] = values[i]
	}
	return record, nil
}
