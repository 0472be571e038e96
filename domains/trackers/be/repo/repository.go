package repo

import (
	"context"
	"fmt"
	"strings"

	usersrepo "github.com/agronova/tracker-backend/domains/users/be/repo"
	"github.com/agronova/tracker-backend/platform/go/persistence"
)

var descriptor = mustDescriptor()

// Descriptor returns the trackers entity metadata. The "user" relation makes
// owner attributes addressable in filters as "user.<column>".
func Descriptor() persistence.TableDescriptor {
	return descriptor
}

func mustDescriptor() persistence.TableDescriptor {
	desc, err := persistence.NewTableDescriptor("trackers", []persistence.Column{
		{Name: "serial_number", Type: persistence.ColumnText},
		{Name: "plate", Type: persistence.ColumnText},
		{Name: "latitude", Type: persistence.ColumnFloat},
		{Name: "longitude", Type: persistence.ColumnFloat},
		{Name: "user_id", Type: persistence.ColumnInteger},
	}, []persistence.Relation{
		{Name: "user", ForeignKey: "user_id", Target: usersrepo.Descriptor()},
	}, true)
	if err != nil {
		panic(err)
	}
	return desc
}

// Repository defines the trackers-specific lookups beyond the generic surface.
type Repository interface {
	FindBySerialNumber(ctx context.Context, serial string) (map[string]any, error)
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

// FindBySerialNumber matches the device serial exactly but case-insensitively;
// serials are printed on hardware labels and arrive in mixed case. A miss
// returns (nil, nil).
func (r *postgresRepository) FindBySerialNumber(ctx context.Context, serial string) (map[string]any, error) {
	desc := Descriptor()

	columns := make([]string, 0, len(desc.Columns()))
	for _, col := range desc.Columns() {
		columns = append(columns, col.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE UPPER(serial_number) = UPPER($1)",
		strings.Join(columns, ", "), desc.TableName())

	rows, err := r.base.Pool().Query(ctx, query, strings.TrimSpace(serial))
	if err != nil {
		return nil, fmt.Errorf("find tracker by serial: %w", err)
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
