package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository executes the generic CRUD operations for any EntityDescriptor.
// Rows travel as flat attribute maps keyed by column name; relations are never
// traversed on reads unless a save explicitly asks for an eager reload.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository wires the generic repository onto a pgx pool.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) (*Repository, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for domain-specific lookups that fall
// outside the generic surface (e.g. find-by-email).
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// FindAll returns every active row, optionally filtered and ordered.
// An empty ascending flag defaults to ascending order.
func (r *Repository) FindAll(ctx context.Context, desc EntityDescriptor, orderBy, ascending string, filters *FilterSet) ([]map[string]any, error) {
	ascendingOrder := ascending == "" || strings.EqualFold(ascending, "true")
	return r.findAll(ctx, desc, orderBy, ascendingOrder, filters, "")
}

// FindAllPaginated is FindAll with offset/limit applied. Unlike FindAll, an
// empty ascending flag defaults to DESCENDING order; the asymmetry is part of
// the established contract and callers depend on it.
func (r *Repository) FindAllPaginated(ctx context.Context, desc EntityDescriptor, start, limit int, orderBy, ascending string, filters *FilterSet) ([]map[string]any, error) {
	ascendingOrder := ascending != "" && strings.EqualFold(ascending, "true")
	pagination := fmt.Sprintf(" OFFSET %d LIMIT %d", start, limit)
	return r.findAll(ctx, desc, orderBy, ascendingOrder, filters, pagination)
}

func (r *Repository) findAll(ctx context.Context, desc EntityDescriptor, orderBy string, ascending bool, filters *FilterSet, pagination string) ([]map[string]any, error) {
	if err := ValidateDescriptor(desc); err != nil {
		return nil, err
	}

	predicate, err := CompileFilters(desc, filters)
	if err != nil {
		return nil, err
	}

	columns := columnNames(desc)
	selectCols := make([]string, 0, len(columns))
	for _, col := range columns {
		selectCols = append(selectCols, baseAlias+"."+col)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT DISTINCT %s FROM %s %s", strings.Join(selectCols, ", "), desc.TableName(), baseAlias)
	for _, join := range predicate.Joins {
		fmt.Fprintf(&sb, " JOIN %s %s ON %s", join.Table, join.Alias, join.On)
	}
	fmt.Fprintf(&sb, " WHERE %s.is_active = TRUE", baseAlias)
	if !predicate.IsEmpty() {
		fmt.Fprintf(&sb, " AND %s", predicate.Where)
	}

	if orderBy != "" {
		column, ok := lookupColumn(desc, strings.ToLower(strings.TrimSpace(orderBy)))
		if !ok {
			return nil, &AttributeResolutionError{Attribute: orderBy}
		}
		direction := "ASC"
		if !ascending {
			direction = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s.%s %s", baseAlias, column.Name, direction)
	}
	sb.WriteString(pagination)

	rows, err := r.pool.Query(ctx, sb.String(), predicate.Args...)
	if err != nil {
		r.logger.Error("find all failed", zap.String("table", desc.TableName()), zap.Error(err))
		return nil, fmt.Errorf("find all %s: %w", desc.TableName(), err)
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		record, err := scanRowMap(rows, columns)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find all %s: %w", desc.TableName(), err)
	}

	return results, nil
}

// FindByID fetches one row regardless of its active flag. A missing row is
// reported as (nil, nil); mapping that to a client-facing error is the
// service's concern.
func (r *Repository) FindByID(ctx context.Context, desc EntityDescriptor, id int64, sess *Session) (map[string]any, error) {
	var q querier = r.pool
	if sess != nil {
		q = sess.tx
	}
	return r.selectByID(ctx, q, desc, id, false)
}

func (r *Repository) selectByID(ctx context.Context, q querier, desc EntityDescriptor, id int64, forUpdate bool) (map[string]any, error) {
	columns := columnNames(desc)
	query := fmt.Sprintf("SELECT %s FROM %s %s WHERE %s.id = $1",
		qualifiedColumns(columns), desc.TableName(), baseAlias, baseAlias)
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("find %s by id %d: %w", desc.TableName(), id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return scanRowMap(rows, columns)
}

// Save inserts a new row inside the session scope. When the caller supplies a
// session the insert is only flushed and commit stays with the caller;
// otherwise Save owns the whole transaction. loadRelations names to-one
// relations to eager-load onto the returned map.
func (r *Repository) Save(ctx context.Context, sess *Session, desc EntityDescriptor, values map[string]any, loadRelations []string, actorID *int64) (map[string]any, error) {
	if err := ValidateDescriptor(desc); err != nil {
		return nil, err
	}

	scope, owned, err := conditionalSession(ctx, r.pool, sess, actorID)
	if err != nil {
		return nil, err
	}
	if owned {
		defer scope.Rollback(ctx)
	}

	insertCols := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, col := range desc.Columns() {
		value, present := values[col.Name]
		if !present || col.Name == "id" {
			continue
		}
		args = append(args, value)
		insertCols = append(insertCols, col.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	if len(insertCols) == 0 {
		return nil, fmt.Errorf("save %s: no persistable fields in payload", desc.TableName())
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		desc.TableName(), strings.Join(insertCols, ", "), strings.Join(placeholders, ", "),
		strings.Join(columnNames(desc), ", "))

	record, err := queryOneMap(ctx, scope.tx, stmt, columnNames(desc), args...)
	if err != nil {
		r.logger.Error("save failed", zap.String("table", desc.TableName()), zap.Error(err))
		return nil, fmt.Errorf("save %s: %w", desc.TableName(), MapStorageError(err))
	}

	if err := recordVersion(ctx, scope, desc, record, computeChangeset(desc, nil, record), OperationInsert); err != nil {
		return nil, err
	}

	if len(loadRelations) > 0 {
		record, err = r.loadWithRelations(ctx, scope.tx, desc, record, loadRelations)
		if err != nil {
			return nil, err
		}
	}

	if owned {
		if err := scope.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// UpdateByID applies a partial update: only fields carrying a non-nil value
// are written, a nil value means "leave the stored value alone". That null
// semantics is deliberate and load-bearing for the HTTP layer's PATCH-like
// PUT bodies.
func (r *Repository) UpdateByID(ctx context.Context, sess *Session, desc EntityDescriptor, id int64, fields map[string]any, actorID *int64) (map[string]any, error) {
	if err := ValidateDescriptor(desc); err != nil {
		return nil, err
	}

	scope, owned, err := conditionalSession(ctx, r.pool, sess, actorID)
	if err != nil {
		return nil, err
	}
	if owned {
		defer scope.Rollback(ctx)
	}

	oldRecord, err := r.selectByID(ctx, scope.tx, desc, id, true)
	if err != nil {
		return nil, err
	}
	if oldRecord == nil {
		return nil, fmt.Errorf("update %s %d: %w", desc.TableName(), id, ErrEntityNotFound)
	}

	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, col := range desc.Columns() {
		value, present := fields[col.Name]
		if !present || value == nil || col.Name == "id" {
			continue
		}
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col.Name, len(args)))
	}

	if len(assignments) == 0 {
		if owned {
			if err := scope.Commit(ctx); err != nil {
				return nil, err
			}
		}
		return oldRecord, nil
	}

	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		desc.TableName(), strings.Join(assignments, ", "), len(args), strings.Join(columnNames(desc), ", "))

	newRecord, err := queryOneMap(ctx, scope.tx, stmt, columnNames(desc), args...)
	if err != nil {
		r.logger.Error("update failed", zap.String("table", desc.TableName()), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("update %s %d: %w", desc.TableName(), id, MapStorageError(err))
	}

	if changes := computeChangeset(desc, oldRecord, newRecord); len(changes) > 0 {
		if err := recordVersion(ctx, scope, desc, newRecord, changes, OperationUpdate); err != nil {
			return nil, err
		}
	}

	if owned {
		if err := scope.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return newRecord, nil
}

// DeleteByID removes the row permanently and returns its last serialized
// state. It commits when it owns the scope; with a supplied session the
// delete is only flushed and commit stays with the outer caller.
func (r *Repository) DeleteByID(ctx context.Context, sess *Session, desc EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if err := ValidateDescriptor(desc); err != nil {
		return nil, err
	}

	scope, owned, err := conditionalSession(ctx, r.pool, sess, actorID)
	if err != nil {
		return nil, err
	}
	if owned {
		defer scope.Rollback(ctx)
	}

	record, err := r.selectByID(ctx, scope.tx, desc, id, true)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("delete %s %d: %w", desc.TableName(), id, ErrEntityNotFound)
	}

	if err := recordVersion(ctx, scope, desc, record, computeChangeset(desc, record, nil), OperationDelete); err != nil {
		return nil, err
	}

	if _, err := scope.tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", desc.TableName()), id); err != nil {
		r.logger.Error("delete failed", zap.String("table", desc.TableName()), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("delete %s %d: %w", desc.TableName(), id, MapStorageError(err))
	}

	if owned {
		if err := scope.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// DeactivateByID soft-deletes: flips is_active off via a targeted update,
// commits, and returns the re-read row.
func (r *Repository) DeactivateByID(ctx context.Context, desc EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	return r.setActive(ctx, desc, id, false, actorID)
}

// ActivateByID reverses a soft delete.
func (r *Repository) ActivateByID(ctx context.Context, desc EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	return r.setActive(ctx, desc, id, true, actorID)
}

func (r *Repository) setActive(ctx context.Context, desc EntityDescriptor, id int64, active bool, actorID *int64) (map[string]any, error) {
	if err := ValidateDescriptor(desc); err != nil {
		return nil, err
	}

	scope, err := OpenSession(ctx, r.pool, actorID)
	if err != nil {
		return nil, err
	}
	defer scope.Rollback(ctx)

	oldRecord, err := r.selectByID(ctx, scope.tx, desc, id, true)
	if err != nil {
		return nil, err
	}
	if oldRecord == nil {
		return nil, fmt.Errorf("set active on %s %d: %w", desc.TableName(), id, ErrEntityNotFound)
	}

	stmt := fmt.Sprintf("UPDATE %s SET is_active = $1 WHERE id = $2 RETURNING %s",
		desc.TableName(), strings.Join(columnNames(desc), ", "))
	newRecord, err := queryOneMap(ctx, scope.tx, stmt, columnNames(desc), active, id)
	if err != nil {
		r.logger.Error("set active failed", zap.String("table", desc.TableName()), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("set active on %s %d: %w", desc.TableName(), id, MapStorageError(err))
	}

	if changes := computeChangeset(desc, oldRecord, newRecord); len(changes) > 0 {
		if err := recordVersion(ctx, scope, desc, newRecord, changes, OperationUpdate); err != nil {
			return nil, err
		}
	}

	if err := scope.Commit(ctx); err != nil {
		return nil, err
	}

	// Re-read outside the ended scope, mirroring the refresh-after-commit contract.
	return r.selectByID(ctx, r.pool, desc, id, false)
}

// loadWithRelations reloads the row with the named to-one relations nested
// under their relation names.
func (r *Repository) loadWithRelations(ctx context.Context, q querier, desc EntityDescriptor, record map[string]any, loadRelations []string) (map[string]any, error) {
	id, ok := record["id"]
	if !ok {
		return record, nil
	}

	for _, name := range loadRelations {
		relation, found := lookupRelation(desc, name)
		if !found {
			return nil, &AttributeResolutionError{Attribute: name}
		}

		fk, present := record[relation.ForeignKey]
		if !present || fk == nil {
			record[relation.Name] = nil
			continue
		}

		related, err := r.selectByID(ctx, q, relation.Target, toInt64(fk), false)
		if err != nil {
			return nil, fmt.Errorf("load relation %s of %s %v: %w", relation.Name, desc.TableName(), id, err)
		}
		record[relation.Name] = related
	}

	return record, nil
}

func qualifiedColumns(columns []string) string {
	qualified := make([]string, 0, len(columns))
	for _, col := range columns {
		qualified = append(qualified, baseAlias+"."+col)
	}
	return strings.Join(qualified, ", ")
}

func queryOneMap(ctx context.Context, q querier, query string, columns []string, args ...any) (map[string]any, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	return scanRowMap(rows, columns)
}

func scanRowMap(rows pgx.Rows, columns []string) (map[string]any, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	if len(values) < len(columns) {
		return nil, fmt.Errorf("row has %d values, want %d", len(values), len(columns))
	}

	record := make(map[string]any, len(columns))
	for i, col := range columns {
		record[col] = values[i]
	}
	return record, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
