package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransactionsTable backs the audit trail: one row per mutating session.
const TransactionsTable = "audit_transactions"

// OperationType records what kind of mutation produced a version row.
type OperationType int16

const (
	OperationInsert OperationType = 0
	OperationUpdate OperationType = 1
	OperationDelete OperationType = 2
)

// Changeset maps attribute name to its (old, new) pair for one mutation.
type Changeset map[string][2]any

// TransactionRecord is one row of the audit transactions table.
type TransactionRecord struct {
	ID       int64
	ActorID  *int64
	IssuedAt time.Time
}

// recordVersion writes the immutable snapshot of an entity's state into its
// sidecar version table, inside the session's transaction. snapshot holds the
// entity columns as they were BEFORE a delete and AFTER an insert/update.
func recordVersion(ctx context.Context, sess *Session, desc EntityDescriptor, snapshot map[string]any, changes Changeset, op OperationType) error {
	if !desc.Versioned() {
		return nil
	}

	txID, err := sess.transaction(ctx)
	if err != nil {
		return err
	}

	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode changeset: %w", err)
	}

	columns := columnNames(desc)
	insertCols := make([]string, 0, len(columns)+3)
	placeholders := make([]string, 0, len(columns)+3)
	args := make([]any, 0, len(columns)+3)

	for _, col := range columns {
		insertCols = append(insertCols, col)
		args = append(args, snapshot[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	for _, extra := range []any{txID, int16(op), changesJSON} {
		args = append(args, extra)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	insertCols = append(insertCols, "transaction_id", "operation_type", "changeset")

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		versionTableName(desc),
		strings.Join(insertCols, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := sess.tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("record version for %s: %w", desc.TableName(), err)
	}

	return nil
}

// computeChangeset diffs two serialized rows attribute by attribute. A nil
// oldRow marks an insert (old side nil), a nil newRow marks a delete.
func computeChangeset(desc EntityDescriptor, oldRow, newRow map[string]any) Changeset {
	changes := Changeset{}
	for _, col := range desc.Columns() {
		oldVal, newVal := valueOrNil(oldRow, col.Name), valueOrNil(newRow, col.Name)
		if equalValues(oldVal, newVal) {
			continue
		}
		changes[col.Name] = [2]any{oldVal, newVal}
	}
	return changes
}

func valueOrNil(row map[string]any, key string) any {
	if row == nil {
		return nil
	}
	return row[key]
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// FindVersionsByTransactionID returns the version snapshot and changeset the
// given transaction recorded for this entity type, or (nil, nil, nil) when the
// transaction touched no row of that type.
func (r *Repository) FindVersionsByTransactionID(ctx context.Context, desc EntityDescriptor, transactionID int64) (map[string]any, Changeset, error) {
	columns := columnNames(desc)
	selectCols := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		selectCols = append(selectCols, "v."+col)
	}
	selectCols = append(selectCols, "v.changeset")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s v
		WHERE v.transaction_id = $1
		ORDER BY v.id
		LIMIT 1
	`, strings.Join(selectCols, ", "), versionTableName(desc))

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, nil, fmt.Errorf("find versions by transaction %d: %w", transactionID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	values, err := rows.Values()
	if err != nil {
		return nil, nil, err
	}

	snapshot := make(map[string]any, len(columns))
	for i, col := range columns {
		snapshot[col] = values[i]
	}

	changes, err := decodeChangeset(values[len(columns)])
	if err != nil {
		return nil, nil, err
	}

	return snapshot, changes, nil
}

// FindTransactionsByActor lists the audit transactions stamped with the actor,
// oldest first, optionally bounded by an inclusive date range.
func (r *Repository) FindTransactionsByActor(ctx context.Context, actorID int64, startDate, endDate *time.Time) ([]TransactionRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, actor_id, issued_at
		FROM %s
		WHERE actor_id = $1
		  AND ($2::timestamptz IS NULL OR issued_at >= $2)
		  AND ($3::timestamptz IS NULL OR issued_at <= $3)
		ORDER BY issued_at, id
	`, TransactionsTable)

	rows, err := r.pool.Query(ctx, query, actorID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("find transactions for actor %d: %w", actorID, err)
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		var record TransactionRecord
		if err := rows.Scan(&record.ID, &record.ActorID, &record.IssuedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func decodeChangeset(raw any) (Changeset, error) {
	if raw == nil {
		return Changeset{}, nil
	}

	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	default:
		return nil, errors.New("unexpected changeset representation")
	}

	var decoded map[string][2]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode changeset: %w", err)
	}

	return Changeset(decoded), nil
}
