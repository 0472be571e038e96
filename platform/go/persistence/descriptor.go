package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ColumnType drives value casting when a filter compares against a non-text column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnInteger
	ColumnFloat
	ColumnBoolean
	ColumnTimestamp
)

// Column describes one persisted attribute of an entity.
type Column struct {
	Name string
	Type ColumnType
}

// Relation describes a to-one association resolvable in dot-path filters
// (e.g. "user.email" joins the target table through ForeignKey).
type Relation struct {
	Name       string
	ForeignKey string
	Target     EntityDescriptor
}

// EntityDescriptor exposes the metadata the generic repository and the filter
// compiler need to operate on one entity type. Implementations are static per
// table; no reflection is involved.
type EntityDescriptor interface {
	TableName() string
	Columns() []Column
	Relations() []Relation
	// Versioned reports whether mutations record version rows in the sidecar table.
	Versioned() bool
}

// TableDescriptor is a ready-made EntityDescriptor for fixed relational schemas.
type TableDescriptor struct {
	Table   string
	Cols    []Column
	Rels    []Relation
	Tracked bool
}

func (d TableDescriptor) TableName() string     { return d.Table }
func (d TableDescriptor) Columns() []Column     { return d.Cols }
func (d TableDescriptor) Relations() []Relation { return d.Rels }
func (d TableDescriptor) Versioned() bool       { return d.Tracked }

// NewTableDescriptor builds a validated descriptor with the shared base
// columns prepended to the entity-specific ones.
func NewTableDescriptor(table string, extra []Column, rels []Relation, versioned bool) (TableDescriptor, error) {
	desc := TableDescriptor{
		Table:   table,
		Cols:    append(BaseColumns(), extra...),
		Rels:    rels,
		Tracked: versioned,
	}
	if err := ValidateDescriptor(desc); err != nil {
		return TableDescriptor{}, err
	}
	return desc, nil
}

// BaseColumns returns the columns shared by every entity table.
func BaseColumns() []Column {
	return []Column{
		{Name: "id", Type: ColumnInteger},
		{Name: "is_active", Type: ColumnBoolean},
		{Name: "name", Type: ColumnText},
		{Name: "created_at", Type: ColumnTimestamp},
		{Name: "updated_at", Type: ColumnTimestamp},
	}
}

// ValidateDescriptor checks the descriptor is safe to embed in SQL strings.
func ValidateDescriptor(desc EntityDescriptor) error {
	if desc == nil {
		return errors.New("descriptor is required")
	}
	if _, err := normalizeTableName(desc.TableName()); err != nil {
		return err
	}
	if len(desc.Columns()) == 0 {
		return fmt.Errorf("descriptor %s declares no columns", desc.TableName())
	}
	for _, rel := range desc.Relations() {
		if rel.Target == nil {
			return fmt.Errorf("relation %s on %s has no target", rel.Name, desc.TableName())
		}
		if _, ok := lookupColumn(desc, rel.ForeignKey); !ok {
			return fmt.Errorf("relation %s on %s references unknown column %s", rel.Name, desc.TableName(), rel.ForeignKey)
		}
	}
	return nil
}

// normalizeTableName trims the input and enforces a lowercase snake_case identifier that is safe to embed in SQL.
func normalizeTableName(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("table name is required")
	}

	if !tableNamePattern.MatchString(trimmed) {
		return "", fmt.Errorf("invalid table name %q: must match ^[a-z][a-z0-9_]*$", trimmed)
	}

	return trimmed, nil
}

func lookupColumn(desc EntityDescriptor, name string) (Column, bool) {
	for _, col := range desc.Columns() {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

func lookupRelation(desc EntityDescriptor, name string) (Relation, bool) {
	for _, rel := range desc.Relations() {
		if strings.EqualFold(rel.Name, name) {
			return rel, true
		}
	}
	return Relation{}, false
}

func columnNames(desc EntityDescriptor) []string {
	names := make([]string, 0, len(desc.Columns()))
	for _, col := range desc.Columns() {
		names = append(names, col.Name)
	}
	return names
}

func versionTableName(desc EntityDescriptor) string {
	return desc.TableName() + "_version"
}
