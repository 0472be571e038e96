package persistence

import (
	"fmt"
	"strings"
)

// baseAlias is the alias of the root entity table in every generated query.
const baseAlias = "t"

// JoinClause is one single-hop join required by a dot-path attribute.
type JoinClause struct {
	Table string
	Alias string
	On    string
}

// CompiledPredicate is the backend-native form of a FilterSet: a WHERE
// fragment with positional placeholders, the positional arguments, and the
// joins the fragment depends on.
type CompiledPredicate struct {
	Where string
	Args  []any
	Joins []JoinClause
}

// IsEmpty reports whether the predicate constrains anything.
func (p CompiledPredicate) IsEmpty() bool {
	return p.Where == ""
}

// CompileFilters translates a FilterSet into a CompiledPredicate for the given
// entity descriptor. It is a pure function: no side effects, and any
// resolution failure aborts the whole compile.
//
// The condition read from the LAST predicate governs the combination of ALL
// predicates (flat AND or flat OR, never a tree). Every operator except
// BETWEEN compares the uppercased text rendering of both sides; this
// case-insensitive semantics is part of the filter contract and is preserved
// even for non-text columns, where it degrades to lexicographic comparison.
// BETWEEN compares native values, casting the two bounds to the column type.
func CompileFilters(desc EntityDescriptor, set *FilterSet) (CompiledPredicate, error) {
	if set.IsEmpty() {
		return CompiledPredicate{}, nil
	}

	var (
		fragments []string
		args      []any
		joins     []JoinClause
		aliases   = map[string]string{}
	)

	for _, predicate := range set.Filters {
		column, alias, err := resolveAttribute(desc, predicate.Attribute, aliases, &joins)
		if err != nil {
			return CompiledPredicate{}, err
		}

		fragment, err := compileOperator(predicate, column, alias, &args)
		if err != nil {
			return CompiledPredicate{}, err
		}
		fragments = append(fragments, fragment)
	}

	glue := " AND "
	if set.Combination() == ConditionOr {
		glue = " OR "
	}

	return CompiledPredicate{
		Where: "(" + strings.Join(fragments, glue) + ")",
		Args:  args,
		Joins: joins,
	}, nil
}

// resolveAttribute maps a (possibly dotted) attribute to a concrete column and
// table alias, registering a join when a relation hop is involved. Attribute
// names are matched lowercase, the way the HTTP layer sends them.
func resolveAttribute(desc EntityDescriptor, attribute string, aliases map[string]string, joins *[]JoinClause) (Column, string, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(attribute)), ".", 2)

	if len(parts) == 1 {
		column, ok := lookupColumn(desc, parts[0])
		if !ok {
			return Column{}, "", &AttributeResolutionError{Attribute: attribute}
		}
		return column, baseAlias, nil
	}

	relation, ok := lookupRelation(desc, parts[0])
	if !ok {
		return Column{}, "", &AttributeResolutionError{Attribute: attribute}
	}
	column, ok := lookupColumn(relation.Target, parts[1])
	if !ok {
		return Column{}, "", &AttributeResolutionError{Attribute: attribute}
	}

	alias, seen := aliases[relation.Name]
	if !seen {
		alias = fmt.Sprintf("r%d", len(aliases)+1)
		aliases[relation.Name] = alias
		*joins = append(*joins, JoinClause{
			Table: relation.Target.TableName(),
			Alias: alias,
			On:    fmt.Sprintf("%s.id = %s.%s", alias, baseAlias, relation.ForeignKey),
		})
	}

	return column, alias, nil
}

func compileOperator(predicate FilterPredicate, column Column, alias string, args *[]any) (string, error) {
	qualified := alias + "." + column.Name
	upperCol := upperText(qualified, column.Type)

	place := func(value any) string {
		*args = append(*args, value)
		return fmt.Sprintf("$%d", len(*args))
	}

	switch FilterOperator(strings.ToUpper(string(predicate.Operator))) {
	case OpEquals:
		return fmt.Sprintf("%s = %s", qualified, castPlaceholder(place(predicate.PrimaryValue), column.Type)), nil
	case OpNotEquals:
		return fmt.Sprintf("%s != UPPER(%s)", upperCol, place(predicate.PrimaryValue)), nil
	case OpGreaterThan:
		return fmt.Sprintf("%s > UPPER(%s)", upperCol, place(predicate.PrimaryValue)), nil
	case OpLessThan:
		return fmt.Sprintf("%s < UPPER(%s)", upperCol, place(predicate.PrimaryValue)), nil
	case OpGreaterThanOrEqual:
		return fmt.Sprintf("%s >= UPPER(%s)", upperCol, place(predicate.PrimaryValue)), nil
	case OpLessThanOrEqual:
		return fmt.Sprintf("%s <= UPPER(%s)", upperCol, place(predicate.PrimaryValue)), nil
	case OpContains:
		return fmt.Sprintf("%s LIKE '%%' || UPPER(%s) || '%%'", upperCol, place(predicate.PrimaryValue)), nil
	case OpNotContains:
		return fmt.Sprintf("NOT (%s LIKE '%%' || UPPER(%s) || '%%')", upperCol, place(predicate.PrimaryValue)), nil
	case OpBetween:
		if predicate.SecondaryValue == nil || strings.TrimSpace(*predicate.SecondaryValue) == "" {
			return "", fmt.Errorf("%w: BETWEEN on %q requires a secondary value", ErrInvalidFilter, predicate.Attribute)
		}
		low := castPlaceholder(place(predicate.PrimaryValue), column.Type)
		high := castPlaceholder(place(*predicate.SecondaryValue), column.Type)
		return fmt.Sprintf("%s BETWEEN %s AND %s", qualified, low, high), nil
	default:
		return "", &UnknownOperatorError{Operator: predicate.Operator}
	}
}

// upperText renders a column as uppercased text. Non-text columns get an
// explicit ::text cast so the comparison stays executable; the resulting
// lexicographic ordering matches the contract's documented behavior.
func upperText(qualified string, typ ColumnType) string {
	if typ == ColumnText {
		return "UPPER(" + qualified + ")"
	}
	return "UPPER(" + qualified + "::text)"
}

// castPlaceholder coerces a text-typed filter value to the column's native
// type for the operators that compare native values (EQUALS, BETWEEN).
func castPlaceholder(placeholder string, typ ColumnType) string {
	switch typ {
	case ColumnInteger:
		return placeholder + "::bigint"
	case ColumnFloat:
		return placeholder + "::double precision"
	case ColumnBoolean:
		return placeholder + "::boolean"
	case ColumnTimestamp:
		return placeholder + "::timestamptz"
	default:
		return placeholder
	}
}
