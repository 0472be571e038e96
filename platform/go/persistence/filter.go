package persistence

import "strings"

// FilterOperator enumerates the comparison operators accepted in dynamic filters.
type FilterOperator string

const (
	OpEquals             FilterOperator = "EQUALS"
	OpNotEquals          FilterOperator = "NOT_EQUALS"
	OpGreaterThan        FilterOperator = "GREATER_THAN"
	OpLessThan           FilterOperator = "LESS_THAN"
	OpGreaterThanOrEqual FilterOperator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    FilterOperator = "LESS_THAN_OR_EQUAL"
	OpContains           FilterOperator = "CONTAINS"
	OpNotContains        FilterOperator = "NOT_CONTAINS"
	OpBetween            FilterOperator = "BETWEEN"
)

// FilterCondition selects how the predicates of a set are combined.
type FilterCondition string

const (
	ConditionAnd FilterCondition = "AND"
	ConditionOr  FilterCondition = "OR"
)

// FilterPredicate is one declarative comparison. Attribute is a column name or
// a single-hop dot path ("relation.column"). SecondaryValue is only meaningful
// for BETWEEN.
type FilterPredicate struct {
	Attribute      string          `json:"attribute"`
	PrimaryValue   string          `json:"primary_value"`
	SecondaryValue *string         `json:"secondary_value"`
	Operator       FilterOperator  `json:"operator"`
	Condition      FilterCondition `json:"condition"`
}

// FilterSet is an ordered sequence of predicates sharing one combination
// policy: the condition of the LAST predicate decides whether the whole set is
// ANDed or ORed. That is how the filter contract has always behaved and
// callers rely on it, so it is preserved even for mixed-condition input.
type FilterSet struct {
	Filters []FilterPredicate `json:"filters"`
}

// IsEmpty reports whether the set carries no predicates.
func (f *FilterSet) IsEmpty() bool {
	return f == nil || len(f.Filters) == 0
}

// Combination returns the condition read from the last predicate, defaulting to AND.
func (f *FilterSet) Combination() FilterCondition {
	if f.IsEmpty() {
		return ConditionAnd
	}
	last := f.Filters[len(f.Filters)-1].Condition
	if strings.EqualFold(string(last), string(ConditionOr)) {
		return ConditionOr
	}
	return ConditionAnd
}
