// Package querysql compiles queryir selects into parameterized SQLite
// queries over a topic's events and index_entries tables.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/queryir"
)

// EventColumns is the column list every compiled query returns, in scan order.
const EventColumns = "e.seq, e.id, e.content_hash, e.payload, e.received_at"

// Compile converts a Select to SQL and its parameters.
//
// Every query orders by sequence; values are always bound as parameters and
// never interpolated. Payload-path equalities are answered from
// index_entries, where values are stored in canonical JSON form, so the
// comparison is typed and exact.
func Compile(q queryir.Query) (string, []any, error) {
	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		if query == nil {
			return "", nil, fmt.Errorf("cannot compile nil query")
		}
		sel = *query
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(EventColumns)
	b.WriteString(" FROM events e")

	var params []any
	if sel.Filter != nil {
		where, whereParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = whereParams
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderKey(sel.Order))

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, sel.Limit)
	}
	return b.String(), params, nil
}

// orderKey returns the ORDER BY clause. Sequence is the primary key, so the
// order is total.
func orderKey(o queryir.Order) string {
	if o == queryir.Descending {
		return "e.seq DESC"
	}
	return "e.seq ASC"
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	if eq.Field == ir.IDField {
		id, ok := eq.Value.(ir.IRString)
		if !ok {
			return "", nil, fmt.Errorf("id must be a string, got %T", eq.Value)
		}
		return "e.id = ?", []any{string(id)}, nil
	}

	param, err := IndexValue(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value for %s: %w", eq.Field, err)
	}
	sql := "e.seq IN (SELECT seq FROM index_entries WHERE field_path = ? AND value = ?)"
	return sql, []any{eq.Field, param}, nil
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// IndexValue is the stored form of an indexed value: its canonical JSON.
// The store writes index entries with the same function, which is what makes
// lookups exact.
func IndexValue(v ir.IRValue) (string, error) {
	if v == nil {
		return "", fmt.Errorf("nil value")
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
