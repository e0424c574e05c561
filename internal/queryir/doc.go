// Package queryir is the filter representation the read path hands to the
// store. It sits between operation resolution and SQL compilation:
//
//	[operation + args] -> [resolved filter] -> [queryir.Select] -> [querysql]
//
// The fragment is deliberately small. A Select reads one topic; its filter is
// a conjunction of exact-match equalities on field paths ("id" or a
// "payload."-rooted dotted path). There are no joins across topics, no OR, no
// ranges and no aggregation.
//
// Query and Predicate are sealed interfaces using the marker method pattern,
// so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	    // field = value
//	case And:
//	    // all of p.Predicates
//	}
//
// Values are ir.IRValue, never floats. Equality is typed and exact: the
// string "1" does not equal the integer 1, and objects compare by their
// canonical encoding.
//
// Every Select has a deterministic order: ascending or descending sequence.
package queryir
