// Package engine implements the query resolution engine.
//
// An operation is data: a name, a cardinality and a filter template declared
// per topic in the catalog. Executing an operation resolves the template
// against the caller's arguments into a concrete filter and hands it to the
// topic's searcher with the declared cardinality. There is one resolution
// algorithm for every topic; nothing in this package branches on a topic
// name.
//
// Template rules:
//
//   - A string leaf that is exactly one "{{name}}" token is replaced by the
//     argument's value, keeping its type.
//   - A string leaf with embedded tokens ("sys-{{id}}") is interpolated; each
//     token becomes the argument's text form.
//   - Every other leaf is a literal and passes through unchanged.
//   - A token without a matching argument is a MISSING_ARGUMENT error.
//     Arguments no token names are ignored.
package engine
