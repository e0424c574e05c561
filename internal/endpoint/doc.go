// Package endpoint binds every catalog topic onto HTTP.
//
// Per topic:
//
//	POST /{topic}/graph             run a named operation
//	POST /{topic}/api               validated append, 201 {"id": ...}
//	GET  /{topic}/api               list events (?limit=n)
//	GET  /{topic}/api/{id}          point lookup
//	GET  /{topic}/api/{id}/proof    inclusion proof against the current root
//	GET  /{topic}/integrity         integrity report
//
// plus GET /health. The graph path takes the GraphQL request envelope
// ({"operationName", "variables"}) and answers {"data": {op: ...}}; the
// query document itself is not parsed.
//
// This package is the only place errors become HTTP statuses.
package endpoint
