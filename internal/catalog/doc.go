// Package catalog loads the static topic catalog: which topics exist, the
// JSON Schema each topic's payloads must satisfy, which payload paths are
// indexed, and the named operations (cardinality plus filter template) each
// topic serves.
//
// Catalogs are written in CUE. The built-in catalog is embedded in the binary
// (see Default); operators can supply their own directory (see LoadDir).
// Every problem found while loading is a *ConfigError and is fatal at startup.
package catalog
