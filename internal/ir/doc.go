// Package ir provides the value model shared by every conduit package.
//
// This package contains value and record types only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - payload numbers must be integral (int64)
//   - Payloads are IRObject documents; dotted paths address their fields
//   - Content hashes are computed over RFC 8785 canonical JSON only
//   - Ordering inside a topic uses the logical sequence, never wall-clock time
package ir
