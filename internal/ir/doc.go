// Package ir provides the document value model shared by every exprmatch package.
//
// This package contains value definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Documents are ORDERED: key order survives decode, rewrite and encode
//   - Value is a sealed interface; type switches over it are exhaustive
//   - Values are treated as immutable once built; use Clone before mutating
//   - Extended JSON (relaxed) is the wire format for typed scalars
package ir
