// Package store provides the SQLite-backed rewrite log.
//
// Every recorded rewrite keeps the input filter, the policy it ran under and
// the stages it produced, so a later build can replay the log and prove it
// still rewrites identically.
//
//   - Policies: policy documents keyed by content hash
//   - Rewrites: one row per (policy, input) pair, keyed by content hash
//
// # Critical Patterns
//
// Content-addressed identity
//   - rewrites.id = ir.RewriteID(policy_hash, input)
//   - Writes use ON CONFLICT DO NOTHING; recording the same rewrite twice
//     is a no-op
//
// Logical ordering
//   - seq INTEGER orders the log, never timestamps
//   - Listing queries use ORDER BY seq ASC, id ASC COLLATE BINARY
//
// Payloads
//   - Documents are stored as zstd-compressed Extended JSON
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
