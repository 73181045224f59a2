// Package types defines the core data types of the local tiered store.
//
// Key types:
//   - Row: a single persisted field value, flattened for columnar storage
//   - AggregateResult: aggregated statistics for one series and time bucket
//   - Tier: storage tier (raw, m5)
package types
