// Package storage implements the embedded time-series store behind the
// arraymon collection daemon.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Ingestion  │────▶│   Buffer    │────▶│   Parquet   │
//	│   Service   │     │ (Ring/WAL)  │     │   Writer    │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │
//	                           ▼
//	                    ┌─────────────┐
//	                    │  Aggregate  │
//	                    │   Manager   │
//	                    └─────────────┘
//
// The storage system provides:
//   - WAL-backed ingestion with crash replay
//   - Two tiers: raw rows and 5-minute aggregates, both parquet
//   - Backfill of missing 5-minute segments from raw data
//   - DuckDB query engine over parquet plus the hot buffer
//   - DDSketch-based percentile calculation
//   - Configurable retention per tier
//   - Backpressure handling
package storage
