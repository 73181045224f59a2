// Package parquet implements Parquet file reading and writing for rows and aggregates.
//
// The package provides:
//   - RawWriter/RawReader for raw-tier row data
//   - AggregateWriter/AggregateReader for m5-tier aggregated statistics
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//   - Type conversion between storage types and Parquet rows
package parquet
