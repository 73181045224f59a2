package types

import "time"

// AggregateResult represents aggregated statistics for a time bucket.
// This is the output of the streaming aggregation process.
type AggregateResult struct {
	// Identity
	Measurement string // Measurement name
	Tags        string // Flattened ordered tag set
	Field       string // Field name within the measurement

	// Time bucket
	BucketStart int64 // Unix timestamp in milliseconds (bucket start, inclusive)
	BucketEnd   int64 // Unix timestamp in milliseconds (bucket end, exclusive)

	// Basic statistics (always present)
	Count int64   // Number of rows in this bucket
	Sum   float64 // Sum of all values
	Min   float64 // Minimum value
	Max   float64 // Maximum value
	Avg   float64 // Average value (Sum / Count)

	// P95 is the 95th percentile (nil if percentiles are not enabled).
	P95 *float64

	// Timestamps of actual rows
	FirstTs int64 // Timestamp of first row in bucket
	LastTs  int64 // Timestamp of last row in bucket
}

// Key returns a unique identifier for this aggregate's series.
func (a *AggregateResult) Key() string {
	return a.Measurement + "{" + a.Tags + "}." + a.Field
}

// BucketStartTime returns the bucket start as a time.Time.
func (a *AggregateResult) BucketStartTime() time.Time {
	return time.UnixMilli(a.BucketStart)
}

// BucketEndTime returns the bucket end as a time.Time.
func (a *AggregateResult) BucketEndTime() time.Time {
	return time.UnixMilli(a.BucketEnd)
}

// Duration returns the bucket duration.
func (a *AggregateResult) Duration() time.Duration {
	return time.Duration(a.BucketEnd-a.BucketStart) * time.Millisecond
}

// IsEmpty returns true if no rows were aggregated.
func (a *AggregateResult) IsEmpty() bool {
	return a.Count == 0
}

// HasPercentile returns true if percentile data is available.
func (a *AggregateResult) HasPercentile() bool {
	return a.P95 != nil
}

// SetPercentile sets the 95th percentile value.
func (a *AggregateResult) SetPercentile(p95 float64) {
	a.P95 = &p95
}

// AggregateBatch represents a collection of aggregate results.
type AggregateBatch struct {
	Results []AggregateResult
}

// NewAggregateBatch creates a new batch with the given capacity.
func NewAggregateBatch(capacity int) *AggregateBatch {
	return &AggregateBatch{
		Results: make([]AggregateResult, 0, capacity),
	}
}

// Add appends an aggregate result to the batch.
func (b *AggregateBatch) Add(r AggregateResult) {
	b.Results = append(b.Results, r)
}

// Len returns the number of results in the batch.
func (b *AggregateBatch) Len() int {
	return len(b.Results)
}

// Clear resets the batch for reuse.
func (b *AggregateBatch) Clear() {
	b.Results = b.Results[:0]
}
