package ingestion

import (
	"context"
)

// MaxBatchSize is the largest number of rows written in one sink call.
const MaxBatchSize = 500

// BatchFailure describes one failed upsert batch.
type BatchFailure struct {
	Batch  int // 1-based batch number
	Offset int // index of the batch's first row in the input
	Size   int
	Err    error
}

// UpsertResult summarizes a batched upsert.
type UpsertResult struct {
	Written  int // rows in committed batches
	Batches  int
	Failures []BatchFailure
}

// Upsert partitions rows into batches of at most batchSize and writes each one
// with write. A failed batch does not stop later batches and is never retried.
// batchSize is clamped to [1, MaxBatchSize]; zero means MaxBatchSize.
func Upsert[T any](ctx context.Context, rows []T, batchSize int, write func(context.Context, []T) error) UpsertResult {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	var result UpsertResult
	for offset := 0; offset < len(rows); offset += batchSize {
		end := offset + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		result.Batches++
		batch := rows[offset:end]
		if err := write(ctx, batch); err != nil {
			result.Failures = append(result.Failures, BatchFailure{
				Batch:  result.Batches,
				Offset: offset,
				Size:   len(batch),
				Err:    err,
			})
			continue
		}
		result.Written += len(batch)
	}

	return result
}
