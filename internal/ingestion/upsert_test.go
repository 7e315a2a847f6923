package ingestion

import (
	"context"
	"errors"
	"testing"
)

func TestUpsert_Partitions(t *testing.T) {
	tests := []struct {
		name        string
		rows        int
		batchSize   int
		wantBatches int
		wantSizes   []int
	}{
		{"empty", 0, 500, 0, nil},
		{"exact multiple", 1000, 500, 2, []int{500, 500}},
		{"remainder", 1201, 500, 3, []int{500, 500, 201}},
		{"small batches", 5, 2, 3, []int{2, 2, 1}},
		{"zero means max", 501, 0, 2, []int{500, 1}},
		{"oversized clamps to max", 600, 10000, 2, []int{500, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]int, tt.rows)
			var sizes []int
			res := Upsert(context.Background(), rows, tt.batchSize, func(_ context.Context, batch []int) error {
				sizes = append(sizes, len(batch))
				return nil
			})

			if res.Batches != tt.wantBatches {
				t.Errorf("Batches = %d, want %d", res.Batches, tt.wantBatches)
			}
			if res.Written != tt.rows {
				t.Errorf("Written = %d, want %d", res.Written, tt.rows)
			}
			if len(sizes) != len(tt.wantSizes) {
				t.Fatalf("sizes = %v, want %v", sizes, tt.wantSizes)
			}
			for i := range sizes {
				if sizes[i] != tt.wantSizes[i] {
					t.Errorf("batch %d size = %d, want %d", i+1, sizes[i], tt.wantSizes[i])
				}
			}
		})
	}
}

func TestUpsert_FailedBatchDoesNotStopOthers(t *testing.T) {
	rows := make([]int, 7)
	for i := range rows {
		rows[i] = i
	}
	boom := errors.New("boom")

	var calls int
	res := Upsert(context.Background(), rows, 3, func(_ context.Context, batch []int) error {
		calls++
		if batch[0] == 3 {
			return boom
		}
		return nil
	})

	if calls != 3 {
		t.Errorf("expected every batch to be attempted once, got %d calls", calls)
	}
	if res.Written != 4 {
		t.Errorf("Written = %d, want 4", res.Written)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(res.Failures))
	}

	f := res.Failures[0]
	if f.Batch != 2 || f.Offset != 3 || f.Size != 3 || !errors.Is(f.Err, boom) {
		t.Errorf("unexpected failure: %+v", f)
	}
}
