package coordinator

import "testing"

func TestPartitionCoversRangeWithNoOverlap(t *testing.T) {
	cases := []struct {
		maxID     int64
		chunkSize int
	}{
		{maxID: 10, chunkSize: 3},
		{maxID: 1000, chunkSize: 100},
		{maxID: 1, chunkSize: 1},
		{maxID: 7, chunkSize: 7},
		{maxID: 7, chunkSize: 100},
	}

	for _, c := range cases {
		ranges := partition(c.maxID, c.chunkSize)
		if len(ranges) == 0 {
			t.Fatalf("maxID=%d chunkSize=%d: got no ranges", c.maxID, c.chunkSize)
		}

		var next int64 = 1
		for i, r := range ranges {
			if r.Start != next {
				t.Fatalf("maxID=%d chunkSize=%d: range %d starts at %d, want %d", c.maxID, c.chunkSize, i, r.Start, next)
			}
			if r.Start > r.End {
				t.Fatalf("maxID=%d chunkSize=%d: range %d has start %d > end %d", c.maxID, c.chunkSize, i, r.Start, r.End)
			}
			if r.End-r.Start+1 > int64(c.chunkSize) {
				t.Fatalf("maxID=%d chunkSize=%d: range %d is larger than chunk size", c.maxID, c.chunkSize, i)
			}
			next = r.End + 1
		}
		if got := ranges[len(ranges)-1].End; got != c.maxID {
			t.Fatalf("maxID=%d chunkSize=%d: last range ends at %d, want %d", c.maxID, c.chunkSize, got, c.maxID)
		}
	}
}

func TestPartitionSingleIDChunk(t *testing.T) {
	ranges := partition(1, 1)
	if len(ranges) != 1 || ranges[0].Start != 1 || ranges[0].End != 1 {
		t.Fatalf("expected single chunk [1,1], got %v", ranges)
	}
}

func TestPartitionZeroMaxIDYieldsNoChunks(t *testing.T) {
	if ranges := partition(0, 100); len(ranges) != 0 {
		t.Fatalf("expected no ranges for maxID=0, got %v", ranges)
	}
}
