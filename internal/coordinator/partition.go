package coordinator

import "github.com/wayworm/hacker-news-data/internal/queue"

// partition splits [1, maxID] into contiguous, non-overlapping, inclusive
// ranges of at most chunkSize IDs each, covering every ID exactly once. The
// last range is short whenever maxID isn't an exact multiple of chunkSize.
func partition(maxID int64, chunkSize int) []queue.Range {
	if maxID <= 0 || chunkSize <= 0 {
		return nil
	}

	size := int64(chunkSize)
	ranges := make([]queue.Range, 0, maxID/size+1)
	for start := int64(1); start <= maxID; start += size {
		end := start + size - 1
		if end > maxID {
			end = maxID
		}
		ranges = append(ranges, queue.Range{Start: start, End: end})
	}
	return ranges
}
