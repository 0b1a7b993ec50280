package pipeline

import (
	"fmt"

	"github.com/nao1215/harvest/internal/model"
)

// Partition splits total work items into contiguous intervals of size.
// It emits floor(total/size) full intervals followed by the remainder
// [total - total%size, total) when that remainder is non-empty. A total of
// zero yields no intervals.
func Partition(total, size int) ([]model.Interval, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: interval size must be positive, got %d", model.ErrConfiguration, size)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: negative work item count %d", model.ErrConfiguration, total)
	}

	full := total / size
	intervals := make([]model.Interval, 0, full+1)
	for i := range full {
		intervals = append(intervals, model.Interval{Start: i * size, End: (i + 1) * size})
	}
	if rest := total % size; rest > 0 {
		intervals = append(intervals, model.Interval{Start: total - rest, End: total})
	}
	return intervals, nil
}
