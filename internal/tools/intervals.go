package tools

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// SplitInterval cuts the inclusive range [from, to] into consecutive chunks
// of at most step. Chunk ends are inclusive, the next chunk starts one
// millisecond later.
func SplitInterval(from, to time.Time, step time.Duration) []Interval {
	if from.After(to) {
		return nil
	}
	if step <= time.Millisecond {
		return []Interval{{Start: from, End: to}}
	}

	intervals := make([]Interval, 0, int(to.Sub(from)/step)+1)
	for current := from; !current.After(to); {
		end := current.Add(step - time.Millisecond)
		if end.After(to) {
			end = to
		}
		intervals = append(intervals, Interval{Start: current, End: end})
		current = end.Add(time.Millisecond)
	}
	return intervals
}
