package strategy

import "sort"

// seasonStat tracks how much of one season is still missing.
type seasonStat struct {
	season  int
	missing int
	total   int
}

// SeasonRange is a run of consecutive seasons searched as one
// multi-season pack.
type SeasonRange struct {
	Start int
	End   int
}

// Seasons returns how many seasons the range spans.
func (r SeasonRange) Seasons() int {
	return r.End - r.Start + 1
}

// Contains reports whether the season falls inside the range.
func (r SeasonRange) Contains(season int) bool {
	return season >= r.Start && season <= r.End
}

// multiSeasonRanges finds candidate ranges for the multi-season phase:
// maximal runs of at least 2 consecutive seasons where every member
// season's own missing-ratio meets the threshold percentage. Gating
// membership per season keeps a mostly-complete season from being
// pulled into a range on the strength of its neighbors. Runs are
// disjoint by construction and returned widest first.
func multiSeasonRanges(stats []seasonStat, thresholdPct int) []SeasonRange {
	ordered := make([]seasonStat, len(stats))
	copy(ordered, stats)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].season < ordered[j].season })

	qualifies := func(s seasonStat) bool {
		return s.total > 0 && s.missing*100/s.total >= thresholdPct
	}

	var ranges []SeasonRange
	for i := 0; i < len(ordered); {
		if !qualifies(ordered[i]) {
			i++
			continue
		}
		j := i
		for j+1 < len(ordered) && ordered[j+1].season == ordered[j].season+1 && qualifies(ordered[j+1]) {
			j++
		}
		if j > i {
			ranges = append(ranges, SeasonRange{Start: ordered[i].season, End: ordered[j].season})
		}
		i = j + 1
	}

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Seasons() != ranges[j].Seasons() {
			return ranges[i].Seasons() > ranges[j].Seasons()
		}
		return ranges[i].Start < ranges[j].Start
	})
	return ranges
}
