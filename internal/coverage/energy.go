package coverage

// Schedule names the power-schedule variants selectable via -p.
type Schedule string

const (
	ScheduleFast    Schedule = "fast"
	ScheduleCOE     Schedule = "coe"
	ScheduleExplore Schedule = "explore"
	ScheduleLin     Schedule = "lin"
	ScheduleQuad    Schedule = "quad"
	ScheduleExploit Schedule = "exploit"
)

// HavocMaxMult bounds the FAST/COE schedule_factor and the overall energy
// clamp (spec.md §9 compile-time tunable).
const HavocMaxMult = 32

// ratioBuckets is the ratio->multiplier ladder spec.md §4.3 specifies, used
// for both time_factor and cov_factor.
var ratioBuckets = []struct {
	maxRatio float64
	factor   float64
}{
	{0.1, 0.1},
	{0.25, 0.25},
	{0.5, 0.5},
	{0.75, 0.75},
	{1.0, 1.0},
	{1.5, 1.5},
	{2.0, 2.0},
	{3.0, 3.0},
	{1e18, 4.0},
}

func rampFactor(value, avg float64) float64 {
	if avg <= 0 {
		return 1.0
	}
	ratio := value / avg
	for _, b := range ratioBuckets {
		if ratio <= b.maxRatio {
			return b.factor
		}
	}
	return 4.0
}

var depthBuckets = []struct {
	maxDepth int
	factor   float64
}{
	{3, 1}, {7, 2}, {15, 4}, {31, 8}, {1 << 30, 16},
}

func depthFactor(depth int) float64 {
	for _, b := range depthBuckets {
		if depth <= b.maxDepth {
			return b.factor
		}
	}
	return 16
}

// GlobalAverages carries the corpus-wide averages the energy function
// normalizes individual entries against.
type GlobalAverages struct {
	AvgExecUs     float64
	AvgBitmapSize float64
	MedianNFuzz   int // global-median hits, for the COE schedule
}

// scheduleFactor computes the schedule-specific multiplier for entry tc
// under the given power schedule, using the global n_fuzz histogram hit
// count for this entry's bucket (spec.md §4.3).
func scheduleFactor(schedule Schedule, tc *TestCase, hits int, medianHits int) float64 {
	switch schedule {
	case ScheduleFast:
		return clampPow2(tc.FuzzLevel)
	case ScheduleCOE:
		if hits > medianHits {
			return 0
		}
		return clampPow2(tc.FuzzLevel)
	case ScheduleExplore:
		return 1
	case ScheduleLin:
		return float64(tc.FuzzLevel) / float64(1+hits)
	case ScheduleQuad:
		return float64(tc.FuzzLevel*tc.FuzzLevel) / float64(1+hits)
	case ScheduleExploit:
		return HavocMaxMult
	default:
		return 1
	}
}

func clampPow2(fuzzLevel int) float64 {
	v := 1.0
	for i := 0; i < fuzzLevel && v < HavocMaxMult*16; i++ {
		v *= 2
	}
	if v < 1 {
		v = 1
	}
	if v > HavocMaxMult*16 {
		v = HavocMaxMult * 16
	}
	return v
}

// ComputeEnergy returns the per-seed havoc iteration budget
// perf = BASE * time_factor * cov_factor * depth_factor * schedule_factor,
// clamped to [1, HavocMaxMult*100] (spec.md §4.3).
func ComputeEnergy(base float64, tc *TestCase, avg GlobalAverages, schedule Schedule, hits int) float64 {
	timeFactor := rampFactor(float64(tc.ExecUs), avg.AvgExecUs)
	covFactor := rampFactor(float64(tc.BitmapSize), avg.AvgBitmapSize)
	depthF := depthFactor(tc.Depth)
	schedF := scheduleFactor(schedule, tc, hits, avg.MedianNFuzz)

	perf := base * timeFactor * covFactor * depthF * schedF
	if perf < 1 {
		perf = 1
	}
	if max := HavocMaxMult * 100; perf > float64(max) {
		perf = float64(max)
	}
	return perf
}
