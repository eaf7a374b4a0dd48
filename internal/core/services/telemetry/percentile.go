package telemetry

import "sort"

// percentileFromSamples computes rank p (0..100) over raw samples using
// linear interpolation on the sorted sample set, per spec §4.5's
// "linear-within-bucket on sorted cumulative counts" requirement applied to
// the degenerate one-sample-per-bucket case.
func percentileFromSamples(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// bucket is one explicit-bound histogram bucket: count of samples with
// value <= UpperBound (cumulative), matching OTLP's ExplicitBounds/
// BucketCounts cumulative-within-bucket layout once flattened.
type bucket struct {
	UpperBound float64
	Count      uint64
}

// percentileFromBuckets computes rank p over histogram bucket cumulative
// counts via linear interpolation within the bucket that crosses the
// target rank, per spec §4.5. bounds holds len(counts)-1 finite upper
// bounds (OTLP's ExplicitBounds); the last count is the +Inf overflow
// bucket and is excluded from interpolation (no finite upper bound to
// interpolate toward).
func percentileFromBuckets(bounds []float64, counts []uint64, p float64) float64 {
	total := uint64(0)
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}

	target := (p / 100) * float64(total)

	var cumulative uint64
	var prevBound float64
	for i, count := range counts {
		bucketLow := prevBound
		cumulative += count
		if float64(cumulative) >= target {
			if i >= len(bounds) {
				return bucketLow
			}
			bucketHigh := bounds[i]
			countBefore := cumulative - count
			if count == 0 {
				return bucketHigh
			}
			frac := (target - float64(countBefore)) / float64(count)
			if frac < 0 {
				frac = 0
			}
			return bucketLow + frac*(bucketHigh-bucketLow)
		}
		if i < len(bounds) {
			prevBound = bounds[i]
		}
	}
	if len(bounds) > 0 {
		return bounds[len(bounds)-1]
	}
	return prevBound
}
