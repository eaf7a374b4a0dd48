package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileFromSamples_UniformDistribution(t *testing.T) {
	samples := make([]float64, 101)
	for i := range samples {
		samples[i] = float64(i)
	}
	assert.InDelta(t, 50, percentileFromSamples(samples, 50), 1)
	assert.InDelta(t, 95, percentileFromSamples(samples, 95), 1)
	assert.InDelta(t, 99, percentileFromSamples(samples, 99), 1)
}

func TestPercentileFromSamples_Empty(t *testing.T) {
	assert.Equal(t, float64(0), percentileFromSamples(nil, 50))
}

func TestPercentileFromSamples_SingleValue(t *testing.T) {
	assert.Equal(t, float64(42), percentileFromSamples([]float64{42}, 99))
}

func TestPercentileFromBuckets_InterpolatesWithinBucket(t *testing.T) {
	bounds := []float64{10, 50, 100}
	counts := []uint64{25, 50, 20, 5} // cumulative total 100, last is +Inf overflow

	p50 := percentileFromBuckets(bounds, counts, 50)
	// rank 50 falls inside bucket [10,50) with cumulative 25->75
	assert.True(t, p50 > 10 && p50 < 50, "expected p50 within (10,50), got %v", p50)
}

func TestPercentileFromBuckets_EmptyHistogram(t *testing.T) {
	assert.Equal(t, float64(0), percentileFromBuckets(nil, nil, 50))
}
