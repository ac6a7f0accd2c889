package streams

import "math"

// Aggregate returns the peak and the mean rounded to two decimals of counts.
// Both are 0 for an empty slice.
func Aggregate(counts []int) (peak int, avg float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	sum := 0
	for _, c := range counts {
		sum += c
		if c > peak {
			peak = c
		}
	}
	avg = math.Round(float64(sum)/float64(len(counts))*100) / 100
	return peak, avg
}
