package geolocation

// tracker applies the resolution policy to a stream of samples
type tracker struct {
	threshold  float64
	maxSamples int
	count      int
	best       Sample
	hasBest    bool
}

func newTracker(threshold float64, maxSamples int) *tracker {
	return &tracker{threshold: threshold, maxSamples: maxSamples}
}

// observe records a sample and reports whether the acquisition resolves, and with what.
// A sample within the threshold wins over the sample cap.
func (t *tracker) observe(s Sample) (Sample, bool) {
	t.count++
	if !t.hasBest || s.Accuracy < t.best.Accuracy {
		t.best = s
		t.hasBest = true
	}

	if s.Accuracy <= t.threshold {
		return s, true
	}
	if t.maxSamples > 0 && t.count >= t.maxSamples {
		return t.best, true
	}
	return Sample{}, false
}

// bestSoFar returns the most accurate sample seen
func (t *tracker) bestSoFar() (Sample, bool) {
	return t.best, t.hasBest
}
