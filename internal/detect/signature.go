package detect

import "math"

// DefaultToleranceRatio is the fraction by which the observed body-length band
// is widened to absorb benign jitter (timestamps, nonces) in rejection pages.
const DefaultToleranceRatio = 0.01

// FailureSignature is the tolerant description of what a rejected login looks
// like for one target. It is built exactly once from the calibration sample,
// then shared read-only across every pipeline worker; nothing mutates it after
// Analyze returns, so no locking is required.
type FailureSignature struct {
	// ExpectedStatus is the modal status code of the sample. It only
	// participates in scoring when StatusReliable is true.
	ExpectedStatus int
	// StatusReliable is false when the calibration responses disagreed on
	// status. The status dimension is then excluded from scoring.
	StatusReliable bool

	// LengthLow and LengthHigh bound the acceptable body length, already
	// expanded by ToleranceRatio. LengthLow <= LengthHigh always holds.
	LengthLow  int
	LengthHigh int

	// ExpectedURL is the modal final URL. Like status, it only scores when
	// URLReliable is true.
	ExpectedURL string
	URLReliable bool

	ToleranceRatio float64
	SampleCount    int
}

// Degraded reports whether two or more scoring dimensions are unreliable,
// leaving body length as the only trustworthy signal.
func (s *FailureSignature) Degraded() bool {
	return !s.StatusReliable && !s.URLReliable
}

// Analyze reduces a calibration sample into a FailureSignature. Given the
// same sample sequence it always produces the same signature; there is no
// randomness in this stage. It fails with *InsufficientSampleError on an
// empty sample.
func Analyze(summaries []ResponseSummary, toleranceRatio float64) (*FailureSignature, error) {
	if len(summaries) == 0 {
		return nil, &InsufficientSampleError{Got: 0}
	}
	if toleranceRatio < 0 {
		toleranceRatio = DefaultToleranceRatio
	}

	statusCounts := make(map[int]int, len(summaries))
	urlCounts := make(map[string]int, len(summaries))
	minLen, maxLen := summaries[0].BodyLength, summaries[0].BodyLength

	for _, s := range summaries {
		statusCounts[s.StatusCode]++
		urlCounts[s.FinalURL]++
		if s.BodyLength < minLen {
			minLen = s.BodyLength
		}
		if s.BodyLength > maxLen {
			maxLen = s.BodyLength
		}
	}

	expectedStatus := modalStatus(summaries, statusCounts)
	expectedURL := modalURL(summaries, urlCounts)

	// Widen the band symmetrically. The margin is derived from the larger
	// observed length so the samples that built the band always fit in it.
	margin := int(math.Ceil(float64(maxLen) * toleranceRatio))
	low := minLen - margin
	if low < 0 {
		low = 0
	}

	return &FailureSignature{
		ExpectedStatus: expectedStatus,
		StatusReliable: len(statusCounts) == 1,
		LengthLow:      low,
		LengthHigh:     maxLen + margin,
		ExpectedURL:    expectedURL,
		URLReliable:    len(urlCounts) == 1,
		ToleranceRatio: toleranceRatio,
		SampleCount:    len(summaries),
	}, nil
}

// modalStatus picks the most frequent status code, breaking ties by first
// occurrence in the sample so the result stays deterministic.
func modalStatus(summaries []ResponseSummary, counts map[int]int) int {
	best, bestCount := 0, 0
	for _, s := range summaries {
		if c := counts[s.StatusCode]; c > bestCount {
			best, bestCount = s.StatusCode, c
		}
	}
	return best
}

func modalURL(summaries []ResponseSummary, counts map[string]int) string {
	best, bestCount := "", 0
	for _, s := range summaries {
		if c := counts[s.FinalURL]; c > bestCount {
			best, bestCount = s.FinalURL, c
		}
	}
	return best
}
