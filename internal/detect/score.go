package detect

import "fmt"

// Default scoring parameters. These were chosen empirically against common
// login stacks and are deliberately exposed as configuration rather than
// baked in: operators tune them per target.
const (
	DefaultWeightStatus   = 3
	DefaultWeightLength   = 2
	DefaultWeightURL      = 3
	DefaultScoreThreshold = 3
)

// Classification is the terminal verdict for one tested credential pair.
type Classification string

const (
	// Rejected means the response matched the failure signature.
	Rejected Classification = "REJECTED"
	// Suspect means the response deviated enough to be a potential success.
	Suspect Classification = "SUSPECT"
)

// Weights holds the per-dimension contribution to the deviation score.
type Weights struct {
	Status int
	Length int
	URL    int
}

// DefaultWeights returns the 3/2/3 split used by the reference rule set.
func DefaultWeights() Weights {
	return Weights{Status: DefaultWeightStatus, Length: DefaultWeightLength, URL: DefaultWeightURL}
}

// total is the maximum achievable score, used as the length weight when the
// scorer degrades to length-only mode.
func (w Weights) total() int { return w.Status + w.Length + w.URL }

// Scorer compares live response summaries against a failure signature.
// Score is a pure function: no side effects, no failure modes, identical
// output for identical input. A Scorer is safe for concurrent use.
type Scorer struct {
	weights   Weights
	threshold int
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithWeights overrides the per-dimension weights.
func WithWeights(w Weights) ScorerOption {
	return func(s *Scorer) { s.weights = w }
}

// WithThreshold overrides the SUSPECT cutoff.
func WithThreshold(threshold int) ScorerOption {
	return func(s *Scorer) { s.threshold = threshold }
}

// NewScorer builds a scorer with the default 3/2/3 weights and threshold 3
// unless overridden by options.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		weights:   DefaultWeights(),
		threshold: DefaultScoreThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the configured SUSPECT cutoff.
func (s *Scorer) Threshold() int { return s.threshold }

// Score evaluates one summary against the signature and returns the weighted
// deviation score along with the reasons that contributed to it. Dimensions
// marked unreliable during calibration contribute zero. When the signature is
// degraded (two unreliable dimensions) the body length check carries the full
// combined weight and the reasons carry a degraded-calibration note.
func (s *Scorer) Score(summary ResponseSummary, sig *FailureSignature) (int, []string) {
	if sig == nil {
		return 0, nil
	}

	points := 0
	var reasons []string

	degraded := sig.Degraded()
	lengthWeight := s.weights.Length
	if degraded {
		lengthWeight = s.weights.total()
		reasons = append(reasons, "degraded calibration: status and URL unstable, scoring on body length only")
	}

	if !degraded && sig.StatusReliable && summary.StatusCode != sig.ExpectedStatus {
		points += s.weights.Status
		reasons = append(reasons, fmt.Sprintf("status changed: expected %d, was %d", sig.ExpectedStatus, summary.StatusCode))
	}

	if summary.BodyLength < sig.LengthLow || summary.BodyLength > sig.LengthHigh {
		points += lengthWeight
		reasons = append(reasons, fmt.Sprintf("length anomaly: %d bytes, expected %d-%d", summary.BodyLength, sig.LengthLow, sig.LengthHigh))
	}

	if !degraded && sig.URLReliable && summary.FinalURL != sig.ExpectedURL {
		points += s.weights.URL
		reasons = append(reasons, fmt.Sprintf("redirected: expected %s, got %s", sig.ExpectedURL, summary.FinalURL))
	}

	return points, reasons
}

// Classify maps a deviation score to a terminal classification.
func (s *Scorer) Classify(points int) Classification {
	if points >= s.threshold {
		return Suspect
	}
	return Rejected
}
