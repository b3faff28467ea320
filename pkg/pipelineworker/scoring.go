package pipelineworker

import "math"

// Source-tier base credibilities.
var sourceTier = map[string]float64{
	"journal":    0.9,
	"conference": 0.8,
	"book":       0.7,
	"preprint":   0.6,
	"web":        0.4,
}

const (
	unknownTier      = 0.3
	maxCitationBoost = 0.2
	coverageTarget   = 10
)

// Credibility scores one document in [0, 1]: the source-tier base plus
// a logarithmic citation boost capped at 0.2.
func Credibility(doc Document) float64 {
	base, ok := sourceTier[doc.Source]
	if !ok {
		base = unknownTier
	}
	boost := math.Min(maxCitationBoost, math.Log1p(float64(doc.CitedBy))/20)
	return clamp01(base + boost)
}

// Score aggregates a batch into a ValidationReport:
//
//	credibility = mean of per-document credibilities
//	consistency = 1 - stddev of per-document credibilities
//	coverage    = min(1, len(batch)/10)
//	score       = 0.5*credibility + 0.3*consistency + 0.2*coverage
//
// An empty batch scores zero across the board.
func Score(batch []Document) ValidationReport {
	if len(batch) == 0 {
		return ValidationReport{}
	}

	creds := make([]float64, len(batch))
	var sum float64
	for i, doc := range batch {
		creds[i] = Credibility(doc)
		sum += creds[i]
	}
	mean := sum / float64(len(creds))

	var variance float64
	for _, c := range creds {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(creds))
	consistency := clamp01(1 - math.Sqrt(variance))

	coverage := math.Min(1, float64(len(batch))/coverageTarget)

	return ValidationReport{
		Score:       clamp01(0.5*mean + 0.3*consistency + 0.2*coverage),
		Credibility: mean,
		Consistency: consistency,
		Coverage:    coverage,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
