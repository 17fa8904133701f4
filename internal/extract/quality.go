package extract

import "github.com/joseph-ayodele/docscan/constants"

const (
	highConfidence   = 0.8
	mediumConfidence = 0.5
	highShare        = 0.7
	mediumShare      = 0.5
)

// Score buckets a field set into a quality tier by confidence shares.
func Score(fields Fields) constants.Quality {
	n := len(fields)
	if n == 0 {
		return constants.QualityLow
	}
	var high, medium int
	for _, f := range fields {
		switch {
		case f.Confidence >= highConfidence:
			high++
		case f.Confidence >= mediumConfidence:
			medium++
		}
	}
	switch {
	case float64(high)/float64(n) >= highShare:
		return constants.QualityHigh
	case float64(high+medium)/float64(n) >= mediumShare:
		return constants.QualityMedium
	default:
		return constants.QualityLow
	}
}
