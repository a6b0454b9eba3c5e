package pointcloud

// AlignmentQuality classifies a registration by its final RMS error.
type AlignmentQuality string

const (
	// AlignmentQualityExcellent indicates RMS < 0.05 length units.
	AlignmentQualityExcellent AlignmentQuality = "excellent"
	// AlignmentQualityGood indicates RMS in [0.05, 0.15).
	AlignmentQualityGood AlignmentQuality = "good"
	// AlignmentQualityFair indicates RMS in [0.15, 0.30); usable but worth realigning.
	AlignmentQualityFair AlignmentQuality = "fair"
	// AlignmentQualityPoor indicates RMS >= 0.30; the alignment should not be trusted.
	AlignmentQualityPoor AlignmentQuality = "poor"
)

// RMS thresholds, in the cloud's linear unit.
const (
	rmsThresholdExcellent = 0.05
	rmsThresholdGood      = 0.15
	rmsThresholdFair      = 0.30
)

// Quality classifies the registration's residual error so hosts can decide
// whether to accept the alignment or ask for a better initial guess.
func (res *ICPResult) Quality() AlignmentQuality {
	switch {
	case res.RMSError < rmsThresholdExcellent:
		return AlignmentQualityExcellent
	case res.RMSError < rmsThresholdGood:
		return AlignmentQualityGood
	case res.RMSError < rmsThresholdFair:
		return AlignmentQualityFair
	default:
		return AlignmentQualityPoor
	}
}
