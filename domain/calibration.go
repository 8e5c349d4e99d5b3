package domain

import "math"

const (
	calibrationAcceptFloor   = 75.0
	calibrationRejectCeiling = 45.0
	calibrationMargin        = 5.0
	overlapRejectFloor       = 40.0
	overlapBand              = 10.0
)

// OutcomeStats summarizes AI scores of evaluated applications in one department.
type OutcomeStats struct {
	Department    string
	AcceptedMean  float64
	AcceptedCount int64
	RejectedMean  float64
	RejectedCount int64
	Evaluated     int64
}

// Add folds the mean score of count applications in status into the stats.
func (s *OutcomeStats) Add(status Status, mean float64, count int64) {
	if count <= 0 {
		return
	}
	s.Evaluated += count
	switch {
	case status.Advanced():
		s.AcceptedMean = weightedMean(s.AcceptedMean, s.AcceptedCount, mean, count)
		s.AcceptedCount += count
	case status == StatusRejected:
		s.RejectedMean = weightedMean(s.RejectedMean, s.RejectedCount, mean, count)
		s.RejectedCount += count
	}
}

func weightedMean(m1 float64, n1 int64, m2 float64, n2 int64) float64 {
	return (m1*float64(n1) + m2*float64(n2)) / float64(n1+n2)
}

// CalibrateThresholds derives new accept/reject thresholds from outcome stats.
// A side with no outcomes keeps its current value. It reports false when the
// department has no evaluated applications, in which case nothing changes.
func CalibrateThresholds(currentAccept, currentReject float64, stats OutcomeStats) (accept, reject float64, ok bool) {
	if stats.Evaluated == 0 {
		return currentAccept, currentReject, false
	}

	accept, reject = currentAccept, currentReject
	if stats.AcceptedCount > 0 {
		accept = math.Max(calibrationAcceptFloor, stats.AcceptedMean-calibrationMargin)
	}
	if stats.RejectedCount > 0 {
		reject = math.Min(calibrationRejectCeiling, stats.RejectedMean+calibrationMargin)
	}
	if reject >= accept {
		reject = math.Max(overlapRejectFloor, accept-overlapBand)
	}
	return accept, reject, true
}
