package scoring

import "github.com/pixelclass/render-judge/internal/levels"

// PointsFor maps an accuracy value onto awarded points using a level's
// threshold table. Thresholds must be sorted ascending by accuracy (the
// level loader guarantees this); the highest satisfied threshold wins.
// An empty or out-of-range table degrades to zero points rather than
// failing.
func PointsFor(accuracy, maxPoints float64, thresholds []levels.Threshold) float64 {
	best := -1.0
	for _, t := range thresholds {
		if t.Accuracy < 0 || t.Accuracy > 100 || t.PointsPercent < 0 || t.PointsPercent > 100 {
			continue
		}
		if t.Accuracy <= accuracy {
			best = t.PointsPercent
		}
	}
	if best < 0 {
		return 0
	}
	return maxPoints * best / 100
}

// NextMilestone returns the lowest threshold whose accuracy exceeds the
// current accuracy, or nil when all thresholds are met (max points
// reached). When several thresholds share an accuracy the first in sorted
// order is the reachable one.
func NextMilestone(accuracy float64, thresholds []levels.Threshold) *levels.Threshold {
	for i := range thresholds {
		t := thresholds[i]
		if t.Accuracy < 0 || t.Accuracy > 100 {
			continue
		}
		if t.Accuracy > accuracy {
			return &t
		}
	}
	return nil
}
