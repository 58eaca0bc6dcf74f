package signals

import (
	"math"

	"github.com/ternarybob/vera/internal/models"
)

// EarningsCycleClassifier places a TTM EPS series in the E1..E6 cycle
type EarningsCycleClassifier struct {
	// threshold is the normalised slope or curvature treated as flat
	threshold float64
	// window is the number of trailing periods considered
	window int
}

// NewEarningsCycleClassifier creates a classifier with a ±5% flat band over 8 periods
func NewEarningsCycleClassifier() *EarningsCycleClassifier {
	return &EarningsCycleClassifier{threshold: 0.05, window: 8}
}

// Classify returns UNKNOWN for fewer than 3 periods
func (c *EarningsCycleClassifier) Classify(eps []float64) models.EarningsCycle {
	if len(eps) > c.window {
		eps = eps[len(eps)-c.window:]
	}
	res := models.EarningsCycle{Phase: models.EarningsUnknown, Periods: len(eps)}
	if len(eps) < 3 {
		res.Label = res.Phase.Label()
		return res
	}

	latest := eps[len(eps)-1]
	prior := eps[:len(eps)-1]
	scale := math.Abs(avg(eps))
	if scale == 0 {
		scale = 1
	}

	res.Slope = round(linearSlope(eps)/scale, 4)
	mid := len(eps) / 2
	res.Curvature = round((linearSlope(eps[mid:])-linearSlope(eps[:mid+1]))/scale, 4)

	switch {
	case latest <= 0:
		res.Phase = models.EarningsLoss
	case minOf(prior) <= 0:
		res.Phase = models.EarningsRecovery
	case res.Slope >= c.threshold && res.Curvature >= -c.threshold:
		res.Phase = models.EarningsGrowth
	case res.Slope >= c.threshold:
		res.Phase = models.EarningsSlowing
	case res.Slope <= -c.threshold:
		res.Phase = models.EarningsDecline
	case res.Curvature < -c.threshold:
		res.Phase = models.EarningsSlowing
	default:
		res.Phase = models.EarningsStable
	}
	res.Label = res.Phase.Label()
	return res
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
