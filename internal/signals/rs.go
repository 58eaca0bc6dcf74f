package signals

import (
	"github.com/ternarybob/vera/internal/models"
)

// RSComputer computes relative strength of a subject against a benchmark
type RSComputer struct {
	lookback int
}

// NewRSComputer creates an RS computer over lookback trading days (63 for RS_3m)
func NewRSComputer(lookback int) *RSComputer {
	return &RSComputer{lookback: lookback}
}

// Compute returns (p_t/p_{t-n} - 1) - (q_t/q_{t-n} - 1) over the dates both
// series share, or nil when fewer than n+1 common days exist.
func (c *RSComputer) Compute(subject, benchmark []models.PriceBar) *float64 {
	p, q := alignCloses(subject, benchmark)
	n := c.lookback
	if n <= 0 || len(p) < n+1 {
		return nil
	}

	t := len(p) - 1
	if p[t-n] <= 0 || q[t-n] <= 0 {
		return nil
	}
	rs := (p[t]/p[t-n] - 1) - (q[t]/q[t-n] - 1)
	rs = round(rs, 4)
	return &rs
}

// alignCloses returns the closes of both series on their common trade dates, in order
func alignCloses(subject, benchmark []models.PriceBar) ([]float64, []float64) {
	bench := make(map[string]float64, len(benchmark))
	for _, b := range benchmark {
		bench[b.TradeDate.Format(models.DateLayout)] = b.Close
	}

	p := make([]float64, 0, len(subject))
	q := make([]float64, 0, len(subject))
	for _, s := range subject {
		if v, ok := bench[s.TradeDate.Format(models.DateLayout)]; ok {
			p = append(p, s.Close)
			q = append(q, v)
		}
	}
	return p, q
}
