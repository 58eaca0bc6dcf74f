package signals

import (
	"math"
	"sort"
	"time"

	"github.com/ternarybob/vera/internal/models"
)

// clamp restricts a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// round rounds to specified decimal places
func round(value float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(value*mult) / mult
}

// avg calculates the average of all values
func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev calculates the sample standard deviation
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := avg(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// logReturns returns ln(p_t / p_{t-1}) for consecutive positive prices
func logReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// annualisedVolatility is the sample stddev of daily log returns scaled by sqrt(days)
func annualisedVolatility(prices []float64, tradingDays int) float64 {
	return stddev(logReturns(prices)) * math.Sqrt(float64(tradingDays))
}

// percentileRank is the share of values <= v, in [0, 1]
func percentileRank(v float64, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, x := range values {
		if x <= v {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// quantile returns the linearly interpolated q-quantile (q in [0, 1])
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := clamp(q, 0, 1) * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// linearSlope is the least-squares slope of values against their index
func linearSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range values {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

// pctChange calculates the fractional change from old to new
func pctChange(old, newVal float64) float64 {
	if old == 0 {
		return 0
	}
	return (newVal - old) / math.Abs(old)
}

// closes extracts the close series
func closes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// upTo returns the prefix of ascending bars with trade_date <= asOf
func upTo(bars []models.PriceBar, asOf time.Time) []models.PriceBar {
	if asOf.IsZero() {
		return bars
	}
	i := sort.Search(len(bars), func(i int) bool { return bars[i].TradeDate.After(asOf) })
	return bars[:i]
}

// since returns the suffix of ascending bars with trade_date >= from
func since(bars []models.PriceBar, from time.Time) []models.PriceBar {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].TradeDate.Before(from) })
	return bars[i:]
}
