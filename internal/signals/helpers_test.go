package signals

import (
	"time"

	"github.com/ternarybob/vera/internal/models"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// barsFrom builds consecutive daily bars from closes
func barsFrom(closes ...float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{AssetID: "US:STOCK:TEST", TradeDate: testStart.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func day(i int) time.Time {
	return testStart.AddDate(0, 0, i)
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
