package ingest

import (
	"strings"
	"testing"

	"github.com/ternarybob/vera/internal/models"
)

func TestParseCSV_Aliases(t *testing.T) {
	input := "Timestamp,Ticker,Open,High,Low,Close,Vol,PE_TTM,PB\n" +
		"2024-01-02,AAPL,10,12,9,11,1000,25.5,\n" +
		"2024/01/03,AAPL,,,,11.5,\"1,200\",n/a,4.2\n"

	rows, errs, err := ParseCSV(strings.NewReader(input), "", "csv")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("ParseCSV() row errors = %v", errs)
	}
	if len(rows) != 2 {
		t.Fatalf("ParseCSV() rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.RawSymbol != "AAPL" || first.Close != 11 || first.Volume != 1000 {
		t.Errorf("first row = %+v", first)
	}
	if first.PETTM == nil || *first.PETTM != 25.5 {
		t.Errorf("first PETTM = %v, want 25.5", first.PETTM)
	}
	if first.PB != nil {
		t.Errorf("first PB = %v, want nil", *first.PB)
	}
	if first.Line != 2 {
		t.Errorf("first Line = %d, want 2", first.Line)
	}

	second := rows[1]
	if second.TradeDate.Format(models.DateLayout) != "2024-01-03" {
		t.Errorf("second date = %s", second.TradeDate)
	}
	if second.Open != nil || second.PETTM != nil {
		t.Errorf("second row should have empty open and pe_ttm: %+v", second)
	}
	if second.Volume != 1200 {
		t.Errorf("second Volume = %v, want 1200", second.Volume)
	}
	if second.PB == nil || *second.PB != 4.2 {
		t.Errorf("second PB = %v, want 4.2", second.PB)
	}
}

func TestParseCSV_DefaultSymbolAndRowErrors(t *testing.T) {
	input := "date,close\n" +
		"2024-01-02,100\n" +
		"not-a-date,101\n" +
		"\n" +
		"2024-01-04,abc\n" +
		"20240105,102\n"

	rows, errs, err := ParseCSV(strings.NewReader(input), "HK:STOCK:00700", "csv")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.RawSymbol != "HK:STOCK:00700" {
			t.Errorf("RawSymbol = %q, want default", r.RawSymbol)
		}
	}
	if len(errs) != 2 {
		t.Fatalf("row errors = %d, want 2: %v", len(errs), errs)
	}
	if errs[0].Line != 3 {
		t.Errorf("first error line = %d, want 3", errs[0].Line)
	}
}

func TestParseCSV_RequiredColumns(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		symbol string
	}{
		{"no date", "close,symbol\n1,AAPL\n", ""},
		{"no close", "date,symbol\n2024-01-02,AAPL\n", ""},
		{"no symbol", "date,close\n2024-01-02,1\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseCSV(strings.NewReader(tt.input), tt.symbol, "csv"); err == nil {
				t.Error("ParseCSV() error = nil, want error")
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeOverwrite, false},
		{"Overwrite", ModeOverwrite, false},
		{"incremental", ModeIncremental, false},
		{"append", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
