package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rewired-gh/optionlab/internal/grid"
	"github.com/rewired-gh/optionlab/internal/models"
	"github.com/rewired-gh/optionlab/internal/pricing"
)

func assertContainsAll(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestWritePricing(t *testing.T) {
	p := models.NewContractParametersFromDays(45, 100, 100, 0.2, 0.05)
	r, err := pricing.Price(p)
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WritePricing(&buf, p, r); err != nil {
		t.Fatalf("WritePricing() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "CALL", "3.1104", "2.4959", "0.5489", "45")
}

func TestWriteMatrix(t *testing.T) {
	baseline := models.NewContractParametersFromDays(45, 100, 100, 0.2, 0.05)
	m, err := grid.Build(baseline, grid.Spec{
		SpotAxis:      []float64{90, 100, 110},
		VolAxis:       []float64{0.1, 0.2},
		Mode:          grid.PositionPnL,
		PositionUnits: 1,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMatrix(&buf, m); err != nil {
		t.Fatalf("WriteMatrix() error = %v", err)
	}

	out := buf.String()
	assertContainsAll(t, out, "CALL P&L Analysis", "PUT P&L Analysis", "110.00", "0.200")
	// header + 2 rows per side, plus titles and separator
	if got := strings.Count(out, "\n"); got != 9 {
		t.Errorf("line count = %d, want 9", got)
	}
}

func TestWriteAllocation(t *testing.T) {
	var buf bytes.Buffer
	rec := models.AllocationRecommendation{
		MarketVolatilityIndex: 15,
		VolatilityTierCap:     3000,
		KellyFraction:         0.0144,
		KellyAllocation:       143.84,
		OptionPrice:           0.5,
		RecommendedContracts:  2,
	}
	if err := WriteAllocation(&buf, 10000, rec, true); err != nil {
		t.Fatalf("WriteAllocation() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "15.00 (fallback)", "$3000.00 (30.0% of account)", "2 @ $0.5000")
}

func TestWriteRanking(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRanking(&buf,
		[]models.CPIVResult{{Ticker: "AAPL", Expiration: "2025-01-17", CPIV: 0.012}},
		[]models.CPIVFailure{{Ticker: "BAD", Expiration: "2025-01-17", Err: errors.New("boom")}},
	)
	if err != nil {
		t.Fatalf("WriteRanking() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "AAPL", "+0.0120", "Skipped 1:", "BAD 2025-01-17: boom")
}
