// Package report renders pricing, grid, allocation and ranking results as plain-text tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rewired-gh/optionlab/internal/grid"
	"github.com/rewired-gh/optionlab/internal/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// WritePricing writes the inputs and the call/put values with their greeks.
func WritePricing(w io.Writer, p models.ContractParameters, r models.PricingResult) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Spot\tStrike\tDays\tVolatility\tRate\t\n")
	fmt.Fprintf(tw, "%.2f\t%.2f\t%.0f\t%.4f\t%.4f\t\n",
		p.SpotPrice, p.Strike, p.TimeToMaturity*models.DaysPerYear, p.Volatility, p.RiskFreeRate)
	fmt.Fprintf(tw, "\t\t\t\t\t\n")
	fmt.Fprintf(tw, "\tValue\tDelta\tGamma\t\t\n")
	fmt.Fprintf(tw, "CALL\t%.4f\t%.4f\t%.6f\t\t\n", r.CallPrice, r.CallDelta, r.CallGamma)
	fmt.Fprintf(tw, "PUT\t%.4f\t%.4f\t%.6f\t\t\n", r.PutPrice, r.PutDelta, r.PutGamma)
	return tw.Flush()
}

// WriteMatrix writes the call and put grids with volatility rows and spot columns.
func WriteMatrix(w io.Writer, m *grid.Matrix) error {
	title := "Price"
	cellFmt := "%.4f\t"
	if m.Mode == grid.PositionPnL {
		title = "P&L"
		cellFmt = "%.2f\t"
	}

	sides := []struct {
		name  string
		cells [][]float64
	}{
		{"CALL", m.Call},
		{"PUT", m.Put},
	}
	for k, side := range sides {
		if k > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s Analysis (rows: volatility, columns: spot)\n", side.name, title)

		tw := newTable(w)
		fmt.Fprint(tw, "\t")
		for _, spot := range m.SpotAxis {
			fmt.Fprintf(tw, "%.2f\t", spot)
		}
		fmt.Fprintln(tw)
		for i, vol := range m.VolAxis {
			fmt.Fprintf(tw, "%.3f\t", vol)
			for j := range m.SpotAxis {
				fmt.Fprintf(tw, cellFmt, side.cells[i][j])
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteAllocation writes the position sizing summary.
func WriteAllocation(w io.Writer, balance float64, r models.AllocationRecommendation, usedFallback bool) error {
	source := "live"
	if usedFallback {
		source = "fallback"
	}
	pct := func(v float64) float64 { return v / balance * 100 }

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Volatility index\t%.2f (%s)\n", r.MarketVolatilityIndex, source)
	fmt.Fprintf(tw, "Max premium allocation\t$%.2f (%.1f%% of account)\n", r.VolatilityTierCap, pct(r.VolatilityTierCap))
	fmt.Fprintf(tw, "Kelly fraction\t%.4f\n", r.KellyFraction)
	fmt.Fprintf(tw, "Kelly allocation\t$%.2f (%.1f%% of account)\n", r.KellyAllocation, pct(r.KellyAllocation))
	fmt.Fprintf(tw, "Recommended contracts\t%d @ $%.4f\n", r.RecommendedContracts, r.OptionPrice)
	return tw.Flush()
}

// WriteRanking writes ranked CPIV results followed by the skipped entries.
func WriteRanking(w io.Writer, results []models.CPIVResult, failures []models.CPIVFailure) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tTicker\tExpiration\tCPIV\n")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%+.4f\n", i+1, r.Ticker, r.Expiration, r.CPIV)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Skipped %d:\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(&b, "  %s\n", f.Error())
	}
	_, err := io.WriteString(w, b.String())
	return err
}
