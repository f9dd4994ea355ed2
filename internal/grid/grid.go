// Package grid sweeps option prices over a spot × volatility grid.
package grid

import (
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/optionlab/internal/models"
	"github.com/rewired-gh/optionlab/internal/pricing"
)

// ContractMultiplier is the number of shares one option contract controls.
const ContractMultiplier = 100

// DefaultPoints is the number of points per axis when none is configured.
const DefaultPoints = 10

// Mode selects what each grid cell holds.
type Mode int

const (
	// RawPrice stores the option price at each grid point.
	RawPrice Mode = iota
	// PositionPnL stores the position P&L relative to the baseline price.
	PositionPnL
)

func (m Mode) String() string {
	switch m {
	case RawPrice:
		return "price"
	case PositionPnL:
		return "pnl"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "price" or "pnl".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "price", "raw", "raw_price":
		return RawPrice, nil
	case "pnl", "position_pnl":
		return PositionPnL, nil
	default:
		return RawPrice, fmt.Errorf("unknown grid mode %q (want price or pnl)", s)
	}
}

// Spec describes the axes and cell semantics of a sensitivity grid.
// Axes are used in the order given.
type Spec struct {
	SpotAxis      []float64
	VolAxis       []float64
	Mode          Mode
	PositionUnits int
}

// Validate checks axis and unit constraints.
func (s Spec) Validate() error {
	if len(s.SpotAxis) == 0 {
		return models.InvalidParameter("spot_axis", "must contain at least one value")
	}
	if len(s.VolAxis) == 0 {
		return models.InvalidParameter("vol_axis", "must contain at least one value")
	}
	if !hasPositive(s.SpotAxis) {
		return models.InvalidParameter("spot_axis", "must contain a strictly positive value")
	}
	if !hasPositive(s.VolAxis) {
		return models.InvalidParameter("vol_axis", "must contain a strictly positive value")
	}
	if s.Mode == PositionPnL && s.PositionUnits < 1 {
		return models.InvalidParameter("position_units", "must be at least 1, got %d", s.PositionUnits)
	}
	return nil
}

func hasPositive(axis []float64) bool {
	for _, v := range axis {
		if v > 0 {
			return true
		}
	}
	return false
}

// Matrix holds the call and put grids. Call[i][j] is evaluated at VolAxis[i], SpotAxis[j].
type Matrix struct {
	Mode         Mode
	SpotAxis     []float64
	VolAxis      []float64
	Call         [][]float64
	Put          [][]float64
	BaselineCall float64
	BaselinePut  float64
}

// Build prices the baseline once, then every (volatility, spot) pair of the spec.
// Rows are evaluated concurrently; the first failing cell aborts the build.
func Build(baseline models.ContractParameters, spec Spec) (*Matrix, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("build grid: %w", err)
	}

	base, err := pricing.Price(baseline)
	if err != nil {
		return nil, fmt.Errorf("build grid: baseline: %w", err)
	}

	m := &Matrix{
		Mode:         spec.Mode,
		SpotAxis:     append([]float64(nil), spec.SpotAxis...),
		VolAxis:      append([]float64(nil), spec.VolAxis...),
		Call:         make([][]float64, len(spec.VolAxis)),
		Put:          make([][]float64, len(spec.VolAxis)),
		BaselineCall: base.CallPrice,
		BaselinePut:  base.PutPrice,
	}

	scale := float64(spec.PositionUnits * ContractMultiplier)

	var g errgroup.Group
	for i, vol := range m.VolAxis {
		g.Go(func() error {
			callRow := make([]float64, len(m.SpotAxis))
			putRow := make([]float64, len(m.SpotAxis))
			for j, spot := range m.SpotAxis {
				res, err := pricing.Price(baseline.WithSpotAndVol(spot, vol))
				if err != nil {
					return fmt.Errorf("cell (vol=%v, spot=%v): %w", vol, spot, err)
				}
				if spec.Mode == PositionPnL {
					callRow[j] = (res.CallPrice - base.CallPrice) * scale
					putRow[j] = (res.PutPrice - base.PutPrice) * scale
				} else {
					callRow[j] = res.CallPrice
					putRow[j] = res.PutPrice
				}
			}
			m.Call[i] = callRow
			m.Put[i] = putRow
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build grid: %w", err)
	}

	return m, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// DefaultSpec spans spot from 80% to 120% and volatility from 50% to 150% of the baseline.
func DefaultSpec(baseline models.ContractParameters, points int, mode Mode, units int) Spec {
	if points <= 0 {
		points = DefaultPoints
	}
	return Spec{
		SpotAxis:      Linspace(baseline.SpotPrice*0.8, baseline.SpotPrice*1.2, points),
		VolAxis:       Linspace(baseline.Volatility*0.5, baseline.Volatility*1.5, points),
		Mode:          mode,
		PositionUnits: units,
	}
}
