// Package allocation sizes option positions from account balance and market conditions.
package allocation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/optionlab/internal/models"
)

// DefaultContractMultiplier is the number of shares per option contract.
const DefaultContractMultiplier = 100

type tier struct {
	below float64
	pct   decimal.Decimal
}

// tiers are checked in order; an index at or above the last bound gets topTier.
var (
	tiers = []tier{
		{below: 15, pct: decimal.RequireFromString("0.25")},
		{below: 20, pct: decimal.RequireFromString("0.30")},
		{below: 30, pct: decimal.RequireFromString("0.35")},
		{below: 40, pct: decimal.RequireFromString("0.40")},
	}
	topTier = decimal.RequireFromString("0.50")
)

func tierPercentage(index float64) decimal.Decimal {
	for _, t := range tiers {
		if index < t.below {
			return t.pct
		}
	}
	return topTier
}

// TierPercentage returns the share of the balance allowed at the given market volatility index.
func TierPercentage(index float64) float64 {
	return tierPercentage(index).InexactFloat64()
}

// VolatilityTierCap returns the maximum dollar allocation, rounded to cents.
func VolatilityTierCap(balance, index float64) (float64, error) {
	if math.IsNaN(balance) || math.IsInf(balance, 0) || balance <= 0 {
		return 0, models.InvalidParameter("balance", "must be positive, got %v", balance)
	}
	if math.IsNaN(index) || math.IsInf(index, 0) || index < 0 {
		return 0, models.InvalidParameter("market_volatility_index", "must be a non-negative number, got %v", index)
	}

	capped := decimal.NewFromFloat(balance).Mul(tierPercentage(index)).Round(2)
	return capped.InexactFloat64(), nil
}

// KellyFraction returns rate × (days/365) × p/(1-p). No upper bound is applied.
func KellyFraction(rate, daysToExpiry, probabilityOfProfit float64) (float64, error) {
	p := probabilityOfProfit
	if math.IsNaN(p) || p < 0 || p >= 1 {
		return 0, models.InvalidParameter("probability_of_profit", "must be in [0, 1), got %v", p)
	}
	if math.IsNaN(daysToExpiry) || math.IsInf(daysToExpiry, 0) || daysToExpiry < 0 {
		return 0, models.InvalidParameter("days_to_expiry", "must be a non-negative number, got %v", daysToExpiry)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, models.InvalidParameter("rate", "must be finite, got %v", rate)
	}
	return rate * (daysToExpiry / models.DaysPerYear) * (p / (1 - p)), nil
}

// RecommendedContracts returns how many whole contracts the allocation buys.
// A non-positive or non-finite price or allocation, or a non-positive multiplier, yields zero.
func RecommendedContracts(allocation, optionPrice float64, multiplier int) int {
	if multiplier <= 0 || !positiveFinite(allocation) || !positiveFinite(optionPrice) {
		return 0
	}
	perContract := decimal.NewFromFloat(optionPrice).Mul(decimal.NewFromInt(int64(multiplier)))
	return int(decimal.NewFromFloat(allocation).Div(perContract).Floor().IntPart())
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Input gathers everything Recommend needs.
type Input struct {
	Balance               float64
	MarketVolatilityIndex float64
	RiskFreeRate          float64
	DaysToExpiry          float64
	ProbabilityOfProfit   float64
	OptionPrice           float64
	ContractMultiplier    int
}

// Recommend combines the tier cap, the Kelly fraction and the contract count.
// The Kelly allocation is capped by the tier cap.
func Recommend(in Input) (models.AllocationRecommendation, error) {
	tierCap, err := VolatilityTierCap(in.Balance, in.MarketVolatilityIndex)
	if err != nil {
		return models.AllocationRecommendation{}, fmt.Errorf("recommend allocation: %w", err)
	}
	fraction, err := KellyFraction(in.RiskFreeRate, in.DaysToExpiry, in.ProbabilityOfProfit)
	if err != nil {
		return models.AllocationRecommendation{}, fmt.Errorf("recommend allocation: %w", err)
	}

	if math.IsInf(fraction, 0) {
		return models.AllocationRecommendation{}, fmt.Errorf("recommend allocation: %w",
			models.InvalidParameter("kelly_fraction", "overflows for rate=%v days=%v p=%v",
				in.RiskFreeRate, in.DaysToExpiry, in.ProbabilityOfProfit))
	}

	kelly := decimal.NewFromFloat(fraction).Mul(decimal.NewFromFloat(in.Balance))
	kellyAllocation := decimal.Min(kelly, decimal.NewFromFloat(tierCap)).Round(2).InexactFloat64()

	multiplier := in.ContractMultiplier
	if multiplier == 0 {
		multiplier = DefaultContractMultiplier
	}

	return models.AllocationRecommendation{
		MarketVolatilityIndex: in.MarketVolatilityIndex,
		TierPercentage:        TierPercentage(in.MarketVolatilityIndex),
		VolatilityTierCap:     tierCap,
		KellyFraction:         fraction,
		KellyAllocation:       kellyAllocation,
		OptionPrice:           in.OptionPrice,
		RecommendedContracts:  RecommendedContracts(kellyAllocation, in.OptionPrice, multiplier),
	}, nil
}
