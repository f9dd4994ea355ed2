package models

// AllocationRecommendation is the position size suggested for one account.
// VolatilityTierCap and KellyAllocation are dollar amounts rounded to cents,
// so KellyAllocation is min(KellyFraction*balance, VolatilityTierCap) to the cent
// and never exceeds VolatilityTierCap.
type AllocationRecommendation struct {
	MarketVolatilityIndex float64 `json:"market_volatility_index"`
	TierPercentage        float64 `json:"tier_percentage"`
	VolatilityTierCap     float64 `json:"volatility_tier_cap"`
	KellyFraction         float64 `json:"kelly_fraction"`
	KellyAllocation       float64 `json:"kelly_allocation"`
	OptionPrice           float64 `json:"option_price"`
	RecommendedContracts  int     `json:"recommended_contracts"`
}
