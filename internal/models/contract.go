// Package models defines the value types shared by the pricing, grid, allocation and skew packages.
package models

import "math"

// DaysPerYear converts calendar days to year fractions.
const DaysPerYear = 365.0

// ContractParameters holds the five Black-Scholes inputs for one European option.
// TimeToMaturity is in years.
type ContractParameters struct {
	TimeToMaturity float64 `json:"time_to_maturity"`
	Strike         float64 `json:"strike"`
	SpotPrice      float64 `json:"spot_price"`
	Volatility     float64 `json:"volatility"`
	RiskFreeRate   float64 `json:"risk_free_rate"`
}

// NewContractParametersFromDays builds parameters from a maturity given in calendar days.
func NewContractParametersFromDays(days, strike, spot, volatility, rate float64) ContractParameters {
	return ContractParameters{
		TimeToMaturity: days / DaysPerYear,
		Strike:         strike,
		SpotPrice:      spot,
		Volatility:     volatility,
		RiskFreeRate:   rate,
	}
}

// WithSpotAndVol returns a copy with the spot price and volatility replaced.
func (p ContractParameters) WithSpotAndVol(spot, volatility float64) ContractParameters {
	p.SpotPrice = spot
	p.Volatility = volatility
	return p
}

// Validate checks that every input lies in the domain of the closed-form formulas.
func (p ContractParameters) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"time_to_maturity", p.TimeToMaturity},
		{"strike", p.Strike},
		{"spot_price", p.SpotPrice},
		{"volatility", p.Volatility},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return InvalidParameter(c.field, "must be finite, got %v", c.value)
		}
		if c.value <= 0 {
			return InvalidParameter(c.field, "must be positive, got %v", c.value)
		}
	}
	if math.IsNaN(p.RiskFreeRate) || math.IsInf(p.RiskFreeRate, 0) {
		return InvalidParameter("risk_free_rate", "must be finite, got %v", p.RiskFreeRate)
	}
	return nil
}

// PricingResult holds call/put prices and their delta and gamma.
// PutDelta is the magnitude 1 - CallDelta, not the signed parity value.
type PricingResult struct {
	CallPrice float64 `json:"call_price"`
	PutPrice  float64 `json:"put_price"`
	CallDelta float64 `json:"call_delta"`
	PutDelta  float64 `json:"put_delta"`
	CallGamma float64 `json:"call_gamma"`
	PutGamma  float64 `json:"put_gamma"`
}

// CheaperLeg returns the lower of the call and put prices.
func (r PricingResult) CheaperLeg() float64 {
	return math.Min(r.CallPrice, r.PutPrice)
}
