// Package pricing evaluates European options with the Black-Scholes closed form.
package pricing

import (
	"fmt"
	"math"

	"github.com/rewired-gh/optionlab/internal/models"
	"gonum.org/v1/gonum/stat/distuv"
)

var unitNormal = distuv.UnitNormal

// D1D2 returns the standardized moneyness terms of the closed form.
// Callers must pass parameters that already passed Validate.
func D1D2(p models.ContractParameters) (d1, d2 float64) {
	volSqrtT := p.Volatility * math.Sqrt(p.TimeToMaturity)
	d1 = (math.Log(p.SpotPrice/p.Strike) + (p.RiskFreeRate+0.5*p.Volatility*p.Volatility)*p.TimeToMaturity) / volSqrtT
	d2 = d1 - volSqrtT
	return d1, d2
}

// Price computes call and put prices with delta and gamma.
// Invalid parameters fail before any evaluation.
func Price(p models.ContractParameters) (models.PricingResult, error) {
	if err := p.Validate(); err != nil {
		return models.PricingResult{}, fmt.Errorf("price option: %w", err)
	}

	d1, d2 := D1D2(p)
	discountedStrike := p.Strike * math.Exp(-p.RiskFreeRate*p.TimeToMaturity)

	callDelta := unitNormal.CDF(d1)
	gamma := unitNormal.Prob(d1) / (p.Strike * p.Volatility * math.Sqrt(p.TimeToMaturity))

	return models.PricingResult{
		CallPrice: p.SpotPrice*callDelta - discountedStrike*unitNormal.CDF(d2),
		PutPrice:  discountedStrike*unitNormal.CDF(-d2) - p.SpotPrice*unitNormal.CDF(-d1),
		CallDelta: callDelta,
		PutDelta:  1 - callDelta,
		CallGamma: gamma,
		PutGamma:  gamma,
	}, nil
}
