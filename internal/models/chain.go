package models

import (
	"fmt"
	"math"
	"sort"
)

// OptionChainRow is one strike of one side of an options chain.
type OptionChainRow struct {
	Strike            float64 `json:"strike"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"open_interest"`
}

// Weight is the row's contribution to a volume/open-interest weighted average.
func (r OptionChainRow) Weight() float64 {
	return float64(r.OpenInterest + r.Volume)
}

// Validate checks row field constraints.
func (r OptionChainRow) Validate() error {
	if math.IsNaN(r.ImpliedVolatility) || math.IsInf(r.ImpliedVolatility, 0) {
		return InvalidParameter("implied_volatility", "must be finite at strike %v", r.Strike)
	}
	if r.Volume < 0 {
		return InvalidParameter("volume", "must not be negative at strike %v", r.Strike)
	}
	if r.OpenInterest < 0 {
		return InvalidParameter("open_interest", "must not be negative at strike %v", r.Strike)
	}
	return nil
}

// Chain holds the calls and puts of one (ticker, expiration).
type Chain struct {
	Calls []OptionChainRow `json:"calls"`
	Puts  []OptionChainRow `json:"puts"`
}

// SortByStrike orders both sides by ascending strike.
func (c *Chain) SortByStrike() {
	sort.SliceStable(c.Calls, func(i, j int) bool { return c.Calls[i].Strike < c.Calls[j].Strike })
	sort.SliceStable(c.Puts, func(i, j int) bool { return c.Puts[i].Strike < c.Puts[j].Strike })
}

// ChainEntry is a chain tagged with its ticker and expiration.
type ChainEntry struct {
	Ticker     string `json:"ticker"`
	Expiration string `json:"expiration"`
	Chain      Chain  `json:"chain"`
}

// CPIVResult is the call-put implied volatility spread of one chain.
type CPIVResult struct {
	Ticker     string  `json:"ticker"`
	Expiration string  `json:"expiration"`
	CPIV       float64 `json:"cpiv"`
}

// CPIVFailure records why an entry was left out of a ranking.
type CPIVFailure struct {
	Ticker     string `json:"ticker"`
	Expiration string `json:"expiration"`
	Err        error  `json:"-"`
}

func (f CPIVFailure) Error() string {
	if f.Expiration == "" {
		return fmt.Sprintf("%s: %v", f.Ticker, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Ticker, f.Expiration, f.Err)
}

func (f CPIVFailure) Unwrap() error {
	return f.Err
}
