// Package skew measures the call-put implied volatility spread of options chains.
package skew

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/optionlab/internal/logger"
	"github.com/rewired-gh/optionlab/internal/models"
)

// DefaultMaxParallel bounds concurrent entry evaluations in RankCPIV.
const DefaultMaxParallel = 8

// WeightedIV averages implied volatility weighted by open interest plus volume.
func WeightedIV(rows []models.OptionChainRow) (float64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("no rows: %w", models.ErrEmptyOrZeroWeight)
	}

	var weighted, total float64
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return 0, err
		}
		w := r.Weight()
		weighted += r.ImpliedVolatility * w
		total += w
	}
	if total == 0 {
		return 0, fmt.Errorf("%d rows with zero open interest and volume: %w", len(rows), models.ErrEmptyOrZeroWeight)
	}
	return weighted / total, nil
}

// CPIV returns WeightedIV(calls) - WeightedIV(puts).
func CPIV(chain models.Chain) (float64, error) {
	callIV, err := WeightedIV(chain.Calls)
	if err != nil {
		return 0, fmt.Errorf("calls: %w", err)
	}
	putIV, err := WeightedIV(chain.Puts)
	if err != nil {
		return 0, fmt.Errorf("puts: %w", err)
	}
	return callIV - putIV, nil
}

// Ranker ranks chain entries by CPIV.
type Ranker struct {
	maxParallel int
}

// NewRanker creates a Ranker evaluating at most maxParallel entries at once.
func NewRanker(maxParallel int) *Ranker {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Ranker{maxParallel: maxParallel}
}

type outcome struct {
	result models.CPIVResult
	err    error
}

// Rank computes CPIV per entry and returns the successes sorted by descending CPIV,
// ties kept in input order. Failing entries are logged and returned separately.
func (r *Ranker) Rank(entries []models.ChainEntry) ([]models.CPIVResult, []models.CPIVFailure) {
	outcomes := make([]outcome, len(entries))

	var g errgroup.Group
	g.SetLimit(r.maxParallel)
	for i, e := range entries {
		g.Go(func() error {
			cpiv, err := CPIV(e.Chain)
			outcomes[i] = outcome{
				result: models.CPIVResult{Ticker: e.Ticker, Expiration: e.Expiration, CPIV: cpiv},
				err:    err,
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]models.CPIVResult, 0, len(entries))
	var failures []models.CPIVFailure
	for i, o := range outcomes {
		if o.err != nil {
			f := models.CPIVFailure{Ticker: entries[i].Ticker, Expiration: entries[i].Expiration, Err: o.err}
			logger.Warn("Skipping %s %s: %v", f.Ticker, f.Expiration, f.Err)
			failures = append(failures, f)
			continue
		}
		results = append(results, o.result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CPIV > results[j].CPIV
	})

	logger.Debug("Ranked %d of %d chain entries (%d failed)", len(results), len(entries), len(failures))
	return results, failures
}

// RankCPIV ranks entries with the default parallelism.
func RankCPIV(entries []models.ChainEntry) ([]models.CPIVResult, []models.CPIVFailure) {
	return NewRanker(DefaultMaxParallel).Rank(entries)
}
