package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/optionlab/internal/allocation"
	"github.com/rewired-gh/optionlab/internal/config"
	"github.com/rewired-gh/optionlab/internal/grid"
	"github.com/rewired-gh/optionlab/internal/logger"
	"github.com/rewired-gh/optionlab/internal/marketdata"
	"github.com/rewired-gh/optionlab/internal/models"
	"github.com/rewired-gh/optionlab/internal/pricing"
	"github.com/rewired-gh/optionlab/internal/report"
	"github.com/rewired-gh/optionlab/internal/skew"
	"github.com/rewired-gh/optionlab/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	skipPrice  = flag.Bool("skew-only", false, "Skip the pricing report and only run the skew scan")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	mdClient := marketdata.NewClient(
		cfg.MarketData.BaseURL,
		cfg.MarketData.Timeout,
		marketdata.ClientConfig{
			VolatilityIndexSymbol: cfg.MarketData.VolatilityIndexSymbol,
			MaxRetries:            cfg.MarketData.MaxRetries,
			RetryDelayBase:        cfg.MarketData.RetryDelayBase,
			MaxIdleConns:          cfg.MarketData.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.MarketData.MaxIdleConnsPerHost,
			IdleConnTimeout:       cfg.MarketData.IdleConnTimeout,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if !*skipPrice {
		if err := runPricingReport(ctx, mdClient, cfg); err != nil {
			logger.Fatal("Pricing report failed: %v", err)
		}
	}

	if !cfg.Skew.Enabled {
		logger.Debug("Skew scan disabled")
		return
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ranker := skew.NewRanker(cfg.Skew.MaxParallel)

	if cfg.Skew.PollInterval == 0 {
		if err := runSkewScan(ctx, mdClient, ranker, telegramClient, cfg); err != nil {
			logger.Fatal("Skew scan failed: %v", err)
		}
		return
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting skew scanner (interval: %v, tickers: %v, expiration: %q)",
		cfg.Skew.PollInterval, cfg.Skew.Tickers, cfg.Skew.Expiration)

	ticker := time.NewTicker(cfg.Skew.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleScanResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Skew scan failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	handleScanResult(runSkewScan(ctx, mdClient, ranker, telegramClient, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled skew scan")
			handleScanResult(runSkewScan(ctx, mdClient, ranker, telegramClient, cfg))
		}
	}
}

// runPricingReport prices the configured contract, sweeps the grid and sizes the position.
func runPricingReport(ctx context.Context, mdClient *marketdata.Client, cfg *config.Config) error {
	baseline := models.NewContractParametersFromDays(
		cfg.Pricing.DaysToMaturity,
		cfg.Pricing.Strike,
		cfg.Pricing.SpotPrice,
		cfg.Pricing.Volatility,
		cfg.Pricing.RiskFreeRate,
	)

	result, err := pricing.Price(baseline)
	if err != nil {
		return err
	}
	if err := report.WritePricing(os.Stdout, baseline, result); err != nil {
		return err
	}
	fmt.Println()

	spec, err := gridSpec(baseline, cfg.Grid)
	if err != nil {
		return err
	}
	matrix, err := grid.Build(baseline, spec)
	if err != nil {
		return err
	}
	if err := report.WriteMatrix(os.Stdout, matrix); err != nil {
		return err
	}
	fmt.Println()

	index, usedFallback := cfg.Allocation.FallbackVolatilityIndex, true
	if cfg.Allocation.FetchVolatilityIndex {
		index, usedFallback = mdClient.VolatilityIndexOrFallback(ctx, cfg.Allocation.FallbackVolatilityIndex)
	}

	rec, err := allocation.Recommend(allocation.Input{
		Balance:               cfg.Allocation.Balance,
		MarketVolatilityIndex: index,
		RiskFreeRate:          cfg.Pricing.RiskFreeRate,
		DaysToExpiry:          cfg.Pricing.DaysToMaturity,
		ProbabilityOfProfit:   cfg.Allocation.ProbabilityOfProfit,
		OptionPrice:           result.CheaperLeg(),
		ContractMultiplier:    grid.ContractMultiplier,
	})
	if err != nil {
		return err
	}
	logger.Info("Allocation: index=%.2f cap=$%.2f kelly=%.4f contracts=%d",
		rec.MarketVolatilityIndex, rec.VolatilityTierCap, rec.KellyFraction, rec.RecommendedContracts)
	return report.WriteAllocation(os.Stdout, cfg.Allocation.Balance, rec, usedFallback)
}

func gridSpec(baseline models.ContractParameters, gc config.GridConfig) (grid.Spec, error) {
	mode, err := grid.ParseMode(gc.Mode)
	if err != nil {
		return grid.Spec{}, err
	}
	spec := grid.DefaultSpec(baseline, gc.Points, mode, gc.PositionUnits)
	if gc.SpotMin > 0 && gc.SpotMax > 0 {
		spec.SpotAxis = grid.Linspace(gc.SpotMin, gc.SpotMax, gc.Points)
	}
	if gc.VolMin > 0 && gc.VolMax > 0 {
		spec.VolAxis = grid.Linspace(gc.VolMin, gc.VolMax, gc.Points)
	}
	return spec, nil
}

// runSkewScan fetches chains, ranks them by CPIV and publishes the ranking.
func runSkewScan(
	ctx context.Context,
	mdClient *marketdata.Client,
	ranker *skew.Ranker,
	telegramClient *telegram.Client,
	cfg *config.Config,
) error {
	startTime := time.Now()
	runID := uuid.NewString()
	logger.Info("Starting skew scan %s", runID)

	entries, fetchFailures := mdClient.FetchEntries(ctx, cfg.Skew.Tickers, cfg.Skew.Expiration)
	if len(entries) == 0 {
		return fmt.Errorf("no chains fetched for %d tickers (%d failures)", len(cfg.Skew.Tickers), len(fetchFailures))
	}

	results, rankFailures := ranker.Rank(entries)
	failures := append(fetchFailures, rankFailures...)
	logger.Info("Ranked %d chains, %d skipped", len(results), len(failures))

	if err := report.WriteRanking(os.Stdout, results, failures); err != nil {
		return fmt.Errorf("failed to write ranking: %w", err)
	}

	if telegramClient != nil {
		err := telegramClient.SendReport(telegram.Report{
			RunID:     runID,
			ScannedAt: startTime,
			Results:   results,
			Failures:  failures,
			TopK:      cfg.Skew.TopK,
		})
		if err != nil {
			logger.Error("Failed to send Telegram report: %v", err)
		} else {
			logger.Info("Sent Telegram report with top %d chains", min(len(results), cfg.Skew.TopK))
		}
	}

	logger.Info("Skew scan %s completed in %v", runID, time.Since(startTime))
	return nil
}
