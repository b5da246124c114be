package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridopark/decisioncore/internal/backtest"
	"github.com/ridopark/decisioncore/internal/barcache"
	"github.com/ridopark/decisioncore/internal/config"
	"github.com/ridopark/decisioncore/internal/data"
	"github.com/ridopark/decisioncore/internal/feed"
	"github.com/ridopark/decisioncore/internal/market"
	"github.com/ridopark/decisioncore/internal/obs"
	"github.com/ridopark/decisioncore/internal/playbook"
)

var (
	btConfigPath   string
	btPlaybookPath string
	btBarsCSVPath  string
	btHSTPath      string
	btSymbol       string
	btTimeframe    string
	btBalance      float64
	btSpreadPips   float64
	btSlippagePips float64
	btCommission   float64
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a playbook over historical bars (CSV or HST file)",
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&btConfigPath, "config", "", "path to decisioncore config YAML (optional; selects the bar-cache path and archive DSN)")
	backtestCmd.Flags().StringVar(&btPlaybookPath, "playbook", "", "path to playbook YAML (required)")
	backtestCmd.Flags().StringVar(&btBarsCSVPath, "bars", "", "path to a historical bar CSV")
	backtestCmd.Flags().StringVar(&btHSTPath, "hst", "", "path to a historical bar HST file (mutually exclusive with --bars)")
	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "EURUSD", "instrument symbol")
	backtestCmd.Flags().StringVar(&btTimeframe, "timeframe", "M1", "primary timeframe (M1,M5,M15,M30,H1,H4,D1,W1)")
	backtestCmd.Flags().Float64Var(&btBalance, "balance", 10000, "starting account balance")
	backtestCmd.Flags().Float64Var(&btSpreadPips, "spread-pips", 1.0, "fixed spread in pips")
	backtestCmd.Flags().Float64Var(&btSlippagePips, "slippage-pips", 0.0, "fixed slippage in pips")
	backtestCmd.Flags().Float64Var(&btCommission, "commission-per-lot", 0.0, "commission charged per lot traded")
	backtestCmd.MarkFlagRequired("playbook")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log := obs.GetLogger("backtest")

	cfg, err := config.Load(btConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pb, err := playbook.Load(btPlaybookPath)
	if err != nil {
		return fmt.Errorf("load playbook: %w", err)
	}

	tf := market.Timeframe(btTimeframe)
	bars, err := loadHistoricalBars(tf)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no bars loaded")
	}

	cache, err := barcache.Open(cfg.Storage.BarCachePath)
	if err != nil {
		return fmt.Errorf("open bar cache: %w", err)
	}
	defer cache.Close()

	if cfg.Storage.ArchiveDSN != "" {
		archive, err := data.NewTimescaleDBArchive(cfg.Storage.ArchiveDSN, log)
		if err != nil {
			return fmt.Errorf("connect bar archive: %w", err)
		}
		defer archive.Close()
		cache.SetArchive(archive)
	}

	ctx := context.Background()
	if err := cache.SaveBars(ctx, bars); err != nil {
		return fmt.Errorf("populate bar cache: %w", err)
	}
	bars, err = cache.LoadBarsBetween(ctx, btSymbol, tf, bars[0].OpenTime, bars[len(bars)-1].OpenTime)
	if err != nil {
		return fmt.Errorf("load bars from cache: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("bar cache returned no bars for %s/%s", btSymbol, tf)
	}

	btCfg := backtest.Config{
		Symbol:           btSymbol,
		StartingBalance:  btBalance,
		SpreadPips:       btSpreadPips,
		SlippagePips:     btSlippagePips,
		CommissionPerLot: btCommission,
	}

	result, err := backtest.Run(pb, tf, map[market.Timeframe][]market.Bar{tf: bars}, btCfg, log)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	fmt.Println(result.Summary())
	return nil
}

// loadHistoricalBars reads --bars (CSV) or --hst (binary history-center
// format), whichever was given; exactly one is required.
func loadHistoricalBars(tf market.Timeframe) ([]market.Bar, error) {
	switch {
	case btBarsCSVPath != "" && btHSTPath != "":
		return nil, fmt.Errorf("only one of --bars or --hst may be given")
	case btBarsCSVPath != "":
		bars, err := feed.ReadBarCSV(btBarsCSVPath, btSymbol, tf)
		if err != nil {
			return nil, fmt.Errorf("read bars: %w", err)
		}
		return bars, nil
	case btHSTPath != "":
		bars, err := feed.ReadHSTFile(btHSTPath, btSymbol, tf)
		if err != nil {
			return nil, fmt.Errorf("read hst bars: %w", err)
		}
		return bars, nil
	default:
		return nil, fmt.Errorf("one of --bars or --hst is required")
	}
}
