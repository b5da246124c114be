package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ridopark/decisioncore/internal/bridge"
	"github.com/ridopark/decisioncore/internal/config"
	"github.com/ridopark/decisioncore/internal/live"
	"github.com/ridopark/decisioncore/internal/market"
	"github.com/ridopark/decisioncore/internal/obs"
	"github.com/ridopark/decisioncore/internal/playbook"
	"github.com/ridopark/decisioncore/internal/risk"
)

var (
	liveConfigPath   string
	livePlaybookPath string
	liveSymbol       string
	livePollInterval time.Duration
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run a playbook live against a broker bridge",
	RunE:  runLive,
}

func init() {
	liveCmd.Flags().StringVar(&liveConfigPath, "config", "", "path to decisioncore config YAML")
	liveCmd.Flags().StringVar(&livePlaybookPath, "playbook", "", "path to playbook YAML (required)")
	liveCmd.Flags().StringVar(&liveSymbol, "symbol", "", "instrument symbol (defaults to the playbook's own symbol)")
	liveCmd.Flags().DurationVar(&livePollInterval, "poll-interval", 500*time.Millisecond, "tick poll interval")
	liveCmd.MarkFlagRequired("playbook")
}

// bridgeExecutor adapts a bridge.Client into live.OrderExecutor,
// gating every open through the risk manager and tracking the broker
// ticket of the currently open position so a close can be routed back
// to the right order.
type bridgeExecutor struct {
	client   *bridge.Client
	riskMgr  *risk.Manager
	pb       *playbook.Playbook
	autonomy risk.Autonomy
	ticket   int
}

func (e *bridgeExecutor) OpenPosition(ctx context.Context, symbol string, intent playbook.TradeIntent) (float64, error) {
	acct, err := e.client.GetAccount(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch account for risk check: %w", err)
	}
	riskAccount := risk.Account{Balance: acct.Balance, Equity: acct.Equity}

	var openExposure []risk.OpenExposure
	if e.ticket != 0 {
		openExposure = append(openExposure, risk.OpenExposure{Lot: intent.Lot})
	}

	decision := e.riskMgr.CheckOpenTrade(e.pb.Name, e.autonomy, e.pb, intent, openExposure, &riskAccount, time.Now())
	if !decision.Approved {
		obs.RecordRiskBlock(e.pb.Name, string(decision.Action))
		return 0, fmt.Errorf("risk gate rejected open_trade: %s (%s)", decision.Reason, decision.Action)
	}

	res, err := e.client.OpenOrder(ctx, symbol, intent.Side, intent.Lot, intent.SL, intent.TP)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("open order rejected: %s", res.Error)
	}
	e.ticket = res.Ticket
	e.riskMgr.RecordTrade(e.pb.Name)
	return res.Price, nil
}

func (e *bridgeExecutor) ClosePosition(ctx context.Context, symbol string, reason string) (float64, float64, error) {
	res, err := e.client.CloseOrder(ctx, e.ticket)
	if err != nil {
		return 0, 0, err
	}
	if !res.Success {
		return 0, 0, fmt.Errorf("close order rejected: %s", res.Error)
	}
	e.ticket = 0
	return res.Price, 0, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	log := obs.GetLogger("live")

	cfg, err := config.Load(liveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pb, err := playbook.Load(livePlaybookPath)
	if err != nil {
		return fmt.Errorf("load playbook: %w", err)
	}

	symbol := liveSymbol
	if symbol == "" {
		symbol = pb.Symbol
	}

	client := bridge.New(cfg.Bridge.BaseURL, log,
		bridge.WithTimeout(time.Duration(cfg.Bridge.TimeoutMS)*time.Millisecond),
		bridge.WithRateLimit(cfg.Bridge.RateLimitRPS),
	)

	riskMgr := risk.NewManager(log)
	riskMgr.MaxTotalLots = cfg.Risk.MaxLot
	riskMgr.MaxAccountDrawdownPct = cfg.Risk.MaxDrawdownPct

	if len(pb.EvaluateOn) == 0 {
		return fmt.Errorf("playbook %q has no evaluate_on timeframes", pb.Name)
	}

	mgr := live.NewManager(client, 500, log)
	timeframes := collectTimeframes(pb)
	mgr.Subscribe(symbol, timeframes...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Initialize(ctx, symbol, timeframes, 500); err != nil {
		return fmt.Errorf("initialize live manager: %w", err)
	}

	eng := playbook.NewEngine(log)
	inst := playbook.NewInstance(pb, symbol)
	exec := &bridgeExecutor{client: client, riskMgr: riskMgr, pb: pb, autonomy: risk.FullAuto}

	indicators := make([]live.IndicatorSpec, 0, len(pb.Indicators))
	for id, spec := range pb.Indicators {
		indicators = append(indicators, live.IndicatorSpec{ID: id, Name: spec.Name, Params: spec.Params})
	}

	live.NewRunner(mgr, eng, exec, inst, indicators, log)

	go serveMetrics(cfg.Obs.MetricsAddr, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(livePollInterval)
	defer ticker.Stop()

	log.Info().Str("symbol", symbol).Str("playbook", pb.Name).Msg("live engine started")

	for {
		select {
		case <-sigCh:
			log.Info().Msg("shutdown requested")
			return nil
		case <-ticker.C:
			tick, err := client.GetTick(ctx, symbol)
			if err != nil {
				log.Warn().Err(err).Msg("tick poll failed")
				continue
			}
			if err := mgr.OnTick(ctx, tick); err != nil {
				log.Warn().Err(err).Msg("bar-close processing failed")
			}
			if acct, err := client.GetAccount(ctx); err == nil {
				obs.SetEquity(pb.Name, acct.Equity)
			}
		}
	}
}

func collectTimeframes(pb *playbook.Playbook) []market.Timeframe {
	seen := make(map[market.Timeframe]bool)
	var out []market.Timeframe
	for _, tf := range pb.EvaluateOn {
		if seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	for _, spec := range pb.Indicators {
		if spec.Timeframe == "" || seen[spec.Timeframe] {
			continue
		}
		seen[spec.Timeframe] = true
		out = append(out, spec.Timeframe)
	}
	return out
}

func serveMetrics(addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
