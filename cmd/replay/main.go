// Command replay runs stored bars through the engine against the paper venue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"SessionBreak/internal/di"
	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/services/features"
	"SessionBreak/internal/services/venue"
	"SessionBreak/internal/usecase"
	"SessionBreak/pkg/config"
	"SessionBreak/pkg/logger"
	"SessionBreak/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	from := flag.String("from", "", "first bar time, RFC3339 or unix seconds")
	to := flag.String("to", "", "last bar time, RFC3339 or unix seconds (default now)")
	spread := flag.Float64("spread", 0, "ask minus bid, in price units")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if !cfg.ClickHouse.Enabled {
		log.Fatalf("replay reads bars from ClickHouse; set clickhouse.enabled")
	}
	start, ok := util.ParseTime(*from)
	if !ok {
		log.Fatalf("-from is required")
	}
	end := util.ParseTimeDefault(*to, time.Now().UTC())

	if err := run(cfg, start, end, *spread); err != nil {
		log.Printf("replay failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, from, to time.Time, spread float64) error {
	ctx := context.Background()
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	ch, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		return err
	}
	defer ch.Close()
	store := di.ProvideBarStore(cfg, ch, l)
	tf := domrepo.NormalizeTimeframe(cfg.Strategy.Timeframe)

	series := features.NewBarSeries(cfg.Strategy.SeriesCapacity)
	paper := venue.NewPaperVenue(cfg.Instrument.PipSize, l)
	engine, err := usecase.NewStrategyEngine(di.EngineConfig(cfg), series, paper, usecase.WithEngineLogger(l))
	if err != nil {
		return err
	}
	runner := usecase.NewEngineRunner(engine, series, tf,
		usecase.WithQuoteListener(paper),
		usecase.WithRunnerLogger(l),
	)

	if n := cfg.Strategy.WarmupBars; n > 0 {
		warm, err := store.GetBars(ctx, cfg.Strategy.Symbol, from.Add(-time.Duration(n)*tf.Duration()), from.Add(-time.Second), tf)
		if err != nil {
			return fmt.Errorf("warmup bars: %w", err)
		}
		for _, b := range warm {
			if series.Append(b) == nil {
				engine.OnBar(b)
			}
		}
	}

	bars, err := store.GetBars(ctx, cfg.Strategy.Symbol, from, to, tf)
	if err != nil {
		return fmt.Errorf("replay bars: %w", err)
	}

	counts := map[models.DecisionKind]int{}
	for _, b := range bars {
		for _, q := range barQuotes(b, tf, spread) {
			res, _ := runner.HandleQuote(ctx, q)
			if res == nil {
				continue
			}
			for _, d := range res.Decisions {
				counts[d.Kind]++
			}
		}
	}
	runner.Flush()

	closed := paper.ClosedPositions()
	var pips float64
	wins := 0
	for _, p := range closed {
		pips += p.Pips
		if p.Pips > 0 {
			wins++
		}
	}
	open, _ := paper.Positions(ctx)
	l.Info("replay finished",
		logger.Int("bars", len(bars)),
		logger.Int("ranges", counts[models.DecisionRangeConfirmed]),
		logger.Int("entries", counts[models.DecisionEntry]),
		logger.Int("break_even", counts[models.DecisionBreakEven]),
		logger.Int("sizing_rejected", counts[models.DecisionSizingRejected]),
		logger.Int("closed", len(closed)),
		logger.Int("wins", wins),
		logger.Int("still_open", len(open)),
		logger.Float64("pips", pips),
	)
	return nil
}

// barQuotes replays a bar as open, the extreme reached first, the other extreme
// and close. A bullish bar is assumed to visit its low first.
func barQuotes(b models.Bar, tf domrepo.Timeframe, spread float64) []models.Quote {
	step := tf.Duration() / 4
	first, second := b.High, b.Low
	if b.Close >= b.Open {
		first, second = b.Low, b.High
	}
	prices := []float64{b.Open, first, second, b.Close}
	out := make([]models.Quote, len(prices))
	for i, p := range prices {
		out[i] = models.Quote{
			Symbol: b.Symbol,
			Bid:    p,
			Ask:    p + spread,
			Time:   b.Time.Add(time.Duration(i) * step),
		}
	}
	return out
}
