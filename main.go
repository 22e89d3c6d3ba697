package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/KNICEX/paper-trader/ioc"
)

func main() {
	// --config=./config/xxx.yaml
	file := pflag.String("config", "./config/config.dev.yaml", "specify config file")
	autoTrade := pflag.Bool("trade", false, "start strategy trading right after launch")
	follow := pflag.Bool("follow", false, "only print events published by running instances via redis")
	pflag.Parse()

	ioc.InitConfig(*file)
	logger := ioc.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *follow {
		if err := ioc.FollowEvents(ctx); err != nil {
			logger.Error("follow events", "error", err)
			os.Exit(1)
		}
		return
	}

	db := ioc.InitDB()
	bian := ioc.InitBinanceCli()
	engine, cleanup := ioc.InitEngine(db, bian)
	defer cleanup()

	if err := engine.Load(ctx); err != nil {
		logger.Error("load engine state", "error", err)
		os.Exit(1)
	}
	if *autoTrade {
		engine.StartTrading(ctx)
	}

	bal := engine.Balance(ctx)
	logger.Info("paper trader started",
		"total_value", bal.TotalValue.StringFixed(2),
		"tracked", engine.TrackedSymbols(),
		"trading", engine.IsTradingRunning())

	runErr := engine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("engine stopped", "error", runErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Close(closeCtx); err != nil {
		logger.Error("close engine", "error", err)
	}

	report, review := engine.PerformanceReport(closeCtx)
	logger.Info("performance",
		"profit", report.Profit.StringFixed(2),
		"profit_percent", report.ProfitPercent,
		"trades", report.TotalTrades,
		"review", review)
}
