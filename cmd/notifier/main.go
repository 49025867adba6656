package main

import (
	"context"
	"os"

	"github.com/northstaff/hragent/internal/alerts"
	"github.com/northstaff/hragent/internal/app/bootstrap"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/notifier"
	"github.com/northstaff/hragent/internal/telegram"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Init(ctx)
	if err != nil {
		bootstrap.Fatal("notifier startup failed", err)
	}
	defer rt.Close()
	logger := rt.Logger.Named("notifier")

	bot := telegram.New(rt.Cfg.TelegramBotToken, rt.Logger)
	alertSvc := alerts.New(rt.Store, bot, rt.Logger)
	board := hh.NewClient(rt.Cfg, rt.Store, alertSvc, rt.Logger)

	n, err := notifier.New(rt.Cfg, rt.Store, bot, board, rt.Metrics, rt.Logger)
	if err != nil {
		bootstrap.Fatal("notifier setup failed", err)
	}

	opsSrv := rt.StartOps()

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := n.Run(ctx, rt.Cfg.WatchdogInterval, rt.Cfg.WatchdogStuckAfter)
		if err != nil && ctx.Err() == nil {
			logger.Error("notifier stopped", "error", err)
			os.Exit(1)
		}
	}()

	bootstrap.WaitForShutdown(cancel, opsSrv, logger)
	<-done
	logger.Info("notifier stopped")
}
