package main

import (
	"context"
	"flag"
	"os"

	"github.com/northstaff/hragent/internal/alerts"
	"github.com/northstaff/hragent/internal/app/bootstrap"
	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/poller"
	"github.com/northstaff/hragent/internal/telegram"
)

func main() {
	recruitersFlag := flag.String("recruiters", "", "comma-separated recruiter ids this instance serves (empty = all)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Init(ctx)
	if err != nil {
		bootstrap.Fatal("poller startup failed", err)
	}
	defer rt.Close()
	logger := rt.Logger.Named("poller")

	bot := telegram.New(rt.Cfg.TelegramBotToken, rt.Logger)
	alertSvc := alerts.New(rt.Store, bot, rt.Logger)
	board := hh.NewClient(rt.Cfg, rt.Store, alertSvc, rt.Logger)

	p, err := poller.New(rt.Cfg, rt.Store, board, alertSvc, rt.Metrics, rt.Logger, config.RecruiterIDs(*recruitersFlag))
	if err != nil {
		bootstrap.Fatal("poller setup failed", err)
	}

	opsSrv := rt.StartOps()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("poller stopped", "error", err)
			os.Exit(1)
		}
	}()

	bootstrap.WaitForShutdown(cancel, opsSrv, logger)
	<-done
	logger.Info("poller stopped")
}
