package main

import (
	"context"
	"flag"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/northstaff/hragent/internal/alerts"
	"github.com/northstaff/hragent/internal/app/bootstrap"
	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/reminders"
	"github.com/northstaff/hragent/internal/telegram"
)

func main() {
	recruitersFlag := flag.String("recruiters", "", "comma-separated recruiter ids this instance serves (empty = all)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Init(ctx)
	if err != nil {
		bootstrap.Fatal("reminders startup failed", err)
	}
	defer rt.Close()
	logger := rt.Logger.Named("reminders")

	bot := telegram.New(rt.Cfg.TelegramBotToken, rt.Logger)
	alertSvc := alerts.New(rt.Store, bot, rt.Logger)
	board := hh.NewClient(rt.Cfg, rt.Store, alertSvc, rt.Logger)

	dojim, err := reminders.NewDojim(rt.Cfg, rt.Store, board, rt.Metrics, rt.Logger, config.RecruiterIDs(*recruitersFlag))
	if err != nil {
		bootstrap.Fatal("dojim setup failed", err)
	}
	sender, err := reminders.NewSender(rt.Cfg, rt.Store, board, rt.Metrics, rt.Logger)
	if err != nil {
		bootstrap.Fatal("reminder sender setup failed", err)
	}

	opsSrv := rt.StartOps()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.Go(func() error { return dojim.Run(ctx) })
		g.Go(func() error { return sender.Run(ctx) })
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			logger.Error("reminders stopped", "error", err)
			os.Exit(1)
		}
	}()

	bootstrap.WaitForShutdown(cancel, opsSrv, logger)
	<-done
	logger.Info("reminders stopped")
}
