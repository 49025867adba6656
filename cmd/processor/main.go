package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/northstaff/hragent/internal/alerts"
	"github.com/northstaff/hragent/internal/app/bootstrap"
	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/llm"
	"github.com/northstaff/hragent/internal/processor"
	"github.com/northstaff/hragent/internal/prompt"
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
		bootstrap.Fatal("processor startup failed", err)
	}
	defer rt.Close()
	logger := rt.Logger.Named("processor")

	bot := telegram.New(rt.Cfg.TelegramBotToken, rt.Logger)
	alertSvc := alerts.New(rt.Store, bot, rt.Logger)
	board := hh.NewClient(rt.Cfg, rt.Store, alertSvc, rt.Logger)

	model, err := llm.New(rt.Cfg, rt.Logger)
	if err != nil {
		bootstrap.Fatal("llm client setup failed", err)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, rt.Cfg, rt.Logger, true)
	prompts := prompt.NewSource(rt.Cfg, redisClient, rt.Logger)

	loc, err := time.LoadLocation(rt.Cfg.TimezoneName)
	if err != nil {
		bootstrap.Fatal("load timezone failed", err)
	}
	scheduler := reminders.NewScheduler(rt.Store, rt.Logger, loc)

	w, err := processor.NewWorker(rt.Cfg, rt.Store, board, model, prompts, scheduler, rt.Metrics, rt.Logger, config.RecruiterIDs(*recruitersFlag))
	if err != nil {
		bootstrap.Fatal("processor setup failed", err)
	}

	opsSrv := rt.StartOps()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("processor stopped", "error", err)
			os.Exit(1)
		}
	}()

	bootstrap.WaitForShutdown(cancel, opsSrv, logger)
	<-done
	logger.Info("processor stopped")
}
