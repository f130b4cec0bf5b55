package main

import (
	"WidgetCS/ai/gpt"
	"WidgetCS/bot"
	"WidgetCS/impl/core"
	"WidgetCS/internal/config"
	"WidgetCS/internal/database"
	"WidgetCS/internal/http-server/api"
	"WidgetCS/internal/lib/logger"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/ws"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.BotName, conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", sl.Err(err))
		} else {
			// forward warnings and errors to the admin chat
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelWarn)
			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram bot initialized")
		}
	}

	lg.Info("starting widgetcs", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	handler := core.New(lg)
	handler.SetGuidedSettings(core.GuidedSettings{
		BotResponseDelay:         time.Duration(conf.Guided.BotResponseDelay) * time.Millisecond,
		KeepStaleResponses:       !conf.Guided.DropStaleResponses,
		ReleaseUnansweredOptions: conf.Guided.ReleaseUnansweredOptions,
		Greeting:                 conf.Guided.Greeting,
		SessionTTL:               time.Duration(conf.Guided.SessionTTLMinutes) * time.Minute,
	})
	handler.SetHumanChatSettings(conf.HumanChat.HistoryLimit, time.Duration(conf.HumanChat.RetentionDays)*24*time.Hour)

	db, err := repository.NewMongoClient(conf, lg)
	if err != nil {
		lg.With(
			sl.Err(err),
		).Error("mongo client")
	}
	if db != nil {
		if err = db.EnsureIndexes(); err != nil {
			lg.Error("mongo indexes", sl.Err(err))
		}
		handler.SetRepository(db)
		lg.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("user", conf.Mongo.User),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo client initialized")
	} else {
		handler.SetRepository(repository.NewMemory())
		lg.Warn("mongo disabled, using in-memory storage")
	}

	overseer := gpt.NewOverseer(conf, lg)
	if overseer != nil {
		handler.SetAssistant(overseer)
		lg.With(
			sl.Secret("openai_key", conf.OpenAI.ApiKey),
			slog.String("model", conf.OpenAI.Model),
		).Info("overseer initialized")
	}

	hub := ws.NewHub(lg)
	hub.SetHandler(handler)
	handler.SetRealtime(hub)
	go hub.Run(ctx)

	if tgBot != nil {
		tgBot.SetWaitingLister(handler)
		handler.SetNotifier(tgBot)
		go func() {
			if err := tgBot.Start(); err != nil {
				lg.Error("telegram bot error", sl.Err(err))
			}
		}()
		defer tgBot.Stop()
	}

	if err = handler.Init(); err != nil {
		lg.Error("core init", sl.Err(err))
		return
	}

	jobs, err := handler.StartJobs(conf.Cleanup.Schedule)
	if err != nil {
		lg.Error("cleanup jobs", sl.Err(err))
		return
	}
	defer jobs.Stop()

	// *** blocking start with http server ***
	err = api.New(ctx, conf, lg, handler, hub)
	if err != nil {
		lg.Error("server start", sl.Err(err))
		return
	}
	lg.Info("service stopped")
}
