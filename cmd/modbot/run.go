package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modbot/internal/bot"
	"modbot/internal/bus"
	"modbot/internal/config"
	"modbot/internal/domain"
	"modbot/internal/feed"
	"modbot/internal/metrics"
	"modbot/internal/oracle"
	"modbot/internal/platform"
	"modbot/internal/platform/discord"
	"modbot/internal/platform/slack"
	"modbot/internal/platform/telegram"
	"modbot/internal/platform/twitch"
	"modbot/internal/server"
	"modbot/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

// adapter is a platform connection that feeds a queue until ctx is done.
type adapter interface {
	platform.Platform
	Start(ctx context.Context, q *bus.Queue) error
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the moderation bot",
		Long:  "Connects every enabled platform and the admin server. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(os.Stderr, cfg.General)

	platforms := cfg.EnabledPlatforms()
	if len(platforms) == 0 {
		return errors.New("no platform enabled, see platforms.* in " + cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Version:     version,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	collector := metrics.New()
	moderator, err := newOracle(cfg.Oracle, collector)
	if err != nil {
		return err
	}

	status := server.NewStatus()
	events := feed.New(logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range platforms {
		conn := newAdapter(cfg, name)
		mod := cfg.ModerationFor(name)
		b, err := bot.New(bot.Config{
			Platform:          conn,
			Oracle:            moderator,
			Bus:               bus.New(logger),
			Queue:             bus.NewQueue(cfg.General.QueueSize, logger),
			Languages:         mod.Languages,
			MaxTextCategories: mod.MaxTextCategories,
			MuteRoleID:        mod.MuteRole,
			LogsChannel:       mod.LogsChannel,
			ModerationChannel: mod.ModerationChannel,
			ReportsPerMinute:  mod.ReportsPerMinute,
			Logger:            logger,
			Metrics:           collector,
		})
		if err != nil {
			return err
		}
		status.Track(name, b.Bus())
		events.Attach(name, b.Bus())

		g.Go(func() error {
			defer b.Queue().Close()
			if err := conn.Start(gctx, b.Queue()); err != nil {
				// the other platforms keep running
				logger.Error("platform stopped", "platform", name, "err", err)
				if terr := b.Bus().Trigger(gctx, bus.ErrorEvent{Platform: name, Err: err}); terr != nil {
					logger.Warn("error event handlers failed", "platform", name, "err", terr)
				}
			}
			return nil
		})
		g.Go(func() error {
			if err := b.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s bot: %w", name, err)
			}
			return nil
		})
	}

	if cfg.Server.Enabled {
		srvCfg := server.Config{
			Addr:    cfg.Server.Addr,
			Version: version,
			Status:  status,
			Logger:  logger,
		}
		if cfg.Server.Metrics {
			srvCfg.Metrics = collector
		}
		if cfg.Server.EventFeed {
			srvCfg.Feed = events
		}
		srv := server.New(srvCfg)
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("modbot started", "version", version, "platforms", platforms)
	err = g.Wait()
	logger.Info("modbot stopped")
	return err
}

func newOracle(cfg config.OracleConfig, m *metrics.Collector) (domain.Oracle, error) {
	client, err := oracle.NewClient(oracle.ClientConfig{
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout(),
		RetryMax: cfg.RetryMax,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize == 0 {
		return client, nil
	}
	return oracle.NewCached(client, cfg.CacheSize, cfg.CacheTTL(), m), nil
}

func newAdapter(cfg *config.Config, name string) adapter {
	switch name {
	case "discord":
		return discord.New(discord.Config{
			Token:   cfg.Platforms.Discord.Token,
			GuildID: cfg.Platforms.Discord.GuildID,
			Logger:  logger,
		})
	case "telegram":
		return telegram.New(telegram.Config{
			Token:     cfg.Platforms.Telegram.Token,
			AllowFrom: cfg.Platforms.Telegram.AllowFrom,
			Logger:    logger,
		})
	case "slack":
		return slack.New(slack.Config{
			BotToken: cfg.Platforms.Slack.BotToken,
			AppToken: cfg.Platforms.Slack.AppToken,
			Logger:   logger,
		})
	case "twitch":
		return twitch.New(twitch.Config{
			Username: cfg.Platforms.Twitch.Username,
			Token:    cfg.Platforms.Twitch.Token,
			Channels: cfg.Platforms.Twitch.Channels,
			Logger:   logger,
		})
	}
	panic("unknown platform " + name)
}
