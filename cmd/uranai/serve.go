package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/uranai/internal/config"
	"github.com/zulandar/uranai/internal/feed"
	discordfeed "github.com/zulandar/uranai/internal/feed/discord"
	slackfeed "github.com/zulandar/uranai/internal/feed/slack"
	"github.com/zulandar/uranai/internal/server"
	"github.com/zulandar/uranai/internal/tarot"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the tarot and diagnosis session API. Finalized readings are posted to the configured team feed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	q, err := recordQuestionnaire(gormDB, cfg)
	if err != nil {
		return err
	}
	sharer, err := createSharer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return server.Start(ctx, server.StartOpts{
		DB:            gormDB,
		Config:        cfg,
		Questionnaire: q,
		Sharer:        sharer,
		Out:           cmd.OutOrStdout(),
	})
}

// createSharer builds the team feed from the config. It returns nil when no
// feed platform is configured.
func createSharer(cfg *config.Config) (tarot.Sharer, error) {
	var pub feed.Publisher
	switch cfg.Feed.Platform {
	case "":
		return nil, nil
	case "slack":
		p, err := slackfeed.New(slackfeed.PublisherOpts{
			BotToken:  cfg.Feed.BotToken,
			ChannelID: cfg.Feed.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		pub = p
	case "discord":
		p, err := discordfeed.New(discordfeed.PublisherOpts{
			BotToken:  cfg.Feed.BotToken,
			ChannelID: cfg.Feed.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		pub = p
	default:
		return nil, fmt.Errorf("feed: unsupported platform %q", cfg.Feed.Platform)
	}
	sharer, err := feed.NewSharer(feed.SharerOpts{Publisher: pub, ChannelID: cfg.Feed.ChannelID})
	if err != nil {
		return nil, err
	}
	return sharer, nil
}
