package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/vigil/internal/blob"
	"github.com/zulandar/vigil/internal/config"
	"github.com/zulandar/vigil/internal/db"
	"github.com/zulandar/vigil/internal/notify"
	"github.com/zulandar/vigil/internal/queue"
	"github.com/zulandar/vigil/internal/registry"
	"github.com/zulandar/vigil/internal/session"
	"github.com/zulandar/vigil/internal/store"
)

// lifecycleFromConfig loads the config file and assembles the file-backed
// store, the blob reconciler and the lifecycle on top of them. The DB-backed
// collaborators (queue, registry, notifier) are wired separately by the
// commands that need them.
func lifecycleFromConfig(configPath string) (*config.Config, *session.Lifecycle, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(cfg.SessionRoot)
	if err != nil {
		return nil, nil, err
	}

	var client blob.Client = blob.Disabled{}
	if cfg.Blob.ConnectionString != "" {
		client, err = blob.NewAzureClient(cfg.Blob.ConnectionString, cfg.Blob.Container)
		if err != nil {
			return nil, nil, err
		}
	}

	l := session.New(st, &blob.Reconciler{Client: client})
	l.BlobHostName = cfg.Blob.HostName
	l.DefaultHostName = cfg.DefaultHostName
	return cfg, l, nil
}

// wireCollaborators attaches the DB-backed queue and registry plus any
// configured notification sinks to the lifecycle.
func wireCollaborators(l *session.Lifecycle, gormDB *gorm.DB, cfg *config.Config) error {
	l.Queue = queue.New(gormDB)
	l.Registry = registry.New(gormDB)

	var sinks []notify.Sink
	if cfg.Notify.Slack.BotToken != "" {
		slack, err := notify.NewSlackSink(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, slack)
	}
	if cfg.Notify.Discord.BotToken != "" {
		discord, err := notify.NewDiscordSink(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.Channel,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, discord)
	}
	if len(sinks) > 0 {
		l.Notifier = notify.NewFanout(sinks...)
	}
	return nil
}

// connectFromConfig opens the coordination database per the config.
func connectFromConfig(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.DB.DSN
	if dsn == "" && cfg.DB.Driver == db.DriverMySQL {
		dsn = db.MySQLDSN(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	}
	gormDB, err := db.Connect(cfg.DB.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.DB.Driver, err)
	}
	return gormDB, nil
}
