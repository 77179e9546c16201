package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/capability/ollama"
	"github.com/zulandar/lectern/internal/capability/transcriptdir"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/ingest"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/metrics"
	"github.com/zulandar/lectern/internal/notify"
	"github.com/zulandar/lectern/internal/notify/discord"
	"github.com/zulandar/lectern/internal/notify/slack"
	"github.com/zulandar/lectern/internal/optimize"
)

const defaultConfigPath = "lectern.yaml"

// app holds what a command needs: config, logger, database and the
// components built from them.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *gorm.DB
	metrics *metrics.Metrics

	gate  *capability.Gate
	model *ollama.Client
	queue *optimize.Queue
}

// loadConfig reads the --config file. A missing file at the default path
// yields the defaults so a fresh checkout works without one.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// openApp loads the config and connects to the database.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     logging.New(cfg.Logging, cmd.ErrOrStderr()),
		db:      gdb,
		metrics: metrics.New(),
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		db.Close(a.db)
	}
}

// sharedGate bounds every external call made by this process.
func (a *app) sharedGate() *capability.Gate {
	if a.gate == nil {
		a.gate = capability.NewGate(a.cfg.Pipeline, a.metrics)
	}
	return a.gate
}

func (a *app) modelClient() *ollama.Client {
	if a.model == nil {
		a.model = ollama.New(a.cfg.Ollama, a.log)
	}
	return a.model
}

func (a *app) optimizationQueue() *optimize.Queue {
	if a.queue == nil {
		a.queue = optimize.NewQueue(a.db, a.log, a.metrics)
	}
	return a.queue
}

func (a *app) machine() (*ingest.Machine, error) {
	return ingest.NewMachine(a.db, ingest.Options{
		Fetcher:  transcriptdir.New(a.cfg.Transcripts.Dir, a.cfg.Transcripts.PreferredLanguages),
		Analyzer: a.modelClient(),
		Gate:     a.sharedGate(),
		Pipeline: a.cfg.Pipeline,
		Logger:   a.log,
		Metrics:  a.metrics,
	})
}

func (a *app) runner() (*ingest.Runner, error) {
	m, err := a.machine()
	if err != nil {
		return nil, err
	}
	return ingest.NewRunner(a.db, m, a.cfg.Pipeline.Workers, a.log), nil
}

// scanner builds the bias scanner. With heuristicsOnly no model is called.
func (a *app) scanner(heuristicsOnly bool) (*bias.Scanner, error) {
	opts := bias.Options{
		Heuristic: bias.NewHeuristicDetector(a.cfg.Bias.Brands),
		Gate:      a.sharedGate(),
		Queue:     a.optimizationQueue(),
		BatchSize: a.cfg.Bias.BatchSize,
		Logger:    a.log,
		Metrics:   a.metrics,
	}
	if !heuristicsOnly {
		opts.Detector = a.modelClient()
	}
	return bias.NewScanner(a.db, opts)
}

func (a *app) optimizer() *optimize.Optimizer {
	return optimize.NewOptimizer(a.db, a.optimizationQueue(), a.cfg.Optimize, a.log).
		WithTagger(a.modelClient(), a.sharedGate())
}

// notifier builds the configured chat notifiers. Targets that fail to
// build are logged and left out.
func (a *app) notifier() notify.Multi {
	var out notify.Multi
	if t := a.cfg.Notify.Slack; t.Enabled() {
		p, err := slack.New(slack.Opts{BotToken: t.BotToken, ChannelID: t.ChannelID})
		if err != nil {
			a.log.Warn("slack notifier disabled", "error", err)
		} else {
			out = append(out, p)
		}
	}
	if t := a.cfg.Notify.Discord; t.Enabled() {
		p, err := discord.New(discord.Opts{BotToken: t.BotToken, ChannelID: t.ChannelID})
		if err != nil {
			a.log.Warn("discord notifier disabled", "error", err)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// notify posts msg when notifications are configured. Failures are logged.
func (a *app) notify(ctx context.Context, msg notify.Message) {
	n := a.notifier()
	if !n.Enabled() {
		return
	}
	if err := n.Send(ctx, msg); err != nil {
		a.log.Warn("notification failed", "error", err)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// operator names the person resolving queue items from the CLI.
func operator(by string) string {
	if by != "" {
		return by
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}
