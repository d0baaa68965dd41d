package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/mathcoach/internal/app"
	"github.com/abhisek/mathcoach/internal/config"
	"github.com/abhisek/mathcoach/internal/llm"
	"github.com/abhisek/mathcoach/internal/logging"
	"github.com/abhisek/mathcoach/internal/problemgen"
	"github.com/abhisek/mathcoach/internal/session"
	"github.com/abhisek/mathcoach/internal/store"
)

// deps holds what a command needs to talk to the completion service.
type deps struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	gateway *llm.Gateway
}

func (d *deps) eventRepo() store.EventRepo {
	if d.store == nil {
		return nil
	}
	return d.store.EventRepo()
}

func (d *deps) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("close store", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// loadConfig reads the config file named by --config and applies --db.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Store.Path = p
		cfg.Store.Enabled = true
	}
	return cfg, nil
}

// setup loads config and builds the logger, the call log and the gateway.
// console allows log output on stderr, which the full-screen UI never does;
// it is then enabled by log.console or --verbose.
func setup(cmd *cobra.Command, console bool) (*deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	verbose, _ := cmd.Flags().GetBool("verbose")
	logCfg.Console = console && (logCfg.Console || verbose)
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	d := &deps{cfg: cfg, logger: logger}
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			// The call log is an audit trail; the quiz works without it.
			logger.Warn("call log unavailable", zap.String("path", cfg.Store.Path), zap.Error(err))
		} else {
			d.store = st
		}
	}

	gw, err := llm.NewGatewayFromConfig(cmd.Context(), cfg.LLM, d.eventRepo(), logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("LLM provider not configured: %w", err)
	}
	d.gateway = gw

	logger.Info("starting",
		zap.String("command", cmd.Name()),
		zap.String("provider", cfg.LLM.Provider),
		zap.Bool("call_log", d.store != nil))
	return d, nil
}

// startLevel picks the level from --level, falling back to the config.
func startLevel(cmd *cobra.Command, cfg *config.Config) (problemgen.Level, error) {
	raw, _ := cmd.Flags().GetString("level")
	if raw == "" {
		return cfg.Quiz.StartLevel(), nil
	}
	return problemgen.ParseLevel(raw)
}

// runApp launches the TUI.
func runApp(cmd *cobra.Command) error {
	d, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer d.Close()

	level, err := startLevel(cmd, d.cfg)
	if err != nil {
		return err
	}

	s := session.New(d.gateway,
		session.WithLogger(d.logger),
		session.WithLevel(level))

	return app.Run(cmd.Context(), app.Options{
		Session:   s,
		EventRepo: d.eventRepo(),
		Logger:    d.logger,
	})
}
