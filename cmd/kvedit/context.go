package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"kvedit/internal/apiclient"
	"kvedit/internal/config"
	"kvedit/internal/dashboard"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/logging"
	"kvedit/internal/rowmodel"
	"kvedit/internal/snapshot"
	"kvedit/internal/upload"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// cliEnv holds everything a one-shot command needs to read or change the
// collection.
type cliEnv struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *kvstore.Client
	history   *history.Store
	snapshots *snapshot.Manager
	service   *upload.Service
}

func (e *cliEnv) Close() {
	if e == nil {
		return
	}
	if e.history != nil {
		_ = e.history.Close()
	}
}

// openEnv wires the KV Store client and the write service. Banners go to
// stderr, and dashboards are refreshed through a running server when one is
// configured.
func (c *commandContext) openEnv(cmd *cobra.Command) (*cliEnv, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, "")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return buildEnv(cmd.Context(), cfg, logger, newBannerPrinter(cmd.ErrOrStderr()), cliBridge(cfg))
}

func buildEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger, notifier upload.Notifier, bridge *dashboard.Bridge) (*cliEnv, error) {
	client, err := kvstore.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("kvstore client: %w", err)
	}

	var model *rowmodel.Model
	if cfg.Collection.Model != "" {
		model, err = rowmodel.Load(cfg.Collection.Model)
		if err != nil {
			return nil, fmt.Errorf("load row model: %w", err)
		}
	}

	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	env := &cliEnv{cfg: cfg, logger: logger, client: client, history: store}

	env.snapshots, err = snapshot.NewManager(ctx, cfg, logger)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("snapshots: %w", err)
	}

	env.service, err = upload.New(upload.Options{
		Config:    cfg,
		Store:     client,
		Model:     model,
		Bridge:    bridge,
		Notifier:  notifier,
		History:   store,
		Snapshots: env.snapshots,
		Logger:    logger,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// cliBridge shares the server's refresh endpoint with the write service.
// Without an API address the bridge has no handle and refreshes are skipped.
func cliBridge(cfg *config.Config) *dashboard.Bridge {
	client, err := apiclient.NewFromConfig(cfg)
	if err != nil {
		return dashboard.NewBridge(nil)
	}
	return dashboard.NewBridge(client)
}

// bannerPrinter shows run banners on a terminal.
type bannerPrinter struct {
	w        io.Writer
	colorize bool
}

func newBannerPrinter(w io.Writer) *bannerPrinter {
	return &bannerPrinter{w: w, colorize: shouldColorize(w)}
}

func (p *bannerPrinter) Notify(b dashboard.Banner) {
	if p == nil || !b.Visible {
		return
	}
	fmt.Fprintln(p.w, renderBanner(b, p.colorize))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
