package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alucardeht/ytscribe-mcp/internal/cache"
	"github.com/alucardeht/ytscribe-mcp/internal/config"
	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/internal/mcp"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/internal/tools/video"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
	"github.com/alucardeht/ytscribe-mcp/pkg/version"
)

var log = logger.ForComponent("server")

type options struct {
	configPath string
	logLevel   string
	noWatch    bool
	noCache    bool
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:   "ytscribe-server",
		Short: "MCP server for YouTube transcripts, search and channel info",
		Long: `ytscribe-server speaks newline-delimited JSON-RPC on stdin and stdout.
It is meant to be spawned by an MCP client. Diagnostics go to stderr.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.ytscribe/config.yaml)")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload the config file when it changes")
	root.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the transcript cache")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ytscribe-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noCache {
		cfg.Cache.Enabled = false
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.Log.Level)
	logCfg.Format = cfg.Log.Format
	logger.Init(logCfg)

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	client := youtube.NewClient(
		youtube.WithHTTPClient(&http.Client{Timeout: cfg.YouTube.Timeout}),
		youtube.WithAPIBase(cfg.YouTube.APIBase),
		youtube.WithWebBase(cfg.YouTube.WebBase),
		youtube.WithUserAgent(cfg.YouTube.UserAgent),
		youtube.WithAPIKey(cfg.YouTube.APIKey),
	)
	if cfg.YouTube.APIKey == "" {
		log.Warn("no YouTube API key configured, search and channel info will fail", "env", config.EnvAPIKey)
	}

	engine, err := extract.NewDefaultEngine(client, cfg.Extract, nil)
	if err != nil {
		return fmt.Errorf("failed to build extraction chain: %w", err)
	}

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			log.Warn("transcript cache unavailable, continuing without it", "path", cfg.Cache.Path, "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	registry := tools.NewRegistry()
	toolList := append([]tools.Tool{tools.NewHealthTool(registry)}, video.GetTools(client, engine, store)...)
	for _, tool := range toolList {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	registry.Seal()

	server := mcp.NewServer(registry,
		mcp.WithServerName(cfg.Server.Name),
		mcp.WithToolTimeout(cfg.Server.ToolTimeout),
	)

	log.Info("server starting",
		"version", version.Version,
		"tools", registry.Names(),
		"strategies", engine.Strategies(),
		"cache", store != nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		// returns on cancellation even while a stdin read is pending
		return server.ProcessStream(gctx, os.Stdin, os.Stdout)
	})

	if !opts.noWatch {
		g.Go(func() error {
			err := config.Watch(gctx, opts.configPath, config.DefaultDebounceWindow, func(next *config.Config) {
				client.SetAPIKey(next.YouTube.APIKey)
				logger.SetLevel(logger.ParseLevel(next.Log.Level))
			})
			if err != nil {
				log.Warn("config watcher disabled", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("server stopped")
	return err
}
