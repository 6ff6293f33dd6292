package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alucardeht/ytscribe-mcp/internal/config"
	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/internal/rpc"
	"github.com/alucardeht/ytscribe-mcp/pkg/version"
)

var log = logger.ForComponent("cli")

// app is shared by every subcommand. It owns the session pool so a command
// never leaves a server process behind.
type app struct {
	configPath string
	serverCmd  string
	jsonOut    bool
	verbose    bool

	cfg  *config.Config
	pool *rpc.Pool
}

func main() {
	a := &app{}
	root := a.rootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ytscribe",
		Short: "Talk to the ytscribe MCP server",
		Long: `ytscribe spawns ytscribe-server as a child process and calls its tools
over JSON-RPC on the child's stdin and stdout.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.ytscribe/config.yaml)")
	flags.StringVar(&a.serverCmd, "server", "", "server command to spawn (default from config)")
	flags.BoolVar(&a.jsonOut, "json", false, "print raw JSON results")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log protocol traffic to stderr")

	root.AddCommand(
		a.toolsCommand(),
		a.callCommand(),
		a.transcriptCommand(),
		a.searchCommand(),
		a.channelCommand(),
		a.chatCommand(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel("warn")
	if a.verbose {
		logCfg.Level = logger.ParseLevel("debug")
	}
	logger.Init(logCfg)

	command := a.serverCmd
	if command == "" {
		command = resolveServer(cfg.Client.Command)
	}

	args := cfg.Client.Args
	if a.configPath != "" {
		args = append([]string{"--config", a.configPath}, args...)
	}

	a.pool = rpc.NewPool(func(string) *rpc.Session {
		sessionCfg := rpc.DefaultConfig()
		sessionCfg.Command = command
		sessionCfg.Args = args
		sessionCfg.HandshakeTimeout = cfg.Client.HandshakeTimeout
		sessionCfg.RequestTimeout = cfg.Client.RequestTimeout
		return rpc.NewSession(sessionCfg)
	})
	return nil
}

// session returns the connected session for key.
func (a *app) session(ctx context.Context, key string) (*rpc.Session, error) {
	s, err := a.pool.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return s, nil
}

func (a *app) close() {
	if a.pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultConfig().StopTimeout)
	defer cancel()
	a.pool.Close(ctx)
}

// resolveServer prefers a server binary installed next to this executable,
// then falls back to command on PATH.
func resolveServer(command string) string {
	if filepath.IsAbs(command) || filepath.Base(command) != command {
		return command
	}
	if execPath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(execPath), command)
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	if path, err := exec.LookPath(command); err == nil {
		return path
	}
	return command
}
