package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ado"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/config"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/mcp"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"query": true, "inspect": true, "validate": true, "select": true,
	"handles": true,
	"bulk-comment": true, "bulk-update": true, "bulk-assign": true, "bulk-remove": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __ _  __| | ___  _ __ ___   ___ _ __
  / _' |/ _' |/ _ \| '_ ' _ \ / __| '_ \
 | (_| | (_| | (_) | | | | | | (__| |_) |
  \__,_|\__,_|\___/|_| |_| |_|\___| .__/
                                  |_|
  Query-handle MCP server for Azure DevOps work items

  Usage: adomcp <command> [options]
         adomcp --help

  MCP server mode requires piped input.`)
}

// newLogger builds a stderr-only logger. Stdout carries the MCP transport,
// so nothing else may write to it.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// buildEnv assembles the shared operation environment from config.
func buildEnv(baseDir string, cfg *config.Config, logger *zap.Logger) (*ops.Env, func(), error) {
	var store handle.Store
	cleanup := func() {}

	switch cfg.HandleStore {
	case "", "memory":
		store = handle.NewMemoryStore(nil, logger)
	case "sqlite":
		s, err := handle.OpenSQLite(baseDir, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open handle store: %w", err)
		}
		store = s
		cleanup = func() { s.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown handle_store %q (want memory or sqlite)", cfg.HandleStore)
	}

	if cfg.Organization == "" || cfg.Project == "" {
		cleanup()
		return nil, nil, fmt.Errorf("organization and project must be configured (%s)", filepath.Join(baseDir, "config.json"))
	}
	pat := cfg.PAT()
	if pat == "" {
		cleanup()
		env := cfg.PATEnv
		if env == "" {
			env = config.DefaultPATEnv
		}
		return nil, nil, fmt.Errorf("personal access token not set: export %s", env)
	}

	client := ado.NewClient(cfg.Organization, cfg.Project, pat, logger)

	return &ops.Env{
		Store:  store,
		Client: client,
		Cfg:    cfg,
		Logger: logger,
	}, cleanup, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before any setup
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".adomcp")

	workDir, err := os.Getwd()
	if err != nil {
		workDir = baseDir
	}

	cfg, err := config.LoadWithRepo(baseDir, workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "error: unknown disabled_tools: %v\n", unknown)
		os.Exit(1)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "error: unknown disabled_types: %v\n", unknown)
		os.Exit(1)
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	env, cleanup, err := buildEnv(baseDir, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'adomcp --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handle.StartSweeper(ctx, env.Store, cfg.SweepInterval(), logger)

	if err := mcp.Run(env, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
