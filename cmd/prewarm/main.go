// Package main provides the CLI entry point for prewarm.
//
// prewarm warms a code-intelligence extension's index inside a containerized
// development environment so the language server is already hot when the
// developer first opens the workspace. It starts a headless code-server,
// installs and patches the extension, drives a headless browser to trigger
// activation, polls the extension host log for readiness, and copies any
// persisted index artifacts to where the real session will look for them.
//
// Usage:
//
//	prewarm [warm] [flags]     Run the warm sequence (default)
//	prewarm status             Query a running warm instance's status server
//	prewarm mcp                Start the MCP server (stdio mode)
//	prewarm version            Show version
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/logger"
	"github.com/ternarybob/prewarm/internal/mcp"
	"github.com/ternarybob/prewarm/internal/warm"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	args := os.Args[1:]
	cmd := "warm"
	if len(args) > 0 && !isFlag(args[0]) {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "warm":
		err = cmdWarm(args)
	case "status":
		err = cmdStatus(args)
	case "mcp", "mcp-server":
		err = cmdMCP(args)
	case "version", "-v", "--version":
		fmt.Printf("prewarm %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

func printUsage() {
	fmt.Println(`prewarm - warm a code-intelligence index before the first editor session

Commands:
  warm [flags]    Run the warm sequence (default command)
  status          Query a running warm instance's status server
  mcp             Start the MCP server (stdio mode)
  version         Show version
  help            Show this help

Warm flags:
  --config <path>     Config file (default: ` + config.DefaultConfigPath() + `)
  --workspace <dir>   Workspace to warm
  --open-file <path>  Workspace file to quick-open for activation
  --timeout <dur>     Overall poll timeout (e.g. 10m)

Exit codes:
  0  index reported (or was assumed) ready
  1  index not ready, or setup failed`)
}

// cmdWarm runs the warm sequence and exits 0 only when the index is ready.
func cmdWarm(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	log := logger.Setup(cfg)
	defer logger.Stop()

	// SIGTERM from the container runtime ends the run early with a not-ready
	// outcome instead of leaving code-server behind.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outcome, err := warm.NewRunner(cfg, version).Run(ctx)
	if err != nil {
		return err
	}

	if !outcome.Ready {
		log.Warn().Msg("Index did not become ready within budget")
		os.Exit(1)
	}
	return nil
}

// cmdStatus queries the status server of a running warm instance.
func cmdStatus(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	resp, err := http.Get("http://" + cfg.APIAddress() + "/status")
	if err != nil {
		return fmt.Errorf("no warm run in progress: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	fmt.Println(string(body))
	return nil
}

// cmdMCP starts the MCP server in stdio mode.
func cmdMCP(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	return mcp.NewServer(cfg, version).ServeStdio()
}

// loadConfig loads the config file and applies CLI overrides.
func loadConfig(args []string) (*config.Config, error) {
	path := config.DefaultConfigPath()

	// First pass: find --config before loading.
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			path = args[i+1]
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
		case "--workspace":
			if i+1 < len(args) {
				cfg.Editor.Workspace = args[i+1]
				i++
			}
		case "--open-file":
			if i+1 < len(args) {
				cfg.Browser.OpenFile = args[i+1]
				i++
			}
		case "--timeout":
			if i+1 < len(args) {
				cfg.Poll.Timeout = args[i+1]
				i++
			}
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return cfg, nil
}
