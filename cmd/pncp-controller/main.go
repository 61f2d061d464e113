// ABOUTME: Entry point for the pncp-controller fleet control server.
// ABOUTME: Accepts agent connections and drives the operator command prompt.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/pifleet/pncp/internal/config"
	"github.com/pifleet/pncp/internal/controller"
	"github.com/pifleet/pncp/internal/dispatch"
	"github.com/pifleet/pncp/internal/report"
	"github.com/pifleet/pncp/internal/store"
)

// version is overridden with -ldflags "-X main.version=..." on release builds.
var version = "dev"

const banner = `

  _ __  _ __   ___ _ __
 | '_ \| '_ \ / __| '_ \
 | |_) | | | | (__| |_) |
 | .__/|_| |_|\___| .__/
 |_|              |_|
`

// getConfigPath returns the path to the controller config file.
// Priority: PNCP_CONFIG env var > XDG_CONFIG_HOME/pncp/controller.yaml > ~/.config/pncp/controller.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PNCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "controller.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pncp", "controller.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pncp-controller <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the controller and the operator prompt")
		fmt.Println("  init       Create a starter config file")
		fmt.Println("  history    Show stored command outputs or status transitions")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "history":
		err = runHistory(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.ListenAddr)
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Database: %s\n", cfg.Database.Path)
	} else {
		fmt.Printf("Database: disabled\n")
	}
	fmt.Println()

	logger.Info("starting pncp-controller",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctrl, err := controller.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Run(ctx)
	}()

	promptLoop(ctx, ctrl)

	cancel()
	return <-errCh
}

// promptLoop reads command keys from the operator until a blank line, EOF,
// or shutdown. Each key fans out to every registered agent.
func promptLoop(ctx context.Context, ctrl *controller.Controller) {
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Printf("cmd to all agents (keys: %s, blank to close): ",
			strings.Join(dispatch.AllowedCommands(), " "))

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok = <-lines:
			if !ok {
				fmt.Println()
				return
			}
		}

		key := strings.TrimSpace(line)
		if key == "" {
			gray.Println("closing all connections")
			return
		}
		if !dispatch.Allowed(key) {
			red.Println("command key not allowed")
			continue
		}

		results, err := ctrl.Dispatcher().Dispatch(ctx, key)
		if err != nil {
			red.Printf("dispatch failed: %v\n", err)
			continue
		}
		if len(results) == 0 {
			gray.Println("no agents connected")
			continue
		}
		printResults(key, results)
	}
}

func printResults(key string, results map[string]dispatch.Result) {
	red := color.New(color.FgRed)

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := results[id]
		if res.Err != nil {
			red.Printf("[%s] error: %v\n", id, res.Err)
			continue
		}
		if key == "metrics" {
			report.Render(os.Stdout, id, res.Output)
			continue
		}
		fmt.Printf("[%s] rc=%d\nOutput:\n%s\n", id, res.ExitCode, res.Output)
	}
}

const starterConfig = `server:
  listen_addr: "0.0.0.0:50023"

auth:
  shared_secret: "${PNCP_SHARED_SECRET}"
  freshness_window: "60s"

database:
  path: "pncp.db"

agents:
  probe_interval: "3s"

dispatch:
  response_timeout: "30s"

limits:
  max_message_bytes: 1048576

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("Set PNCP_SHARED_SECRET (or edit auth.shared_secret) before serving.")
	return nil
}

func runHistory(ctx context.Context) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	agentID := fs.String("agent", "", "filter by agent identity")
	command := fs.String("command", "", "filter by command key")
	limit := fs.Int("limit", 20, "maximum rows to show")
	status := fs.Bool("status", false, "show connect/disconnect transitions instead of outputs")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("persistence is disabled (database.path is empty)")
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if *status {
		records, err := st.StatusHistory(ctx, *agentID, *limit)
		if err != nil {
			return fmt.Errorf("querying status history: %w", err)
		}
		for _, r := range records {
			fmt.Printf("%s  %-12s  %s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.AgentID)
		}
		return nil
	}

	records, err := st.RecentOutputs(ctx, *agentID, *command, *limit)
	if err != nil {
		return fmt.Errorf("querying outputs: %w", err)
	}
	for _, r := range records {
		fmt.Printf("%s  %-8s  %s\n%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Command, r.AgentID, r.Output)
	}
	return nil
}
