// Package main provides the quota-monitor CLI application.
//
// Quota Monitor combines Claude Code event logs with periodically
// scraped quota snapshots to reconstruct session windows and build
// daily usage aggregates, split into within-quota and overage volume.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")

	flag.Parse()

	if *showVersion {
		fmt.Printf("quota-monitor %s\n", version)
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		return showUsage()
	}

	switch args[0] {
	case "daemon":
		return runDaemonCommand(*configPath)
	case "report":
		return runReportCommand(*configPath, args[1:])
	case "health":
		return runHealthCommand(*configPath, args[1:])
	case "config":
		return runConfigCommand(*configPath, args[1:])
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runReportCommand runs the report command.
func runReportCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	from := fs.String("from", "", "start date (YYYY-MM-DD, default: 30 days ago)")
	to := fs.String("to", "", "end date (YYYY-MM-DD, default: today)")
	daily := fs.Bool("daily", false, "show per-day rows instead of the range rollup")
	models := fs.Bool("models", false, "include per-model breakdown")
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now().UTC()
	if *to == "" {
		*to = now.Format("2006-01-02")
	}
	if *from == "" {
		*from = now.AddDate(0, 0, -30).Format("2006-01-02")
	}

	cmd := &reportCommand{
		configPath: configPath,
		from:       *from,
		to:         *to,
		daily:      *daily,
		models:     *models,
		format:     *format,
	}
	return cmd.Execute()
}

// runHealthCommand runs the health command.
func runHealthCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd := &healthCommand{
		configPath: configPath,
		format:     *format,
	}
	return cmd.Execute()
}

// runConfigCommand runs the config command.
func runConfigCommand(configPath string, args []string) error {
	cmd := &configCommand{configPath: configPath}
	return cmd.Execute(args)
}

// showUsage displays usage information.
func showUsage() error {
	usage := `Quota Monitor - Claude Code usage and quota tracking

Usage:
  quota-monitor [flags] <command> [command flags]

Commands:
  daemon      Run the collection daemon (event ingestion + snapshot polling)
  report      Display usage aggregates from the store
  health      Show snapshot collection health
  config      Configuration management (show, path, init)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Report Command Flags:
  -from       Start date (YYYY-MM-DD, default: 30 days ago)
  -to         End date (YYYY-MM-DD, default: today)
  -daily      Show per-day rows instead of the range rollup
  -models     Include per-model breakdown
  -format     Output format (table, json, simple)

Examples:
  # Run the collection daemon in the foreground
  quota-monitor daemon

  # Last 30 days, one rollup
  quota-monitor report

  # Per-day rows for June
  quota-monitor report -from 2025-06-01 -to 2025-06-30 -daily

  # JSON with model breakdown
  quota-monitor report -models -format json

  # Collection health
  quota-monitor health

  # Write the default config file
  quota-monitor config init

Version: %s
`

	fmt.Printf(usage, version)
	return nil
}
