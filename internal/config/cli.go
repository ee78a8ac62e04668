package config

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds the configuration parsed from command line arguments.
// The engine exposes four commands mirroring spec.md's four operations.
type CLIConfig struct {
	Command        string
	ConfigPath     string
	SessionPath    string
	Workers        int
	NonInteractive bool
}

// ParseCLI parses command line arguments. CLI flags only select the config
// file and runtime knobs; all domain settings live in the JSON config (spec
// §6 scopes CLI parsing itself out as a component to design around).
func ParseCLI() (*CLIConfig, error) {
	if len(os.Args) < 2 {
		return nil, fmt.Errorf("usage: tgforward <command> [flags]\nCommands: download, upload, forward, monitor")
	}

	cmd := os.Args[1]
	switch cmd {
	case "download", "upload", "forward", "monitor":
	default:
		return nil, fmt.Errorf("unknown command %q: want download, upload, forward, or monitor", cmd)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &CLIConfig{Command: cmd}

	fs.StringVar(&cfg.ConfigPath, "config", "config.json", "path to the JSON config file")
	fs.IntVar(&cfg.Workers, "workers", 4, "number of parallel upload threads per file")
	fs.BoolVar(&cfg.NonInteractive, "non-interactive", false, "disable interactive prompts and progress bars")

	if err := fs.Parse(os.Args[2:]); err != nil {
		return nil, err
	}

	var err error
	cfg.SessionPath, err = GetSessionPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get session path: %w", err)
	}

	return cfg, nil
}
