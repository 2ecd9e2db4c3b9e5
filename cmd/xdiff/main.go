// ///////////////////////////////////////////////////////////////////////////
//
// # xdiff - Cross-Engine Table Diff
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pgedge/xdiff/internal/cli"
	"github.com/pgedge/xdiff/pkg/config"
	"github.com/pgedge/xdiff/pkg/logger"
)

func main() {
	if !shouldSkipConfig(os.Args[1:]) {
		// Precedence: $XDIFF_CONFIG, ./xdiff.yaml, ~/.config/xdiff/, /etc/xdiff/.
		cfgPath := findConfig()
		if cfgPath == "" {
			logger.Fatal("config file 'xdiff.yaml' not found (run 'xdiff config init' or set XDIFF_CONFIG)")
		}
		if err := config.Init(cfgPath); err != nil {
			logger.Fatal("loading config", "path", cfgPath, "err", err)
		}
		logger.Debug("Loaded config from %s", cfgPath)
	}

	app := cli.SetupCLI()
	if err := app.Run(os.Args); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func findConfig() string {
	var candidates []string
	if envPath := os.Getenv("XDIFF_CONFIG"); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, "xdiff.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "xdiff", "xdiff.yaml"))
	}
	candidates = append(candidates, "/etc/xdiff/xdiff.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// shouldSkipConfig reports whether the command runs without a config file.
func shouldSkipConfig(args []string) bool {
	if len(args) == 0 {
		return true
	}
	for _, arg := range args {
		if arg == "--help" || arg == "-h" || arg == "help" {
			return true
		}
	}

	var commandPath []string
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		commandPath = append(commandPath, arg)
		if len(commandPath) >= 2 {
			break
		}
	}
	if len(commandPath) == 0 {
		return true
	}

	switch commandPath[0] {
	case "dialects":
		return true
	case "config":
		return len(commandPath) == 1 || commandPath[1] == "init"
	}
	return false
}
