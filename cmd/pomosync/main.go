// Package main is the pomosync command: a headless session-sync client
// that runs a pomodoro timer and shares it with a room.
//
// Usage:
//
//	pomosync token set <credential>
//	pomosync run --room study --mode pomodoro
//	pomosync format 3725
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logFormat  string
	logLevel   string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pomosync",
		Short:         "Pomodoro timer with realtime room sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("POMOSYNC_CONFIG"), "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format: console or json")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level")

	root.AddCommand(
		buildRunCmd(opts),
		buildTokenCmd(opts),
		buildFormatCmd(),
	)
	return root
}

func newLogger(w io.Writer, format, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
