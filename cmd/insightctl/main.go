package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/pkg/logger"

	"github.com/jessevdk/go-flags"
)

// Options is the root command; sub-commands are picked by go-flags.
type Options struct {
	Config string   `short:"c" long:"config" description:"config YAML path (optional)"`
	Chat   ChatCmd  `command:"chat" description:"Interview session that proposes dashboard KPIs"`
	Show   ShowCmd  `command:"show" description:"Print the committed KPI selection"`
	Clear  ClearCmd `command:"clear" description:"Remove the committed KPI selection"`
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Println(flagErr.Message)
			os.Exit(0)
		}
		log.Fatalf("%v", err)
	}
}

// loadConfig reads the shared config and routes logs to stderr so they
// never interleave with command output.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if level == "" || level == "info" {
		level = "warn"
	}
	if err := logger.InitWithOutput(level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}
