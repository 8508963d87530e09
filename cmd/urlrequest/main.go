// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command urlrequest drives URL requests through the request lifecycle
// manager from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/gogama/urlrequest/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "urlrequest",
		Short: "Issue URL requests through the request lifecycle manager",
		Long: `urlrequest issues URL requests the way a browser process does:
each request is resolved to a browser context, dispatched to a loader
and reported back through progress and completion callbacks.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "configuration file (YAML, JSON or TOML)")
	config.AddFlags(pf)
	root.AddCommand(newFetchCmd())
	return root
}

// loadConfig reads the configuration named by the persistent flags,
// applies the setting overrides in fs and builds the logger the result
// describes.
func loadConfig(fs *pflag.FlagSet) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWithFlags(configPath, fs)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
