/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"agentchar/internal/config"
	"agentchar/internal/crash"
	applog "agentchar/internal/log"
	"agentchar/internal/telemetry"
	"agentchar/internal/version"
)

// app carries state shared by all subcommands once the root pre-run has loaded it.
type app struct {
	cfg   config.AppConfig
	token string
	log   *slog.Logger
}

func main() {
	defer crash.Recover("")
	root := newRootCmd()
	err := root.Execute()
	flushTelemetry()
	_ = applog.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var showVersion bool
	root := &cobra.Command{
		Use:           "agentchar",
		Short:         "AgentChar - animated desktop characters from .acd definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Print version information")
	root.PersistentFlags().String("log-level", "", "Override log level (debug|info|warn|error)")

	root.AddCommand(
		newInspectCmd(a),
		newRunCmd(a),
		newUICmd(a),
		newCatalogCmd(a),
		newExportCmd(a),
		newSoundsCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads the user config and initializes logging and telemetry from it.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, token, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Writer:    cmd.ErrOrStderr(),
	})
	telemetry.NewDefault(telemetry.FromAppConfig(cfg, token))
	a.cfg, a.token = cfg, token
	a.log = applog.WithComponent("cli")
	a.log.Debug("start", slog.String("cmd", cmd.CommandPath()), slog.String("ver", version.String()))
	return nil
}

func flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	telemetry.Flush(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "AgentChar")
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}
