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
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentchar/internal/catalog"
	"agentchar/internal/config"
)

func newCatalogCmd(a *app) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Index and search character definitions",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "SQLite path or postgres:// URL (default: config catalog.dsn)")

	open := func(ctx context.Context) (*catalog.Catalog, error) {
		d := dsn
		if d == "" {
			d = a.cfg.Catalog.DSN
		}
		if d == "" {
			var err error
			if d, err = config.DefaultCatalogDSN(); err != nil {
				return nil, err
			}
		}
		a.log.Debug("catalog open", slog.String("dsn", redact(d)))
		return catalog.Open(ctx, d)
	}

	scan := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Parse every .acd file under dir and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			res, err := c.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d character(s)\n", res.Indexed)
			for _, fe := range res.Failed {
				fmt.Fprintf(out, "  failed: %v\n", fe)
			}
			return nil
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			entries, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Find characters by name, description or animation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			entries, err := c.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.AddCommand(scan, list, search)
	return cmd
}

func printEntries(w io.Writer, entries []catalog.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No characters found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tANIMATIONS\tSTATES\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%dx%d\t%d\t%d\t%s\n", e.Name, e.Width, e.Height, len(e.Animations), len(e.States), e.Path)
	}
	return tw.Flush()
}

// redact hides the password of a postgres URL.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}
