/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentchar/internal/definition"
)

func newInspectCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <character.acd>",
		Short: "Parse a character definition and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.log.Info("inspect", slog.String("path", args[0]))
			def, err := definition.ParseFile(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(def)
			}
			return printSummary(cmd.OutOrStdout(), def)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed definition as JSON")
	return cmd
}

func printSummary(w io.Writer, def *definition.Character) error {
	m := def.Meta
	fmt.Fprintf(w, "GUID:       %s\n", m.GUID)
	fmt.Fprintf(w, "Size:       %dx%d\n", m.Width, m.Height)
	fmt.Fprintf(w, "Style:      %s\n", m.Style)
	fmt.Fprintf(w, "Balloon:    %d lines x %d chars, %s %d\n",
		def.Balloon.NumLines, def.Balloon.CharsPerLine, def.Balloon.FontName, def.Balloon.FontHeight)
	for _, in := range def.Infos {
		fmt.Fprintf(w, "Info:       %s (%s) greetings=%d reminders=%d\n", in.Name, in.Language, len(in.Greetings), len(in.Reminders))
	}
	fmt.Fprintf(w, "\nAnimations (%d):\n", len(def.Animations))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tFRAMES\tDURATION\tEXIT FRAMES")
	for _, name := range def.AnimationNames() {
		an := def.Animations[name]
		exits := 0
		for _, f := range an.Frames {
			if f.HasExitBranch() {
				exits++
			}
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\n", name, len(an.Frames), an.TotalDuration(), exits)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nStates (%d):\n", len(def.States))
	for _, name := range def.StateNames() {
		fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(def.States[name].Animations, ", "))
	}
	return nil
}
