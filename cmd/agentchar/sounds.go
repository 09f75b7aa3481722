/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"agentchar/internal/audio"
)

func newSoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sounds",
		Short: "Manage sound banks",
	}
	pack := &cobra.Command{
		Use:   "pack <dir> <bank.json>",
		Short: "Pack a directory of wav/mp3/ogg files into a JSON sound bank",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, n, err := audio.PackDir(args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(args[1]), 0o755); err != nil {
				return fmt.Errorf("ensure out dir: %w", err)
			}
			if err := os.WriteFile(args[1], data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d sound(s) into %s\n", n, args[1])
			return nil
		},
	}
	list := &cobra.Command{
		Use:   "list <bank>",
		Short: "List the sounds in a bank file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := audio.LoadBank(args[0])
			if err != nil {
				return err
			}
			for _, id := range b.IDs() {
				buf, _ := b.Buffer(id)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, buf.Format().SampleRate.D(buf.Len()))
			}
			return nil
		},
	}
	cmd.AddCommand(pack, list)
	return cmd
}
