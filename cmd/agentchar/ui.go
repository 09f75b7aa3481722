/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"github.com/spf13/cobra"

	"agentchar/internal/ui"
)

func newUICmd(a *app) *cobra.Command {
	var o ui.Options
	cmd := &cobra.Command{
		Use:   "ui <character.acd>",
		Short: "Launch the desktop host (build with -tags fyne for the full UI)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			o.Config = a.cfg
			return ui.Run(args[0], o)
		},
	}
	cmd.Flags().StringVar(&o.SpriteDir, "sprites", "", "Directory of NNNN.bmp frame images")
	cmd.Flags().StringVar(&o.SoundBank, "sounds", "", "Sound bank JSON file or directory of audio files")
	return cmd
}
