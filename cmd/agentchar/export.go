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
	"image"
	"log/slog"

	"github.com/spf13/cobra"

	"agentchar/internal/definition"
	"agentchar/internal/export"
	"agentchar/internal/sprite"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export character documentation",
	}
	var sprites, preview string
	pdf := &cobra.Command{
		Use:   "pdf <character.acd> <out.pdf>",
		Short: "Write a printable character sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.ParseFile(args[0])
			if err != nil {
				return err
			}
			var img image.Image
			if sprites != "" {
				img, err = previewFrame(def, sprites, preview, a.cfg.Agent.Scale)
				if err != nil {
					return err
				}
			}
			if err := export.CharacterSheetPDFWithPreview(def, args[1], img); err != nil {
				return err
			}
			a.log.Info("exported", slog.String("out", args[1]))
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", args[1])
			return nil
		},
	}
	pdf.Flags().StringVar(&sprites, "sprites", "", "Sprite directory; adds a rendered preview frame")
	pdf.Flags().StringVar(&preview, "preview", "RestPose", "Animation whose first frame is used as preview")
	cmd.AddCommand(pdf)
	return cmd
}

// previewFrame renders the first frame of the named animation, falling back
// to the first animation in name order.
func previewFrame(def *definition.Character, dir, name string, scale int) (image.Image, error) {
	anim, ok := def.Animations[name]
	if !ok {
		names := def.AnimationNames()
		if len(names) == 0 {
			return nil, nil
		}
		anim = def.Animations[names[0]]
	}
	sheet, err := sprite.Load(dir, def, scale)
	if err != nil {
		return nil, err
	}
	defer sheet.Close()
	return sheet.Render(anim.Frames[0])
}
