/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/sjson"

	applog "agentchar/internal/log"
)

var mimeFor = map[string]string{"mp3": "audio/mpeg", "wav": "audio/wav", "ogg": "audio/ogg"}

// PackDir builds a JSON sound bank from the audio files in dir, keyed by
// base name. Files that do not decode are skipped with a warning.
func PackDir(dir string) ([]byte, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	l := applog.WithComponent("audio")
	out := []byte("{}")
	n := 0
	for _, e := range entries {
		kind := formatForExt(strings.ToLower(filepath.Ext(e.Name())))
		if e.IsDir() || kind == "" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, 0, err
		}
		if _, err := decode(kind, raw); err != nil {
			l.Warn("sound not packed", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		uri := "data:" + mimeFor[kind] + ";base64," + base64.StdEncoding.EncodeToString(raw)
		if out, err = sjson.SetBytes(out, escapeKey(id), uri); err != nil {
			return nil, 0, fmt.Errorf("pack %s: %w", id, err)
		}
		n++
	}
	return out, n, nil
}

// escapeKey quotes the sjson path metacharacters in a literal key.
func escapeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
