/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package audio decodes a character's sound effects up front and plays
// them by id. A bank is either a JSON object mapping ids to base64 data
// URIs, or a directory of .wav/.mp3/.ogg files keyed by base name.
package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/tidwall/gjson"

	applog "agentchar/internal/log"
)

var (
	ErrInvalidBank   = errors.New("invalid sound bank")
	ErrUnknownFormat = errors.New("unknown audio format")
)

// Bank holds decoded sounds keyed by id.
type Bank struct {
	sounds map[string]*beep.Buffer
}

// LoadBank reads a JSON bank file or a directory of audio files.
// Entries that fail to decode are logged and skipped.
func LoadBank(path string) (*Bank, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return loadDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBank(data)
}

// ParseBank decodes a JSON object of id → data URI.
func ParseBank(data []byte) (*Bank, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidBank)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidBank)
	}
	l := applog.WithComponent("audio")
	b := &Bank{sounds: map[string]*beep.Buffer{}}
	root.ForEach(func(k, v gjson.Result) bool {
		id := k.String()
		buf, err := decodeDataURI(v.String())
		if err != nil {
			l.Warn("sound skipped", slog.String("id", id), slog.Any("err", err))
			return true
		}
		b.sounds[id] = buf
		return true
	})
	return b, nil
}

func loadDir(dir string) (*Bank, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	l := applog.WithComponent("audio")
	b := &Bank{sounds: map[string]*beep.Buffer{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if formatForExt(ext) == "" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			l.Warn("sound skipped", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		buf, err := decode(formatForExt(ext), data)
		if err != nil {
			l.Warn("sound skipped", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		b.sounds[id] = buf
	}
	return b, nil
}

// IDs returns the loaded sound ids, sorted.
func (b *Bank) IDs() []string {
	out := make([]string, 0, len(b.sounds))
	for id := range b.sounds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len is the number of decoded sounds.
func (b *Bank) Len() int { return len(b.sounds) }

// Buffer returns the decoded buffer for id.
func (b *Bank) Buffer(id string) (*beep.Buffer, bool) {
	buf, ok := b.sounds[id]
	return buf, ok
}

// data:audio/mpeg;base64,AAAA
func decodeDataURI(uri string) (*beep.Buffer, error) {
	head, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(head, "data:") || !strings.HasSuffix(head, ";base64") {
		return nil, fmt.Errorf("%w: not a base64 data URI", ErrInvalidBank)
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return decode(formatForMIME(mime), raw)
}

func formatForMIME(mime string) string {
	switch strings.ToLower(mime) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return "wav"
	case "audio/ogg", "audio/vorbis":
		return "ogg"
	}
	return ""
}

func formatForExt(ext string) string {
	switch ext {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".ogg":
		return "ogg"
	}
	return ""
}

func decode(kind string, data []byte) (*beep.Buffer, error) {
	rc := io.NopCloser(bytes.NewReader(data))
	var (
		dec    beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch kind {
	case "mp3":
		dec, format, err = mp3.Decode(rc)
	case "wav":
		dec, format, err = wav.Decode(bytes.NewReader(data))
	case "ogg":
		dec, format, err = vorbis.Decode(rc)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	defer dec.Close()
	buf := beep.NewBuffer(format)
	buf.Append(dec)
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return buf, nil
}
