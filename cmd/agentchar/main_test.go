/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agentchar/internal/config"
	"agentchar/internal/version"
)

const fixture = "../../internal/definition/testdata/merlin.acd"

type memStore map[string]string

func (m memStore) Get(s, k string) (string, error) { return m[s+"/"+k], nil }
func (m memStore) Set(s, k, v string) error        { m[s+"/"+k] = v; return nil }
func (m memStore) Delete(s, k string) error        { delete(m, s+"/"+k); return nil }

// execute runs the CLI with an isolated config and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv(config.EnvTelemetryOptIn, "false")
	old := config.SetTokenStore(memStore{})
	t.Cleanup(func() { config.SetTokenStore(old) })

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, version.String()) {
		t.Fatalf("version output missing version: %q", out)
	}
}

func TestInspectSummary(t *testing.T) {
	out, err := execute(t, "inspect", fixture)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"0fb7e820-2d72-11d1-a5d6-00c04fb6de47", "128x128", "Greeting", "IdleBlink", "IdlingLevel1: IdleBlink"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestInspectJSON(t *testing.T) {
	out, err := execute(t, "inspect", "--json", fixture)
	if err != nil {
		t.Fatalf("inspect --json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	anims, ok := doc["animations"].(map[string]any)
	if !ok || anims["Greeting"] == nil {
		t.Fatalf("animations missing from JSON: %v", doc["animations"])
	}
}

func TestInspectRequiresPath(t *testing.T) {
	if _, err := execute(t, "inspect"); err == nil {
		t.Fatalf("expected argument error")
	}
	if _, err := execute(t, "inspect", "missing.acd"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCatalogScanAndList(t *testing.T) {
	dir := t.TempDir()
	b, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "merlin.acd"), b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dsn := filepath.Join(t.TempDir(), "catalog.db")
	out, err := execute(t, "catalog", "scan", "--dsn", dsn, dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "Indexed 1 character") {
		t.Fatalf("unexpected scan output: %q", out)
	}
	out, err = execute(t, "catalog", "list", "--dsn", dsn)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Merlin") {
		t.Fatalf("list missing Merlin: %q", out)
	}
	out, err = execute(t, "catalog", "search", "--dsn", dsn, "nobody")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "No characters found") {
		t.Fatalf("unexpected search output: %q", out)
	}
}

func TestExportPDF(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "merlin.pdf")
	if _, err := execute(t, "export", "pdf", fixture, dst); err != nil {
		t.Fatalf("export: %v", err)
	}
	if fi, err := os.Stat(dst); err != nil || fi.Size() == 0 {
		t.Fatalf("pdf not written: %v", err)
	}
}

func TestRunForDuration(t *testing.T) {
	out, err := execute(t, "run", "--duration", "1500ms", fixture)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "# completed=Greeting") {
		t.Fatalf("greeting completion not reported:\n%s", out)
	}
	if !strings.Contains(out, "[Merlin") {
		t.Fatalf("greeting balloon not shown:\n%s", out)
	}
}

func TestRedact(t *testing.T) {
	if got := redact("postgres://bob:pw@db:5432/agents"); got != "postgres://bob:***@db:5432/agents" {
		t.Fatalf("redact = %q", got)
	}
	if got := redact("/tmp/catalog.db"); got != "/tmp/catalog.db" {
		t.Fatalf("redact changed sqlite path: %q", got)
	}
}
