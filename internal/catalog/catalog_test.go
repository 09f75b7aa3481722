/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentchar/internal/definition"
)

const broken = "DefineCharacter\n    Width = wide\nEndCharacter\n"

func seedDir(t *testing.T) string {
	t.Helper()
	src, err := os.ReadFile("../definition/testdata/merlin.acd")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	dir := t.TempDir()
	sub := filepath.Join(dir, "chars")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, data := range map[string]string{
		"merlin.ACD":       string(src),
		"chars/broken.acd": broken,
		"chars/notes.txt":  "ignored",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Open(ctx, filepath.Join(t.TempDir(), "db", "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func exercise(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()
	res, err := c.Scan(ctx, seedDir(t))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Indexed != 1 || len(res.Failed) != 1 {
		t.Fatalf("unexpected scan result: %+v", res)
	}
	var pe *definition.ParseError
	if !errors.As(res.Failed[0].Err, &pe) {
		t.Fatalf("expected a parse error, got %v", res.Failed[0].Err)
	}

	list, err := c.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %v", list, err)
	}
	e := list[0]
	if e.Name != "Merlin" || e.Width != 128 || e.GUID != "0fb7e820-2d72-11d1-a5d6-00c04fb6de47" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if len(e.Animations) == 0 || len(e.States) == 0 {
		t.Fatalf("animations/states not indexed: %+v", e)
	}

	for _, q := range []string{"merl", "WIZARD", "idleblink"} {
		hits, err := c.Search(ctx, q)
		if err != nil || len(hits) != 1 {
			t.Fatalf("Search(%q) = %v, %v", q, hits, err)
		}
	}
	if hits, _ := c.Search(ctx, "clippy"); len(hits) != 0 {
		t.Fatalf("unexpected hits: %v", hits)
	}

	if _, err := c.Get(ctx, e.GUID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// rescanning replaces rows instead of duplicating them
	if _, err := c.Scan(ctx, seedDir(t)); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if list, _ := c.List(ctx); len(list) != 1 {
		t.Fatalf("rescan duplicated entries: %d", len(list))
	}
}

func TestSQLiteCatalog(t *testing.T) {
	c := openTemp(t)
	v, err := c.SchemaVersion(context.Background())
	if err != nil || v != schemaVersion {
		t.Fatalf("schema version %d, %v", v, err)
	}
	exercise(t, c)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	def := &definition.Character{Meta: definition.Meta{Width: 32, Height: 32}}
	if err := c.Upsert(ctx, "/chars/anon.acd", def); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_ = c.Close()

	c, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	e, err := c.Get(ctx, GUIDFor("/chars/anon.acd", def))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if e.Name != "anon" {
		t.Fatalf("expected file-derived name, got %q", e.Name)
	}
}

func TestRebindForPostgres(t *testing.T) {
	c := &Catalog{d: postgresDialect}
	if got := c.rebind("a=? AND b=?"); got != "a=$1 AND b=$2" {
		t.Fatalf("rebind: %q", got)
	}
	c.d = sqliteDialect
	if got := c.rebind("a=?"); got != "a=?" {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}

func TestPostgresCatalog(t *testing.T) {
	dsn := os.Getenv("AGENTCHAR_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AGENTCHAR_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer c.Close()
	for _, tbl := range []string{"animations", "states", "characters"} {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM "+tbl); err != nil {
			t.Fatalf("clean %s: %v", tbl, err)
		}
	}
	exercise(t, c)
}
