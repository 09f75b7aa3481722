/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog indexes character definitions found on disk so hosts can
// list and search them. It stores into a local SQLite file by default or a
// shared Postgres database when given a postgres:// DSN.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"agentchar/internal/definition"
	applog "agentchar/internal/log"
	"agentchar/internal/version"
)

// schemaVersion is bumped together with a new step in migrate.
const schemaVersion = 2

var ErrNotFound = errors.New("character not found")

type dialect int

const (
	sqliteDialect dialect = iota
	postgresDialect
)

// Catalog is safe for concurrent use.
type Catalog struct {
	db  *sql.DB
	d   dialect
	log *slog.Logger
}

// Entry is one indexed character.
type Entry struct {
	GUID        string
	Name        string
	Description string
	Path        string
	Width       int
	Height      int
	Style       string
	Animations  []string
	States      []string
	UpdatedAt   time.Time
}

// FileError records a definition that could not be indexed.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

// ScanResult summarizes a directory scan.
type ScanResult struct {
	Indexed int
	Failed  []FileError
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to dsn and brings the schema up to date.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	l := applog.WithOperation(applog.WithComponent("catalog"), "open")
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("catalog dsn is required")
	}
	c := &Catalog{log: applog.WithComponent("catalog")}
	var err error
	if isPostgres(dsn) {
		c.d = postgresDialect
		c.db, err = sql.Open("pgx", dsn)
	} else {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
		c.db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(dsn)))
		if err == nil {
			c.db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := c.db.PingContext(ctx); err != nil {
		_ = c.db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if c.d == sqliteDialect {
		if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			l.Warn("enable WAL failed", slog.Any("err", err))
		}
	}
	if err := c.migrate(ctx); err != nil {
		_ = c.db.Close()
		return nil, err
	}
	l.Debug("catalog ready", slog.Bool("postgres", c.d == postgresDialect))
	return c, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error { return c.db.Close() }

// rebind turns ? placeholders into $n for Postgres.
func (c *Catalog) rebind(q string) string {
	if c.d != postgresDialect {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Catalog) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			guid        TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL,
			path        TEXT NOT NULL,
			width       INTEGER NOT NULL,
			height      INTEGER NOT NULL,
			style       TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS animations (
			guid        TEXT NOT NULL,
			name        TEXT NOT NULL,
			frames      INTEGER NOT NULL,
			duration    INTEGER NOT NULL,
			PRIMARY KEY (guid, name)
		)`,
		`CREATE TABLE IF NOT EXISTS states (
			guid        TEXT NOT NULL,
			name        TEXT NOT NULL,
			animations  TEXT NOT NULL,
			PRIMARY KEY (guid, name)
		)`,
	}
	for _, q := range ddl {
		if _, err := c.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	cur := 1
	var raw string
	err := c.db.QueryRowContext(ctx, c.rebind(`SELECT value FROM meta WHERE key=?`), "schema_version").Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		if cur, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("bad schema version %q: %w", raw, err)
		}
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{`CREATE INDEX IF NOT EXISTS idx_animations_name ON animations(name)`}
		}
		for _, q := range stmts {
			if _, err := c.db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("migration %d: %w", next, err)
			}
		}
		cur = next
	}
	return c.setMeta(ctx, c.db, map[string]string{
		"schema_version": strconv.Itoa(cur),
		"app":            version.String(),
	})
}

type execer interface {
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
}

func (c *Catalog) setMeta(ctx context.Context, ex execer, kv map[string]string) error {
	for k, v := range kv {
		if _, err := ex.ExecContext(ctx, c.rebind(`INSERT INTO meta(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value`), k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	return nil
}

// SchemaVersion returns the stored schema version.
func (c *Catalog) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	if err := c.db.QueryRowContext(ctx, c.rebind(`SELECT value FROM meta WHERE key=?`), "schema_version").Scan(&raw); err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// GUIDFor returns the definition GUID, or a stable name-based one derived
// from path when the definition has none.
func GUIDFor(path string, def *definition.Character) string {
	if def.Meta.GUID != uuid.Nil {
		return def.Meta.GUID.String()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

// Upsert stores def as found at path, replacing its previous rows.
func (c *Catalog) Upsert(ctx context.Context, path string, def *definition.Character) (err error) {
	guid := GUIDFor(path, def)
	var name, desc string
	if len(def.Infos) > 0 {
		name, desc = def.Infos[0].Name, def.Infos[0].Description
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err = tx.ExecContext(ctx, c.rebind(`INSERT INTO characters(guid, name, description, path, width, height, style, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET name=excluded.name, description=excluded.description, path=excluded.path,
			width=excluded.width, height=excluded.height, style=excluded.style, updated_at=excluded.updated_at`),
		guid, name, desc, path, def.Meta.Width, def.Meta.Height, def.Meta.Style.String(), now); err != nil {
		return fmt.Errorf("upsert character: %w", err)
	}
	for _, tbl := range []string{"animations", "states"} {
		if _, err = tx.ExecContext(ctx, c.rebind(`DELETE FROM `+tbl+` WHERE guid=?`), guid); err != nil {
			return fmt.Errorf("clear %s: %w", tbl, err)
		}
	}
	for _, n := range def.AnimationNames() {
		a := def.Animations[n]
		if _, err = tx.ExecContext(ctx, c.rebind(`INSERT INTO animations(guid, name, frames, duration) VALUES(?, ?, ?, ?)`),
			guid, n, len(a.Frames), a.TotalDuration()); err != nil {
			return fmt.Errorf("insert animation %s: %w", n, err)
		}
	}
	for _, n := range def.StateNames() {
		if _, err = tx.ExecContext(ctx, c.rebind(`INSERT INTO states(guid, name, animations) VALUES(?, ?, ?)`),
			guid, n, strings.Join(def.States[n].Animations, ",")); err != nil {
			return fmt.Errorf("insert state %s: %w", n, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Scan indexes every *.acd file below dir. Files that fail to parse are
// reported in the result and do not stop the scan.
func (c *Catalog) Scan(ctx context.Context, dir string) (ScanResult, error) {
	l := applog.WithOperation(c.log, "scan").With(slog.String("dir", dir))
	var res ScanResult
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".acd") {
			return nil
		}
		def, perr := definition.ParseFile(path)
		if perr == nil {
			perr = c.Upsert(ctx, path, def)
		}
		if perr != nil {
			l.Warn("definition skipped", slog.String("path", path), slog.Any("err", perr))
			res.Failed = append(res.Failed, FileError{Path: path, Err: perr})
			return nil
		}
		res.Indexed++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", dir, err)
	}
	l.Info("scan finished", slog.Int("indexed", res.Indexed), slog.Int("failed", len(res.Failed)))
	return res, nil
}

const selectEntry = `SELECT guid, name, description, path, width, height, style, updated_at FROM characters`

// List returns all entries ordered by name.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	return c.query(ctx, selectEntry+` ORDER BY name, guid`)
}

// Search matches query case-insensitively against names, descriptions and
// animation names.
func (c *Catalog) Search(ctx context.Context, query string) ([]Entry, error) {
	q := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return c.query(ctx, selectEntry+` WHERE LOWER(name) LIKE ? OR LOWER(description) LIKE ?
		OR guid IN (SELECT guid FROM animations WHERE LOWER(name) LIKE ?)
		ORDER BY name, guid`, q, q, q)
}

// Get returns one entry by GUID.
func (c *Catalog) Get(ctx context.Context, guid string) (Entry, error) {
	es, err := c.query(ctx, selectEntry+` WHERE guid=?`, guid)
	if err != nil {
		return Entry{}, err
	}
	if len(es) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, guid)
	}
	return es[0], nil
}

func (c *Catalog) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.GUID, &e.Name, &e.Description, &e.Path, &e.Width, &e.Height, &e.Style, &ts); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan character: %w", err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Animations, err = c.names(ctx, "animations", out[i].GUID); err != nil {
			return nil, err
		}
		if out[i].States, err = c.names(ctx, "states", out[i].GUID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Catalog) names(ctx context.Context, table, guid string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(`SELECT name FROM `+table+` WHERE guid=? ORDER BY name`), guid)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
