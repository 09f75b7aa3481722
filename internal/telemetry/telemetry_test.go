/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agentchar/internal/config"
)

type recorder struct {
	mu      sync.Mutex
	events  [][]byte
	crashes [][]byte
	auth    []string
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.events = append(r.events, b)
		r.auth = append(r.auth, req.Header.Get("Authorization"))
		r.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.crashes = append(r.crashes, b)
		r.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events), len(r.crashes)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_EventAndUploadCrash(t *testing.T) {
	var rec recorder
	srv := rec.server(t)

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Token: "tok", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.Event(EventAnimationPlayed, map[string]any{"animation": "Wave"})
	c.Flush(context.Background())
	waitUntil(t, func() bool { n, _ := rec.counts(); return n > 0 })

	var m map[string]any
	if err := json.Unmarshal(rec.events[0], &m); err != nil {
		t.Fatalf("bad event json: %v", err)
	}
	if m["name"] != EventAnimationPlayed || m["animation"] != "Wave" {
		t.Fatalf("event mismatch: %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
	if rec.auth[0] != "Bearer tok" {
		t.Fatalf("missing bearer token: %q", rec.auth[0])
	}

	c.UploadCrash([]byte("STACKTRACE"))
	waitUntil(t, func() bool { _, n := rec.counts(); return n > 0 })
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL, Timeout: time.Second})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second})
	defer c2.Close()
	c2.Event("", nil)
	c2.Flush(nil)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash", Timeout: 50 * time.Millisecond, DebugLogging: true})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
	time.Sleep(100 * time.Millisecond)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(config.EnvTelemetryOptIn, "yes")
	t.Setenv(config.EnvTelemetryURL, "http://127.0.0.1:0")
	t.Setenv("AGENTCHAR_TELEMETRY_TIMEOUT_MS", "100")
	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
}

func TestFromAppConfigAndDefaultHelpers(t *testing.T) {
	var rec recorder
	srv := rec.server(t)
	ac := config.Defaults()
	ac.General.TelemetryOptIn = true
	ac.Telemetry.EventsURL = srv.URL + "/events"

	cfg := FromAppConfig(ac, "tok")
	if cfg.Token != "tok" || cfg.Timeout != 1500*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	NewDefault(cfg)
	t.Cleanup(func() { NewDefault(Config{}) })
	if !Enabled() {
		t.Fatalf("default client should be enabled")
	}
	AgentStarted("guid-1", 4)
	AnimationPlayed("guid-1", "Wave")
	waitUntil(t, func() bool { n, _ := rec.counts(); return n == 2 })
}
