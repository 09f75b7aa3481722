/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and a clean exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"agentchar/internal/config"
	applog "agentchar/internal/log"
	"agentchar/internal/telemetry"
	"agentchar/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// Recover captures a panic, logs it with the stack, writes a report and
// exits with code 2. characterPath names the definition being run, if any.
//
// Usage: defer crash.Recover(path)
func Recover(characterPath string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(characterPath, r, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
	}
	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	_ = applog.Close()
	exitFn(2)
}

// reportDir is <config dir>/crashes, or the temp dir when that is unavailable.
func reportDir() string {
	if dir, err := config.ConfigDir(); err == nil {
		d := filepath.Join(dir, "crashes")
		if err := os.MkdirAll(d, 0o755); err == nil {
			return d
		}
	}
	return os.TempDir()
}

func writeReport(characterPath string, panicVal any, stack []byte) (string, error) {
	now := time.Now()
	path := filepath.Join(reportDir(), fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "AgentChar Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if characterPath != "" {
		_, _ = fmt.Fprintf(&buf, "Character: %s\n", filepath.Base(characterPath))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// opt-in only; a no-op unless configured
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
