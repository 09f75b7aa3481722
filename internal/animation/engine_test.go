/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package animation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"agentchar/internal/definition"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// fixedRand returns queued values, then the last one forever.
type fixedRand struct {
	mu   sync.Mutex
	vals []int
}

func (r *fixedRand) IntN(int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[0]
	if len(r.vals) > 1 {
		r.vals = r.vals[1:]
	}
	return v
}

func frames(n int) []definition.Frame {
	out := make([]definition.Frame, n)
	for i := range out {
		out[i] = definition.Frame{Duration: 1}
	}
	return out
}

func anim(name string, fs []definition.Frame) *definition.Animation {
	return &definition.Animation{Name: name, Frames: fs}
}

func newEngine(clk *fakeClock, rnd Rand, as ...*definition.Animation) *Engine {
	m := map[string]*definition.Animation{}
	for _, a := range as {
		m[a.Name] = a
	}
	return New(m, Options{Now: clk.Now, Rand: rnd})
}

func step(e *Engine, clk *fakeClock) { e.Tick(clk.Advance(DefaultFrameUnit)) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSequentialAdvanceWraps(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("Walk", frames(3)))
	if !e.SetAnimation("Walk", false) {
		t.Fatalf("SetAnimation returned false")
	}
	var got []int
	for i := 0; i < 7; i++ {
		step(e, clk)
		got = append(got, e.CurrentFrameIndex())
	}
	want := []int{1, 2, 0, 1, 2, 0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sequence %v, want %v", got, want)
	}
}

func TestTickWaitsForFrameDuration(t *testing.T) {
	clk := newClock()
	fs := frames(2)
	fs[0].Duration = 5
	e := newEngine(clk, nil, anim("Slow", fs))
	e.SetAnimation("Slow", false)
	e.Tick(clk.Advance(49 * time.Millisecond))
	if e.CurrentFrameIndex() != 0 {
		t.Fatalf("advanced before duration elapsed")
	}
	e.Tick(clk.Advance(time.Millisecond))
	if e.CurrentFrameIndex() != 1 {
		t.Fatalf("expected advance at 50ms")
	}
}

func TestWeightedBranchSelection(t *testing.T) {
	fs := frames(11)
	fs[0].Branches = []definition.Branch{{Target: 5, Weight: 40}, {Target: 10, Weight: 60}}
	cases := map[int]int{0: 5, 39: 5, 40: 10, 99: 10}
	for draw, want := range cases {
		clk := newClock()
		e := newEngine(clk, &fixedRand{vals: []int{draw}}, anim("Idle", fs))
		e.SetAnimation("Idle", false)
		step(e, clk)
		if got := e.CurrentFrameIndex(); got != want {
			t.Fatalf("draw %d: got frame %d, want %d", draw, got, want)
		}
	}
}

func TestBranchGapFallsBackToSequential(t *testing.T) {
	fs := frames(5)
	fs[0].Branches = []definition.Branch{{Target: 3, Weight: 80}}
	cases := map[int]int{0: 3, 79: 3, 80: 1, 99: 1}
	for draw, want := range cases {
		clk := newClock()
		e := newEngine(clk, &fixedRand{vals: []int{draw}}, anim("Idle", fs))
		e.SetAnimation("Idle", false)
		step(e, clk)
		if got := e.CurrentFrameIndex(); got != want {
			t.Fatalf("draw %d: got frame %d, want %d", draw, got, want)
		}
	}
}

func TestOutOfRangeBranchTargetIsSequential(t *testing.T) {
	clk := newClock()
	fs := frames(3)
	fs[0].Branches = []definition.Branch{{Target: 9, Weight: 100}}
	e := newEngine(clk, &fixedRand{vals: []int{0}}, anim("A", fs))
	e.SetAnimation("A", false)
	step(e, clk)
	if e.CurrentFrameIndex() != 1 {
		t.Fatalf("expected sequential fallback, got %d", e.CurrentFrameIndex())
	}
}

func TestExitBranchTakesPriority(t *testing.T) {
	clk := newClock()
	fs := frames(4)
	exit := 3
	fs[0].ExitBranch = &exit
	fs[0].Branches = []definition.Branch{{Target: 1, Weight: 100}}
	e := newEngine(clk, &fixedRand{vals: []int{0}}, anim("A", fs))
	e.SetAnimation("A", false)
	e.RequestExit()
	step(e, clk)
	if e.CurrentFrameIndex() != 3 {
		t.Fatalf("expected exit branch target 3, got %d", e.CurrentFrameIndex())
	}
}

func TestUnknownAnimationLeavesStateUntouched(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("A", frames(2)))
	e.SetAnimation("A", false)
	step(e, clk)
	if e.SetAnimation("Nope", false) {
		t.Fatalf("SetAnimation of unknown name returned true")
	}
	err := e.PlayAnimation(context.Background(), "Nope", false)
	if !errors.Is(err, ErrUnknownAnimation) {
		t.Fatalf("expected ErrUnknownAnimation, got %v", err)
	}
	if err := e.InterruptAndPlay(context.Background(), "Nope"); !errors.Is(err, ErrUnknownAnimation) {
		t.Fatalf("expected ErrUnknownAnimation from interrupt, got %v", err)
	}
	if e.CurrentAnimationName() != "A" || e.CurrentFrameIndex() != 1 || e.Exiting() {
		t.Fatalf("state changed: %s/%d exiting=%v", e.CurrentAnimationName(), e.CurrentFrameIndex(), e.Exiting())
	}
}

func TestSetAnimationEmitsFrameThenCompleted(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("A", frames(2)), anim("B", frames(2)))
	var log []string
	e.OnFrameChanged(func(ev FrameEvent) { log = append(log, "frame:"+ev.Animation) })
	e.OnAnimationCompleted(func(name string) { log = append(log, "done:"+name) })
	e.SetAnimation("A", false)
	e.SetAnimation("B", false)
	want := []string{"frame:A", "frame:B", "done:A"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("unexpected events %v", log)
	}
}

func TestPlayAnimationResolvesAfterOneLoop(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("A", frames(3)))
	var completed []string
	var mu sync.Mutex
	e.OnAnimationCompleted(func(name string) {
		mu.Lock()
		completed = append(completed, name)
		mu.Unlock()
	})
	res := make(chan error, 1)
	go func() { res <- e.PlayAnimation(context.Background(), "A", false) }()
	waitFor(t, "animation start", func() bool { return e.CurrentAnimationName() == "A" })
	step(e, clk)
	step(e, clk)
	select {
	case err := <-res:
		t.Fatalf("resolved early: %v", err)
	default:
	}
	step(e, clk)
	if err := <-res; err != nil {
		t.Fatalf("PlayAnimation: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(completed, []string{"A"}) {
		t.Fatalf("expected one completion for A, got %v", completed)
	}
}

func TestInterruptWaitsForTerminalFrame(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("Loop", frames(3)), anim("X", frames(2)))
	e.SetAnimation("Loop", false)
	step(e, clk) // frame 1

	res := make(chan error, 1)
	go func() { res <- e.InterruptAndPlay(context.Background(), "X") }()
	waitFor(t, "exiting flag", e.Exiting)

	step(e, clk) // frame 2
	if e.CurrentAnimationName() != "Loop" || e.CurrentFrameIndex() != 2 {
		t.Fatalf("X started before terminal frame: %s/%d", e.CurrentAnimationName(), e.CurrentFrameIndex())
	}
	step(e, clk) // next would be 0: terminal, hold frame 2
	waitFor(t, "X to start", func() bool { return e.CurrentAnimationName() == "X" })
	if e.Exiting() {
		t.Fatalf("X should play in normal mode")
	}

	step(e, clk)
	step(e, clk)
	select {
	case err := <-res:
		if err != nil {
			t.Fatalf("InterruptAndPlay: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("InterruptAndPlay did not return after X looped")
	}
}

func TestInterruptFollowsExitBranchToTerminalFrame(t *testing.T) {
	clk := newClock()
	fs := frames(3)
	exit := 2
	fs[0].ExitBranch = &exit
	e := newEngine(clk, nil, anim("Loop", fs), anim("X", frames(2)))
	e.SetAnimation("Loop", false)

	res := make(chan error, 1)
	go func() { res <- e.InterruptAndPlay(context.Background(), "X") }()
	waitFor(t, "exiting flag", e.Exiting)

	step(e, clk) // exit branch skips frame 1
	if e.CurrentAnimationName() != "Loop" || e.CurrentFrameIndex() != 2 {
		t.Fatalf("expected Loop/2 via exit branch, got %s/%d", e.CurrentAnimationName(), e.CurrentFrameIndex())
	}
	if !e.Exiting() {
		t.Fatalf("exit branch frame must not end the exit sequence")
	}

	step(e, clk) // frame 2 is terminal
	waitFor(t, "X to start", func() bool { return e.CurrentAnimationName() == "X" })
	if e.CurrentFrameIndex() != 0 || e.Exiting() {
		t.Fatalf("X should start at frame 0 in normal mode, got %d exiting=%v", e.CurrentFrameIndex(), e.Exiting())
	}

	step(e, clk)
	step(e, clk)
	select {
	case err := <-res:
		if err != nil {
			t.Fatalf("InterruptAndPlay: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("InterruptAndPlay did not return after X looped")
	}
}

func TestInterruptWhenIdleStartsInExitMode(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("X", frames(2)))
	res := make(chan error, 1)
	go func() { res <- e.InterruptAndPlay(context.Background(), "X") }()
	waitFor(t, "X to start", func() bool { return e.CurrentAnimationName() == "X" })
	if !e.Exiting() {
		t.Fatalf("expected exit mode")
	}
	step(e, clk) // frame 1
	step(e, clk) // terminal
	if err := <-res; err != nil {
		t.Fatalf("InterruptAndPlay: %v", err)
	}
	if e.CurrentFrameIndex() != 1 {
		t.Fatalf("terminal frame should be held, got %d", e.CurrentFrameIndex())
	}
}

func TestLaterInterruptSupersedesEarlier(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("Loop", frames(2)), anim("A", frames(2)), anim("B", frames(2)))
	e.SetAnimation("Loop", false)

	first := make(chan error, 1)
	go func() { first <- e.InterruptAndPlay(context.Background(), "A") }()
	waitFor(t, "exiting flag", e.Exiting)
	second := make(chan error, 1)
	go func() { second <- e.InterruptAndPlay(context.Background(), "B") }()
	// give the second request time to register behind the first
	time.Sleep(20 * time.Millisecond)

	step(e, clk) // frame 1
	step(e, clk) // terminal
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected first interrupt superseded, got %v", err)
	}
	waitFor(t, "B to start", func() bool { return e.CurrentAnimationName() == "B" })
	step(e, clk)
	step(e, clk)
	if err := <-second; err != nil {
		t.Fatalf("second interrupt: %v", err)
	}
}

func TestNewPlayReleasesStaleWaiter(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("A", frames(2)), anim("B", frames(2)))
	first := make(chan error, 1)
	go func() { first <- e.PlayAnimation(context.Background(), "A", false) }()
	waitFor(t, "A to start", func() bool { return e.CurrentAnimationName() == "A" })

	second := make(chan error, 1)
	go func() { second <- e.PlayAnimation(context.Background(), "B", false) }()
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	waitFor(t, "B to start", func() bool { return e.CurrentAnimationName() == "B" })
	step(e, clk)
	step(e, clk)
	if err := <-second; err != nil {
		t.Fatalf("second play: %v", err)
	}
}

func TestPlayAnimationHonorsContext(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("A", frames(2)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := e.PlayAnimation(ctx, "A", false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStopReleasesWaiters(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("A", frames(2)))
	res := make(chan error, 1)
	go func() { res <- e.PlayAnimation(context.Background(), "A", false) }()
	waitFor(t, "A to start", e.IsAnimating)
	e.Stop()
	if err := <-res; !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := e.PlayAnimation(context.Background(), "A", false); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestSelectableAnimationsSkipIdle(t *testing.T) {
	clk := newClock()
	e := newEngine(clk, nil, anim("Wave", frames(1)), anim("IdleBlink", frames(1)), anim("idle2", frames(1)), anim("Alert", frames(1)))
	if got := e.SelectableAnimations(); !reflect.DeepEqual(got, []string{"Alert", "Wave"}) {
		t.Fatalf("unexpected selectable list %v", got)
	}
}
