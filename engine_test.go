package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
)

type fakeTimer struct {
	starts  int
	stops   int
	running bool
}

func (t *fakeTimer) Start() {
	t.starts++
	t.running = true
}

func (t *fakeTimer) Stop() {
	t.stops++
	t.running = false
}

type staticBank WordBank

func (b staticBank) LoadActiveBank(context.Context) WordBank {
	return WordBank(b).clone()
}

func newTestEngine(t *testing.T, words ...string) (*Engine, *fakeTimer) {
	t.Helper()

	bank := defaultBank.clone()
	bank[ThemeAnimals] = words

	timer := &fakeTimer{}
	e := newEngine(staticBank(bank), timer, rand.New(rand.NewPCG(1, 2)))

	if err := e.SelectTheme(ThemeAnimals); err != nil {
		t.Fatalf("select theme: %v", err)
	}

	return e, timer
}

func mustStart(t *testing.T, e *Engine, s Settings) {
	t.Helper()

	if err := e.Start(context.Background(), s); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestPassLimitAndRecirculation(t *testing.T) {
	e, timer := newTestEngine(t, "w1", "w2", "w3")
	mustStart(t, e, Settings{Countdown: 60, PassLimit: 1, QuestionLimit: 3})

	if q := e.Snapshot().Question; q != "w1" {
		t.Fatalf("expected w1, got %q", q)
	}

	if err := e.MarkCorrect(); err != nil {
		t.Fatalf("correct w1: %v", err)
	}
	if s := e.Snapshot(); s.Score != 1 || s.Question != "w2" {
		t.Fatalf("expected score 1 on w2, got %d on %q", s.Score, s.Question)
	}

	if err := e.Pass(); err != nil {
		t.Fatalf("pass w2: %v", err)
	}
	s := e.Snapshot()
	if s.Passes != 1 || s.Question != "w3" {
		t.Fatalf("expected 1 pass on w3, got %d on %q", s.Passes, s.Question)
	}
	if s.CanPass {
		t.Fatal("expected pass to be unavailable at the limit")
	}

	if err := e.Pass(); !errors.Is(err, ErrPassLimit) {
		t.Fatalf("expected ErrPassLimit, got %v", err)
	}
	if s := e.Snapshot(); s.Passes != 1 || s.Question != "w3" {
		t.Fatalf("rejected pass changed state: %d passes on %q", s.Passes, s.Question)
	}

	if err := e.MarkCorrect(); err != nil {
		t.Fatalf("correct w3: %v", err)
	}
	if s := e.Snapshot(); s.Score != 2 || s.Question != "w2" {
		t.Fatalf("expected recirculated w2 at score 2, got %q at %d", s.Question, s.Score)
	}

	if err := e.MarkCorrect(); err != nil {
		t.Fatalf("correct w2: %v", err)
	}

	s = e.Snapshot()
	if s.Phase != PhaseEnded || s.Summary == nil {
		t.Fatalf("expected ended game with summary, got %+v", s)
	}
	want := Summary{Outcome: OutcomeAllCorrect, Score: 3, Total: 3, Accuracy: 100, Remaining: 60, Clock: "1:00"}
	if *s.Summary != want {
		t.Fatalf("expected %+v, got %+v", want, *s.Summary)
	}
	if timer.running || timer.stops != 1 {
		t.Fatalf("expected timer stopped once, got running=%v stops=%d", timer.running, timer.stops)
	}
}

func TestCountdownRunsOut(t *testing.T) {
	e, timer := newTestEngine(t, "w1", "w2")
	mustStart(t, e, Settings{Countdown: 5})

	for i := 0; i < 4; i++ {
		if err := e.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if s := e.Snapshot(); s.Phase != PhaseRunning || s.Remaining != 1 {
		t.Fatalf("expected running with 1s left, got %s with %d", s.Phase, s.Remaining)
	}

	if err := e.Tick(); err != nil {
		t.Fatalf("final tick: %v", err)
	}

	s := e.Snapshot()
	want := Summary{Outcome: OutcomeTimeUp, Score: 0, Total: 2, Accuracy: 0}
	if s.Summary == nil || *s.Summary != want {
		t.Fatalf("expected %+v, got %+v", want, s.Summary)
	}

	if err := e.Tick(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected stale tick to be rejected, got %v", err)
	}
	if timer.stops != 1 {
		t.Fatalf("expected one timer stop, got %d", timer.stops)
	}
}

func TestStartGuards(t *testing.T) {
	timer := &fakeTimer{}
	e := newEngine(staticBank(defaultBank), timer, rand.New(rand.NewPCG(1, 2)))

	if err := e.Start(context.Background(), Settings{Countdown: 60}); !errors.Is(err, ErrNoTheme) {
		t.Fatalf("expected ErrNoTheme, got %v", err)
	}

	if err := e.SelectTheme("cooking"); !errors.Is(err, ErrUnknownTheme) {
		t.Fatalf("expected ErrUnknownTheme, got %v", err)
	}

	if err := e.SelectTheme(ThemeJobs); err != nil {
		t.Fatalf("select theme: %v", err)
	}

	if err := e.Start(context.Background(), Settings{Countdown: 0}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if err := e.Start(context.Background(), Settings{Countdown: 10, PassLimit: -1}); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if timer.starts != 0 {
		t.Fatalf("expected no timer start, got %d", timer.starts)
	}

	mustStart(t, e, Settings{Countdown: 60})

	if err := e.Start(context.Background(), Settings{Countdown: 60}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := e.SelectTheme(ThemeMovies); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected theme change to be rejected, got %v", err)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := e.Start(context.Background(), Settings{Countdown: 60}); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("expected ErrNotIdle after end, got %v", err)
	}

	e.Reset()

	if err := e.Start(context.Background(), Settings{Countdown: 60}); !errors.Is(err, ErrNoTheme) {
		t.Fatalf("expected reset to clear the theme, got %v", err)
	}
}

func TestStartWithEmptyTheme(t *testing.T) {
	e, timer := newTestEngine(t)

	if err := e.Start(context.Background(), Settings{Countdown: 60}); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if e.Running() || timer.starts != 0 {
		t.Fatal("expected game not to start")
	}
}

func TestQuestionLimitTakesPrefix(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: len(defaultBank[ThemeAnimals])},
		{limit: 3, want: 3},
		{limit: 1000, want: len(defaultBank[ThemeAnimals])},
	}

	for _, tt := range tests {
		e := newEngine(staticBank(defaultBank), &fakeTimer{}, rand.New(rand.NewPCG(1, 2)))
		if err := e.SelectTheme(ThemeAnimals); err != nil {
			t.Fatalf("select theme: %v", err)
		}
		mustStart(t, e, Settings{Countdown: 60, QuestionLimit: tt.limit})

		var seen []string
		for e.Running() {
			seen = append(seen, e.Snapshot().Question)
			if err := e.MarkCorrect(); err != nil {
				t.Fatalf("correct: %v", err)
			}
		}

		if want := defaultBank[ThemeAnimals][:tt.want]; !slices.Equal(seen, want) {
			t.Fatalf("limit %d: expected %v, got %v", tt.limit, want, seen)
		}
	}
}

func TestActionsWhileIdle(t *testing.T) {
	e, timer := newTestEngine(t, "w1")

	for name, fn := range map[string]func() error{
		"correct": e.MarkCorrect,
		"pass":    e.Pass,
		"stop":    e.Stop,
		"tick":    e.Tick,
	} {
		if err := fn(); !errors.Is(err, ErrNotRunning) {
			t.Fatalf("%s: expected ErrNotRunning, got %v", name, err)
		}
	}

	if timer.stops != 0 {
		t.Fatalf("expected no timer stops, got %d", timer.stops)
	}
}

func TestUnlimitedPasses(t *testing.T) {
	e, _ := newTestEngine(t, "a", "b")
	mustStart(t, e, Settings{Countdown: 60, PassLimit: 0})

	for i := 0; i < 10; i++ {
		if err := e.Pass(); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	s := e.Snapshot()
	if s.Passes != 10 || !s.CanPass {
		t.Fatalf("expected 10 passes with more allowed, got %d (can pass %v)", s.Passes, s.CanPass)
	}
	if s.Question != "a" && s.Question != "b" {
		t.Fatalf("unexpected question %q", s.Question)
	}
}

func TestPassingEverythingKeepsEveryQuestion(t *testing.T) {
	words := []string{"a", "b", "c", "d", "e"}
	e, _ := newTestEngine(t, words...)
	mustStart(t, e, Settings{Countdown: 60})

	for range words {
		if err := e.Pass(); err != nil {
			t.Fatalf("pass: %v", err)
		}
	}

	var seen []string
	for e.Running() {
		seen = append(seen, e.Snapshot().Question)
		if err := e.MarkCorrect(); err != nil {
			t.Fatalf("correct: %v", err)
		}
	}

	slices.Sort(seen)
	if !slices.Equal(seen, words) {
		t.Fatalf("expected every word once, got %v", seen)
	}
	if s := e.Snapshot().Summary; s == nil || s.Outcome != OutcomeAllCorrect {
		t.Fatalf("expected all correct, got %+v", s)
	}
}

func TestPassingLastQuestionKeepsIt(t *testing.T) {
	e, _ := newTestEngine(t, "solo")
	mustStart(t, e, Settings{Countdown: 60})

	if err := e.Pass(); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if q := e.Snapshot().Question; q != "solo" {
		t.Fatalf("expected solo to come back, got %q", q)
	}
}

func TestStopAndReset(t *testing.T) {
	e, timer := newTestEngine(t, "w1", "w2", "w3", "w4")
	mustStart(t, e, Settings{Countdown: 90})

	_ = e.MarkCorrect()

	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := Summary{Outcome: OutcomeStopped, Score: 1, Total: 4, Accuracy: 25}
	if s := e.Snapshot().Summary; s == nil || *s != want {
		t.Fatalf("expected %+v, got %+v", want, s)
	}

	e.Reset()

	s := e.Snapshot()
	if s.Phase != PhaseIdle || s.Theme != "" || s.Summary != nil || s.Score != 0 || s.Clock != "0:00" {
		t.Fatalf("expected clean idle state, got %+v", s)
	}
	if timer.stops != 1 {
		t.Fatalf("reset after end should not stop the timer again, got %d stops", timer.stops)
	}
}

func TestResetWhileRunningStopsTimer(t *testing.T) {
	e, timer := newTestEngine(t, "w1")
	mustStart(t, e, Settings{Countdown: 90})

	e.Reset()

	if timer.running {
		t.Fatal("expected timer to be stopped")
	}
	if e.Running() {
		t.Fatal("expected engine to be idle")
	}
	if err := e.Tick(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected tick after reset to be rejected, got %v", err)
	}
}

func TestSnapshotClock(t *testing.T) {
	e, _ := newTestEngine(t, "w1", "w2")
	mustStart(t, e, Settings{Countdown: 31})

	s := e.Snapshot()
	if s.Clock != "0:31" || s.LowTime {
		t.Fatalf("expected 0:31 and not low, got %s low=%v", s.Clock, s.LowTime)
	}
	if s.Position != 1 || s.Total != 2 {
		t.Fatalf("expected position 1/2, got %d/%d", s.Position, s.Total)
	}

	_ = e.Tick()
	_ = e.MarkCorrect()

	s = e.Snapshot()
	if s.Clock != "0:30" || !s.LowTime {
		t.Fatalf("expected 0:30 and low, got %s low=%v", s.Clock, s.LowTime)
	}
	if s.Position != 2 {
		t.Fatalf("expected position 2, got %d", s.Position)
	}
}

func TestHandle(t *testing.T) {
	e := newEngine(staticBank(defaultBank), &fakeTimer{}, rand.New(rand.NewPCG(3, 4)))
	ctx := context.Background()

	d := e.Handle(ctx, Command{Type: CmdStart, Theme: ThemeSports, Settings: Settings{Countdown: 45, QuestionLimit: 2}})
	if d.Err != nil {
		t.Fatalf("start: %v", d.Err)
	}
	if d.State.Phase != PhaseRunning || d.State.Theme != ThemeSports || d.State.Question != "soccer" {
		t.Fatalf("unexpected state %+v", d.State)
	}

	d = e.Handle(ctx, Command{Type: CmdCorrect})
	if d.Err != nil || d.State.Score != 1 {
		t.Fatalf("expected score 1, got %d (%v)", d.State.Score, d.Err)
	}

	d = e.Handle(ctx, Command{Type: "dance"})
	if !errors.Is(d.Err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", d.Err)
	}
	if d.State.Score != 1 {
		t.Fatalf("rejected command changed state: %+v", d.State)
	}

	d = e.Handle(ctx, Command{Type: CmdReset})
	if d.Err != nil || d.State.Phase != PhaseIdle {
		t.Fatalf("expected idle after reset, got %s (%v)", d.State.Phase, d.Err)
	}
}

func TestRandomPlayInvariants(t *testing.T) {
	words := []string{"a", "b", "c", "d", "e", "f", "g"}

	for seed := uint64(0); seed < 200; seed++ {
		r := rand.New(rand.NewPCG(seed, seed*7+1))
		limit := r.IntN(4)

		e := newEngine(staticBank(WordBank{ThemeAnimals: words}), &fakeTimer{}, rand.New(rand.NewPCG(seed, 0)))
		_ = e.SelectTheme(ThemeAnimals)
		mustStart(t, e, Settings{Countdown: 40, PassLimit: limit})

		lastScore := 0
		for step := 0; step < 100 && e.Running(); step++ {
			switch r.IntN(3) {
			case 0:
				_ = e.MarkCorrect()
			case 1:
				_ = e.Pass()
			case 2:
				_ = e.Tick()
			}

			s := e.Snapshot()
			if s.Score < lastScore {
				t.Fatalf("seed %d: score went down from %d to %d", seed, lastScore, s.Score)
			}
			lastScore = s.Score

			if s.Score > s.Total {
				t.Fatalf("seed %d: score %d exceeds total %d", seed, s.Score, s.Total)
			}
			if limit > 0 && s.Passes > limit {
				t.Fatalf("seed %d: passes %d exceed limit %d", seed, s.Passes, limit)
			}
			if s.Score == s.Total && (s.Summary == nil || s.Summary.Outcome != OutcomeAllCorrect) {
				t.Fatalf("seed %d: full score without all_correct: %+v", seed, s.Summary)
			}
			if s.Phase == PhaseRunning && s.Question == "" {
				t.Fatalf("seed %d: running with no question", seed)
			}
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := map[int]string{
		-3:  "0:00",
		0:   "0:00",
		5:   "0:05",
		60:  "1:00",
		185: "3:05",
		600: "10:00",
	}

	for in, want := range tests {
		if got := formatClock(in); got != want {
			t.Fatalf("formatClock(%d): expected %q, got %q", in, want, got)
		}
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		score, total, want int
	}{
		{0, 5, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{3, 3, 100},
		{0, 0, 0},
	}

	for _, tt := range tests {
		if got := accuracy(tt.score, tt.total); got != tt.want {
			t.Fatalf("accuracy(%d, %d): expected %d, got %d", tt.score, tt.total, tt.want, got)
		}
	}
}
