/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// lowTimeThreshold is the number of seconds at or below which the clock is
// shown as running low.
const lowTimeThreshold = 30

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseEnded   Phase = "ended"
)

type Outcome string

const (
	OutcomeAllCorrect Outcome = "all_correct"
	OutcomeTimeUp     Outcome = "time_up"
	OutcomeStopped    Outcome = "stopped"
)

// Settings are fixed for the lifetime of one game.
type Settings struct {
	Countdown     int `json:"countdown"`      // seconds
	PassLimit     int `json:"pass_limit"`     // 0 means unlimited
	QuestionLimit int `json:"question_limit"` // 0 means every word in the theme
}

func (s Settings) validate() error {
	if s.Countdown <= 0 {
		return fmt.Errorf("%w: countdown must be positive, got %d", ErrInvalidSettings, s.Countdown)
	}
	if s.PassLimit < 0 {
		return fmt.Errorf("%w: pass limit must not be negative, got %d", ErrInvalidSettings, s.PassLimit)
	}
	if s.QuestionLimit < 0 {
		return fmt.Errorf("%w: question limit must not be negative, got %d", ErrInvalidSettings, s.QuestionLimit)
	}
	return nil
}

// BankLoader supplies the word bank a game draws its questions from.
type BankLoader interface {
	LoadActiveBank(ctx context.Context) WordBank
}

// Timer is the repeating once-per-second countdown driving Tick.
type Timer interface {
	Start()
	Stop()
}

// Summary describes a finished game.
type Summary struct {
	Outcome   Outcome `json:"outcome"`
	Score     int     `json:"score"`
	Total     int     `json:"total"`
	Accuracy  int     `json:"accuracy"`            // percent
	Remaining int     `json:"remaining,omitempty"` // seconds, all_correct only
	Clock     string  `json:"clock,omitempty"`
}

// Snapshot is everything a client needs to render the game.
type Snapshot struct {
	Phase     Phase    `json:"phase"`
	Theme     Theme    `json:"theme,omitempty"`
	Question  string   `json:"question,omitempty"`
	Position  int      `json:"position"`
	Total     int      `json:"total"`
	Score     int      `json:"score"`
	Passes    int      `json:"passes"`
	PassLimit int      `json:"pass_limit"`
	CanPass   bool     `json:"can_pass"`
	Remaining int      `json:"remaining"`
	Clock     string   `json:"clock"`
	LowTime   bool     `json:"low_time"`
	Summary   *Summary `json:"summary,omitempty"`
}

type CommandType string

const (
	CmdSelectTheme CommandType = "select_theme"
	CmdStart       CommandType = "start"
	CmdCorrect     CommandType = "correct"
	CmdPass        CommandType = "pass"
	CmdStop        CommandType = "stop"
	CmdReset       CommandType = "reset"
	CmdTick        CommandType = "tick"
)

type Command struct {
	Type     CommandType
	Theme    Theme
	Settings Settings
}

// Delta is the result of handling one command. State is always current;
// Err is set, and nothing changed, when the command was rejected.
type Delta struct {
	State Snapshot
	Err   error
}

// Engine runs a single charades game: theme selection, the question queues,
// score, passes and the countdown. It is not safe for concurrent use; the
// owner serializes every call.
//
// Questions live in two queues. The current question is always the head of
// active followed by passed. Correct answers drop the head, passes move it to
// the back of passed, and once active runs dry the passed queue is shuffled
// and becomes the new active queue.
type Engine struct {
	bank  BankLoader
	timer Timer
	rng   *rand.Rand

	theme    Theme
	settings Settings
	phase    Phase

	active []string
	passed []string

	total     int
	score     int
	passes    int
	remaining int

	summary *Summary
}

func newEngine(bank BankLoader, timer Timer, rng *rand.Rand) *Engine {
	return &Engine{
		bank:  bank,
		timer: timer,
		rng:   rng,
		phase: PhaseIdle,
	}
}

func (e *Engine) Running() bool {
	return e.phase == PhaseRunning
}

// Handle dispatches cmd and returns the resulting state.
func (e *Engine) Handle(ctx context.Context, cmd Command) Delta {
	var err error

	switch cmd.Type {
	case CmdSelectTheme:
		err = e.SelectTheme(cmd.Theme)
	case CmdStart:
		if cmd.Theme != "" {
			err = e.SelectTheme(cmd.Theme)
		}
		if err == nil {
			err = e.Start(ctx, cmd.Settings)
		}
	case CmdCorrect:
		err = e.MarkCorrect()
	case CmdPass:
		err = e.Pass()
	case CmdStop:
		err = e.Stop()
	case CmdReset:
		e.Reset()
	case CmdTick:
		err = e.Tick()
	default:
		err = fmt.Errorf("%w: unknown command %q", ErrInvalidOperation, cmd.Type)
	}

	return Delta{State: e.Snapshot(), Err: err}
}

func (e *Engine) SelectTheme(theme Theme) error {
	switch e.phase {
	case PhaseRunning:
		return ErrAlreadyRunning
	case PhaseEnded:
		return ErrNotIdle
	}

	if !theme.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}

	e.theme = theme

	return nil
}

// Start begins a game on the selected theme, taking the first
// QuestionLimit words in stored order.
func (e *Engine) Start(ctx context.Context, settings Settings) error {
	switch e.phase {
	case PhaseRunning:
		return ErrAlreadyRunning
	case PhaseEnded:
		return ErrNotIdle
	}

	if e.theme == "" {
		return ErrNoTheme
	}

	if err := settings.validate(); err != nil {
		return err
	}

	words := e.bank.LoadActiveBank(ctx)[e.theme]
	if settings.QuestionLimit > 0 && len(words) > settings.QuestionLimit {
		words = words[:settings.QuestionLimit]
	}
	if len(words) == 0 {
		return fmt.Errorf("%w: %q", ErrNoQuestions, e.theme)
	}

	e.settings = settings
	e.active = slices.Clone(words)
	e.passed = nil
	e.total = len(words)
	e.score = 0
	e.passes = 0
	e.remaining = settings.Countdown
	e.summary = nil
	e.phase = PhaseRunning

	e.timer.Start()

	return nil
}

func (e *Engine) MarkCorrect() error {
	if e.phase != PhaseRunning {
		return ErrNotRunning
	}

	e.score++
	e.active = e.active[1:]

	if e.score >= e.total {
		e.end(OutcomeAllCorrect)
		return nil
	}

	e.advance()

	return nil
}

// Pass defers the current question. The pass that reaches the limit is
// allowed; only the one after it is rejected.
func (e *Engine) Pass() error {
	if e.phase != PhaseRunning {
		return ErrNotRunning
	}

	if e.settings.PassLimit > 0 && e.passes >= e.settings.PassLimit {
		return ErrPassLimit
	}

	e.passes++

	var question string
	if len(e.active) > 0 {
		question, e.active = e.active[0], e.active[1:]
	} else {
		question, e.passed = e.passed[0], e.passed[1:]
	}
	e.passed = append(e.passed, question)

	e.advance()

	return nil
}

func (e *Engine) Stop() error {
	if e.phase != PhaseRunning {
		return ErrNotRunning
	}

	e.end(OutcomeStopped)

	return nil
}

// Tick consumes one second of the countdown.
func (e *Engine) Tick() error {
	if e.phase != PhaseRunning {
		return ErrNotRunning
	}

	e.remaining--
	if e.remaining <= 0 {
		e.remaining = 0
		e.end(OutcomeTimeUp)
	}

	return nil
}

// Reset abandons any game in progress and returns to idle with no theme.
func (e *Engine) Reset() {
	if e.phase == PhaseRunning {
		e.timer.Stop()
	}

	e.theme = ""
	e.settings = Settings{}
	e.phase = PhaseIdle
	e.active = nil
	e.passed = nil
	e.total = 0
	e.score = 0
	e.passes = 0
	e.remaining = 0
	e.summary = nil
}

// advance recirculates the passed questions once active is exhausted.
func (e *Engine) advance() {
	if len(e.active) > 0 || len(e.passed) == 0 {
		return
	}

	e.shuffle(e.passed)
	e.active, e.passed = e.passed, nil
}

// shuffle is a Fisher-Yates shuffle.
func (e *Engine) shuffle(s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := e.rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

func (e *Engine) current() string {
	switch {
	case len(e.active) > 0:
		return e.active[0]
	case len(e.passed) > 0:
		return e.passed[0]
	}
	return ""
}

func (e *Engine) end(outcome Outcome) {
	e.phase = PhaseEnded
	e.timer.Stop()

	s := &Summary{
		Outcome:  outcome,
		Score:    e.score,
		Total:    e.total,
		Accuracy: accuracy(e.score, e.total),
	}
	if outcome == OutcomeAllCorrect {
		s.Remaining = e.remaining
		s.Clock = formatClock(e.remaining)
	}

	e.summary = s
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:     e.phase,
		Theme:     e.theme,
		Total:     e.total,
		Score:     e.score,
		Passes:    e.passes,
		PassLimit: e.settings.PassLimit,
		Remaining: e.remaining,
		Clock:     formatClock(e.remaining),
		LowTime:   e.phase == PhaseRunning && e.remaining <= lowTimeThreshold,
	}

	if e.phase == PhaseRunning {
		s.Question = e.current()
		s.Position = min(e.score+1, e.total)
		s.CanPass = e.settings.PassLimit == 0 || e.passes < e.settings.PassLimit
	}

	if e.summary != nil {
		summary := *e.summary
		s.Summary = &summary
	}

	return s
}

func accuracy(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}

// formatClock renders seconds as m:ss.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
