/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrConfigInvalid marks a persisted word bank that cannot be used.
	ErrConfigInvalid = errors.New("stored word bank is invalid")

	// ErrInvalidOperation is the parent of every rejected game action.
	ErrInvalidOperation = errors.New("invalid operation")

	ErrAlreadyRunning  = fmt.Errorf("%w: game already running", ErrInvalidOperation)
	ErrNotRunning      = fmt.Errorf("%w: game not running", ErrInvalidOperation)
	ErrNotIdle         = fmt.Errorf("%w: game has ended, reset first", ErrInvalidOperation)
	ErrNoTheme         = fmt.Errorf("%w: no theme selected", ErrInvalidOperation)
	ErrNoQuestions     = fmt.Errorf("%w: theme has no words", ErrInvalidOperation)
	ErrPassLimit       = fmt.Errorf("%w: pass limit reached", ErrInvalidOperation)
	ErrInvalidSettings = fmt.Errorf("%w: invalid settings", ErrInvalidOperation)
	ErrNotEditing      = fmt.Errorf("%w: word list is not open", ErrInvalidOperation)
	ErrNotHost         = fmt.Errorf("%w: only the host may do that", ErrInvalidOperation)

	ErrEmptyWord     = errors.New("word is empty")
	ErrDuplicateWord = errors.New("word already exists")
	ErrUnknownTheme  = errors.New("unknown theme")
)

// rejectionReason maps an error onto the short code sent to clients.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyWord):
		return "empty_word"
	case errors.Is(err, ErrDuplicateWord):
		return "duplicate_word"
	case errors.Is(err, ErrUnknownTheme):
		return "unknown_theme"
	case errors.Is(err, ErrPassLimit):
		return "pass_limit"
	case errors.Is(err, ErrNoTheme):
		return "no_theme"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	default:
		return "error"
	}
}

func newLogger(cfg *Config, w io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: logDate,
		NoColor:    true,
		FormatLevel: func(i any) string {
			return strings.ToUpper(fmt.Sprintf("| %-5s |", i))
		},
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

// since is a small helper for request timing in log lines.
func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Microsecond)
}
