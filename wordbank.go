/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// WordBank maps each theme to its ordered list of prompt words.
type WordBank map[Theme][]string

func (b WordBank) clone() WordBank {
	out := make(WordBank, len(b))
	for theme, words := range b {
		out[theme] = slices.Clone(words)
	}
	return out
}

// validate reports whether every required theme is present.
func (b WordBank) validate() error {
	for _, theme := range requiredThemes {
		if _, ok := b[theme]; !ok {
			return fmt.Errorf("%w: missing theme %q", ErrConfigInvalid, theme)
		}
	}
	return nil
}

func decodeWordBank(data []byte) (WordBank, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrConfigInvalid)
	}

	bank := make(WordBank, len(raw))
	for theme, words := range raw {
		if words == nil {
			words = []string{}
		}
		bank[Theme(theme)] = words
	}

	if err := bank.validate(); err != nil {
		return nil, err
	}

	return bank, nil
}

func encodeWordBank(b WordBank) ([]byte, error) {
	raw := make(map[string][]string, len(b))
	for theme, words := range b {
		if words == nil {
			words = []string{}
		}
		raw[string(theme)] = words
	}
	return json.Marshal(raw)
}

//go:embed words.yaml
var defaultWordsYAML []byte

var defaultBank = mustParseDefaultBank(defaultWordsYAML)

func parseDefaultBank(data []byte) (WordBank, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse default words: %w", err)
	}

	bank := make(WordBank, len(raw))
	for theme, words := range raw {
		bank[Theme(theme)] = words
	}

	if err := bank.validate(); err != nil {
		return nil, err
	}

	return bank, nil
}

func mustParseDefaultBank(data []byte) WordBank {
	bank, err := parseDefaultBank(data)
	if err != nil {
		panic(err)
	}
	return bank
}

// WordBankManager overlays a host's edited word bank on the built-in
// defaults and tracks an in-progress working copy for the editor.
type WordBankManager struct {
	store    Store
	defaults WordBank
	working  WordBank
	logger   zerolog.Logger
}

func newWordBankManager(store Store, defaults WordBank, logger zerolog.Logger) *WordBankManager {
	return &WordBankManager{
		store:    store,
		defaults: defaults,
		logger:   logger,
	}
}

// LoadActiveBank returns a copy of the stored override when it is valid and
// of the defaults otherwise. An invalid override is deleted.
func (m *WordBankManager) LoadActiveBank(ctx context.Context) WordBank {
	data, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return m.defaults.clone()
	case err != nil:
		m.logger.Error().Err(err).Msg("WORDS: Failed to read custom words, using defaults")
		return m.defaults.clone()
	}

	bank, err := decodeWordBank(data)
	if err != nil {
		m.logger.Warn().Err(err).Msg("WORDS: Discarding stored custom words")
		if err := m.store.Delete(ctx); err != nil {
			m.logger.Error().Err(err).Msg("WORDS: Failed to delete invalid custom words")
		}
		return m.defaults.clone()
	}

	return bank
}

// StartEditing replaces the working copy with a fresh copy of the active bank.
func (m *WordBankManager) StartEditing(ctx context.Context) {
	m.working = m.LoadActiveBank(ctx)
}

func (m *WordBankManager) Editing() bool {
	return m.working != nil
}

// Words returns the working list for theme.
func (m *WordBankManager) Words(theme Theme) []string {
	if m.working == nil {
		return nil
	}
	return slices.Clone(m.working[theme])
}

func (m *WordBankManager) AddWord(theme Theme, word string) error {
	if m.working == nil {
		return ErrNotEditing
	}
	if !theme.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}

	word = strings.TrimSpace(word)
	if word == "" {
		return ErrEmptyWord
	}

	if slices.Contains(m.working[theme], word) {
		return fmt.Errorf("%w: %q", ErrDuplicateWord, word)
	}

	m.working[theme] = append(m.working[theme], word)

	return nil
}

// DeleteWord removes the first exact match of word; a missing word is not an error.
func (m *WordBankManager) DeleteWord(theme Theme, word string) error {
	if m.working == nil {
		return ErrNotEditing
	}
	if !theme.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}

	if i := slices.Index(m.working[theme], word); i >= 0 {
		m.working[theme] = slices.Delete(m.working[theme], i, i+1)
	}

	return nil
}

// Save persists the working copy as the override bank.
func (m *WordBankManager) Save(ctx context.Context) error {
	if m.working == nil {
		return ErrNotEditing
	}

	data, err := encodeWordBank(m.working)
	if err != nil {
		return fmt.Errorf("encode words: %w", err)
	}

	if err := m.store.Save(ctx, data); err != nil {
		return err
	}

	return nil
}

// Reset drops the override and reloads the working copy from the defaults.
func (m *WordBankManager) Reset(ctx context.Context) error {
	if err := m.store.Delete(ctx); err != nil {
		return err
	}

	m.working = m.defaults.clone()

	return nil
}
