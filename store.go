/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// customWordsKey is the key a host's edited word bank is stored under.
const customWordsKey = "customQuestions"

var ErrNotFound = errors.New("key not found")

// Store holds a single persisted value.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, value []byte) error
	Delete(ctx context.Context) error
}

// KeyValue hands out Stores bound to individual keys.
type KeyValue interface {
	Store(key string) Store
	Close() error
}

func openKeyValue(path string) (KeyValue, error) {
	if path == "" {
		return newMemoryKeyValue(), nil
	}

	return openSQLite(path)
}

type memoryKeyValue struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryKeyValue() *memoryKeyValue {
	return &memoryKeyValue{values: make(map[string][]byte)}
}

func (m *memoryKeyValue) Store(key string) Store {
	return &memoryStore{kv: m, key: key}
}

func (m *memoryKeyValue) Close() error {
	return nil
}

type memoryStore struct {
	kv  *memoryKeyValue
	key string
}

func (s *memoryStore) Load(_ context.Context) ([]byte, error) {
	s.kv.mu.Lock()
	defer s.kv.mu.Unlock()

	v, ok := s.kv.values[s.key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), v...), nil
}

func (s *memoryStore) Save(_ context.Context, value []byte) error {
	s.kv.mu.Lock()
	defer s.kv.mu.Unlock()

	s.kv.values[s.key] = append([]byte(nil), value...)

	return nil
}

func (s *memoryStore) Delete(_ context.Context) error {
	s.kv.mu.Lock()
	defer s.kv.mu.Unlock()

	delete(s.kv.values, s.key)

	return nil
}

type sqliteKeyValue struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteKeyValue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer is plenty for a handful of small keys.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteKeyValue{db: db}, nil
}

func (kv *sqliteKeyValue) Store(key string) Store {
	return &sqliteStore{db: kv.db, key: key}
}

func (kv *sqliteKeyValue) Close() error {
	return kv.db.Close()
}

type sqliteStore struct {
	db  *sql.DB
	key string
}

func (s *sqliteStore) Load(ctx context.Context) ([]byte, error) {
	var value []byte

	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", s.key, err)
	}

	return value, nil
}

func (s *sqliteStore) Save(ctx context.Context, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %q: %w", s.key, err)
	}

	return nil
}

func (s *sqliteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("delete %q: %w", s.key, err)
	}

	return nil
}
