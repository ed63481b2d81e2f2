// Copyright 2025 Longwave Instruments
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // sqlite driver, cgo-free for embedded targets

	"github.com/longwave/seriallogd/internal/message"
	"github.com/longwave/seriallogd/internal/metrics"
	"github.com/longwave/seriallogd/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	source   TEXT NOT NULL,
	kind     TEXT NOT NULL,
	body     TEXT NOT NULL,
	received TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_received ON records(received);
`

// SQLiteSink persists records to a local sqlite database. Unlike the file
// backend it also records command traffic, which is useful when auditing
// what the dispatcher saw around an incident.
type SQLiteSink struct {
	path    string
	metrics *metrics.Metrics

	db     *sql.DB
	insert *sql.Stmt
}

// NewSQLiteSink creates a sink writing to cfg.Path, defaulting to records.db
// under cfg.Dir.
func NewSQLiteSink(cfg Config, m *metrics.Metrics) (*SQLiteSink, error) {
	path := cfg.Path
	if path == "" {
		if cfg.Dir == "" {
			return nil, errors.New("sqlite sink requires a path or directory")
		}
		path = filepath.Join(cfg.Dir, "records.db")
	}
	return &SQLiteSink{path: path, metrics: m}, nil
}

// Open connects, applies the schema, and prepares the insert statement.
func (s *SQLiteSink) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.Wrapf(err, "opening sqlite sink %s", s.path)
	}
	// The sink has exactly one writer: the dispatcher's routing loop.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return errors.Wrap(err, "enabling WAL")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return errors.Wrap(err, "applying sink schema")
	}

	insert, err := db.PrepareContext(ctx,
		"INSERT INTO records(source, kind, body, received) VALUES(?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return errors.Wrap(err, "preparing sink insert")
	}

	s.db = db
	s.insert = insert
	return nil
}

// Log appends one message as a row.
func (s *SQLiteSink) Log(msg message.Message) error {
	if s.db == nil {
		return errors.New("sink is not open")
	}

	var source, body string
	received := time.Now()
	switch m := msg.(type) {
	case message.DataRecord:
		source = m.Source
		body = m.Text
		received = m.Received
	case message.Command:
		body = m.Signal.String()
		if m.Payload != nil {
			body = fmt.Sprintf("%s %v", body, m.Payload)
		}
	default:
		return nil
	}

	if _, err := s.insert.Exec(source, msg.Kind().String(), body, received); err != nil {
		s.metrics.IncSinkError()
		return errors.Wrap(err, "inserting record")
	}
	s.metrics.IncSinkRecord()
	return nil
}

// Rotate checkpoints the WAL; sqlite needs no file switch.
func (s *SQLiteSink) Rotate() error {
	if s.db == nil {
		return errors.New("sink is not open")
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	if s.db == nil {
		return nil
	}
	if s.insert != nil {
		_ = s.insert.Close()
	}
	err := s.db.Close()
	s.db = nil
	return err
}
