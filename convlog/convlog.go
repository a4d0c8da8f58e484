// Package convlog records answered questions in a SQLite database.
//
// Logging is a caller concern: servers and CLIs write an Entry after each
// successful ask. The orchestrator never touches the log.
package convlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jonwraymond/ragcache/answer"
)

// DefaultLimit bounds Recent when no limit is given.
const DefaultLimit = 20

// ErrClosed is returned after Close.
var ErrClosed = errors.New("convlog: store is closed")

// Entry is one logged exchange.
type Entry struct {
	ID         int64           `json:"id"`
	RequestID  string          `json:"request_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Query      string          `json:"query"`
	Answer     string          `json:"answer"`
	AuxContext string          `json:"aux_context,omitempty"`
	Sources    []answer.Source `json:"sources"`
	Cached     bool            `json:"cached"`
	ViaVoice   bool            `json:"via_voice"`
}

// FromResult builds an Entry for an answered request.
func FromResult(req answer.Request, res answer.Result) Entry {
	return Entry{
		Query:      req.Query,
		Answer:     res.Answer,
		AuxContext: req.AuxContext,
		Sources:    res.Sources,
		Cached:     res.CacheHit,
	}
}

// Store writes and queries conversation entries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation log: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS conversations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id  TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		query       TEXT NOT NULL,
		answer      TEXT NOT NULL,
		aux_context TEXT NOT NULL DEFAULT '',
		sources     TEXT NOT NULL DEFAULT '[]',
		cached      INTEGER NOT NULL DEFAULT 0,
		via_voice   INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at)`)
	return err
}

// Log inserts e and returns its row ID. A missing RequestID is generated and
// a zero CreatedAt is set to now.
func (s *Store) Log(ctx context.Context, e Entry) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	sources := e.Sources
	if sources == nil {
		sources = []answer.Source{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return 0, fmt.Errorf("encode sources: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations
		(request_id, created_at, query, answer, aux_context, sources, cached, via_voice)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.CreatedAt.UnixMilli(), e.Query, e.Answer, e.AuxContext,
		string(data), e.Cached, e.ViaVoice,
	)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, created_at, query, answer, aux_context, sources, cached, via_voice
		FROM conversations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
			sources string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &created, &e.Query, &e.Answer,
			&e.AuxContext, &sources, &e.Cached, &e.ViaVoice); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("decode sources for row %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
