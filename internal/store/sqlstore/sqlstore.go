// Package sqlstore implements store.Repository on database/sql. Queries are
// written with ? placeholders and rebound per dialect, so the postgres and
// sqlite stores share one implementation.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"salonpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	// Goose is the goose dialect name used for migrations.
	Goose string
	// Numbered rewrites ? placeholders to $1, $2, ...
	Numbered bool
	// LockClause is appended to row reads that precede an update.
	LockClause string
	// TxOptions is used for read-modify-write transactions.
	TxOptions *sql.TxOptions
	// IsUniqueViolation reports a unique constraint failure from the driver.
	IsUniqueViolation func(error) bool
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect}
}

// Migrate applies every pending goose migration found in dir of fsys.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS, dir string) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(dialect.Goose); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders for numbered dialects.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) lock() string {
	if s.dialect.LockClause == "" {
		return ""
	}
	return " " + s.dialect.LockClause
}

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, s.dialect.TxOptions)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	at := val.Time.UTC()
	return &at
}

func encodeJSON(value any) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeJSON(raw string, target any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}
