package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timestampLayout has fixed-width fractions so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one classification attempt.
type Record struct {
	ID          int64
	SessionID   string
	HashKey     string
	Command     string
	Port        uint16
	DisplayName string
	Category    string
	Source      string
	Confidence  float64
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Journal persists classification history in SQLite.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSessionID returns a fresh identifier for one learn run.
func NewSessionID() string {
	return uuid.NewString()
}

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("open journal: path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("ensure journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path, now: time.Now}
	if err := j.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record inserts rec and returns its row id. A zero CreatedAt is stamped with
// the current time.
func (j *Journal) Record(ctx context.Context, rec Record) (int64, error) {
	created := rec.CreatedAt
	if created.IsZero() {
		created = j.now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO analyses (
            session_id, hash_key, command, port, display_name, category,
            source, confidence, error, duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.HashKey,
		rec.Command,
		nullablePort(rec.Port),
		rec.DisplayName,
		rec.Category,
		rec.Source,
		rec.Confidence,
		nullableString(rec.Error),
		rec.Duration.Milliseconds(),
		created.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, hash_key, command, port, display_name, category,
                source, confidence, error, duration_ms, created_at
           FROM analyses
          ORDER BY created_at DESC, id DESC
          LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return records, nil
}

// CountBySource tallies records per classification source.
func (j *Journal) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT source, COUNT(1) FROM analyses GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec        Record
		port       sql.NullInt64
		errText    sql.NullString
		durationMS int64
		created    string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.HashKey,
		&rec.Command,
		&port,
		&rec.DisplayName,
		&rec.Category,
		&rec.Source,
		&rec.Confidence,
		&errText,
		&durationMS,
		&created,
	); err != nil {
		return Record{}, fmt.Errorf("scan analysis: %w", err)
	}
	if port.Valid {
		rec.Port = uint16(port.Int64)
	}
	rec.Error = errText.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	ts, err := time.Parse(timestampLayout, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullablePort(port uint16) any {
	if port == 0 {
		return nil
	}
	return int64(port)
}
