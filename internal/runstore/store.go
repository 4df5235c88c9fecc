// Package runstore keeps an advisory SQLite history of executor runs.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run ID does not exist
var ErrNotFound = errors.New("run not found")

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new running record. An empty ID is filled with a
// fresh UUID and a zero CreatedAt with the current time.
func (s *Store) CreateRun(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunRunning
	}
	if run.Stage == "" {
		run.Stage = domain.StageReceived
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, prompt, project_name, slug, provider, status, stage, error, files_written, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Prompt,
		run.ProjectName,
		run.Slug,
		run.Provider,
		string(run.Status),
		string(run.Stage),
		run.Error,
		run.FilesWritten,
		formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run
func (s *Store) FinishRun(id string, status domain.RunStatus, stage domain.Stage, errMsg, slug string, filesWritten int) error {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, stage = ?, error = ?, slug = ?, files_written = ?, finished_at = ?
		WHERE id = ?
	`, string(status), string(stage), errMsg, slug, filesWritten, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Status domain.RunStatus
	Limit  int
}

// ListRuns returns runs matching the given options, newest first
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at DESC, id"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PruneBefore deletes finished runs created before cutoff and returns the
// number of rows removed. Running records are kept.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE created_at < ? AND status != ?`,
		formatTime(cutoff), string(domain.RunRunning))
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

const runColumns = `id, prompt, project_name, slug, provider, status, stage, error, files_written, created_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var run domain.Run
	var projectName, slug, provider, errMsg, finishedAt sql.NullString
	var status, stage, createdAt string

	err := sc.Scan(
		&run.ID,
		&run.Prompt,
		&projectName,
		&slug,
		&provider,
		&status,
		&stage,
		&errMsg,
		&run.FilesWritten,
		&createdAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ProjectName = projectName.String
	run.Slug = slug.String
	run.Provider = provider.String
	run.Error = errMsg.String
	run.Status = domain.RunStatus(status)
	run.Stage = domain.Stage(stage)

	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
