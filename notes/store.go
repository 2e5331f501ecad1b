// Package notes stores curriculum notes in sqlite. A note body is the raw
// text that the render pipeline turns into HTML.
package notes

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound  = errors.New("note not found")
	ErrDuplicate = errors.New("note slug already exists")
	ErrInvalid   = errors.New("note title is required")
)

type Note struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Course    string    `json:"course"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ListOptions struct {
	Limit  int
	Offset int
	Search string
	Course string
}

type Store struct {
	db  *sql.DB
	log *log.Logger
}

// Open opens the database at path, creating it and its directory if
// needed, and applies any pending migrations.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("could not open database %s: %w", path, err)
	}

	s := &Store{db: db, log: logger}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := s.db.Query("SELECT name FROM migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan migration name: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	files, err := fs.Glob(migrations, "migrations/V*.sql")
	if err != nil {
		return fmt.Errorf("failed to glob migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		name := filepath.Base(file)
		if applied[name] {
			continue
		}

		s.log.Printf("Running migration: %s", name)
		content, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (name) VALUES (?)", name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", name, err)
		}
	}

	return nil
}

const noteColumns = "id, slug, title, course, body, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Slug, &n.Title, &n.Course, &n.Body, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return n, ErrNotFound
	}
	return n, err
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Create inserts n and fills in its ID and timestamps. An empty slug is
// derived from the title.
func (s *Store) Create(ctx context.Context, n *Note) error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrInvalid
	}
	if n.Slug == "" {
		n.Slug = Slugify(n.Title)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (slug, title, course, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.Slug, n.Title, n.Course, n.Body, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, n.Slug)
	}
	if err != nil {
		return fmt.Errorf("could not insert note: %w", err)
	}

	n.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("could not read note id: %w", err)
	}
	n.CreatedAt, n.UpdatedAt = now, now
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (Note, error) {
	return scanNote(s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id))
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (Note, error) {
	return scanNote(s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE slug = ?", slug))
}

// List returns notes ordered by title. Search matches a substring of the
// title, Course an exact course name.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Note, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := "SELECT " + noteColumns + " FROM notes WHERE 1 = 1"
	var args []any
	if opts.Search != "" {
		query += " AND title LIKE ?"
		args = append(args, "%"+opts.Search+"%")
	}
	if opts.Course != "" {
		query += " AND course = ?"
		args = append(args, opts.Course)
	}
	query += " ORDER BY title, id LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Update replaces the title, slug, course and body of the note with n.ID.
func (s *Store) Update(ctx context.Context, n *Note) error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrInvalid
	}
	if n.Slug == "" {
		n.Slug = Slugify(n.Title)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET slug = ?, title = ?, course = ?, body = ?, updated_at = ?
		WHERE id = ?
	`, n.Slug, n.Title, n.Course, n.Body, now, n.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, n.Slug)
	}
	if err != nil {
		return fmt.Errorf("could not update note %d: %w", n.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	updated, err := s.Get(ctx, n.ID)
	if err != nil {
		return err
	}
	*n = updated
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("could not delete note %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Health reports connection pool statistics.
func (s *Store) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("could not connect to database: %v", err)
		return stats
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("could not count notes: %v", err)
		return stats
	}

	dbStats := s.db.Stats()
	stats["status"] = "up"
	stats["notes"] = strconv.Itoa(count)
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events."
	}
	return stats
}

func (s *Store) Close() error {
	return s.db.Close()
}
