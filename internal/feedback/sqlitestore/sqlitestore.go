// Package sqlitestore provides a SQLite implementation of feedback.Store for
// single-node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/harken/internal/feedback/sqlitestore")

//go:embed schema.sql
var schema string

// timeLayout is fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists feedback records in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file if needed, applies the schema and returns
// a ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema on db and returns a Store using it.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const feedbackColumns = `id, parent_name, parent_email, student_id, channel, message,
	sentiment, category, priority, department, status, sentiment_score, urgent, rules_version,
	created_at, updated_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Put inserts or replaces a record in a single transaction. created_at is
// kept from the first insert.
func (s *Store) Put(ctx context.Context, r *feedback.Record) error {
	ctx, span := startSpan(ctx, "sqlitestore.Put", "UPSERT")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	_, err = tx.ExecContext(ctx, `INSERT INTO feedback (`+feedbackColumns+`)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT (id) DO UPDATE SET
		parent_name     = excluded.parent_name,
		parent_email    = excluded.parent_email,
		student_id      = excluded.student_id,
		channel         = excluded.channel,
		message         = excluded.message,
		sentiment       = excluded.sentiment,
		category        = excluded.category,
		priority        = excluded.priority,
		department      = excluded.department,
		status          = excluded.status,
		sentiment_score = excluded.sentiment_score,
		urgent          = excluded.urgent,
		rules_version   = excluded.rules_version,
		updated_at      = excluded.updated_at`,
		r.ID, r.ParentName, r.ParentEmail, r.StudentID, r.Channel, r.Message,
		string(r.Sentiment), string(r.Category), string(r.Priority), r.Department, string(r.Status),
		r.SentimentScore, r.Urgent, r.RulesVersion, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert feedback: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*feedback.Record, bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Get", "SELECT")
	defer span.End()

	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, err)
	}
	return r, true, nil
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f feedback.Filter) ([]*feedback.Record, error) {
	ctx, span := startSpan(ctx, "sqlitestore.List", "SELECT")
	defer span.End()

	where, args := buildWhere(f)
	args = append(args, f.EffectiveLimit())
	query := `SELECT ` + feedbackColumns + ` FROM feedback` + where + ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query feedback: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := []*feedback.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate feedback: %w", err))
	}
	return out, nil
}

func buildWhere(f feedback.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Department != "" {
		conds = append(conds, "department = ?")
		args = append(args, f.Department)
	}
	if f.Sentiment != "" {
		conds = append(conds, "sentiment = ?")
		args = append(args, string(f.Sentiment))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if ps := f.Priorities(); ps != nil {
		if len(ps) == 0 {
			conds = append(conds, "1 = 0")
		} else {
			conds = append(conds, "priority IN ("+strings.TrimSuffix(strings.Repeat("?,", len(ps)), ",")+")")
			for _, p := range ps {
				args = append(args, string(p))
			}
		}
	}
	if !f.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, formatTime(f.CreatedBefore))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SetStatus updates the status of a record whose current status is from.
func (s *Store) SetStatus(ctx context.Context, id string, from, to triage.Status, at time.Time) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.SetStatus", "UPDATE")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(at), id, string(from),
	)
	if err != nil {
		return false, fail(span, fmt.Errorf("update status: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, fmt.Errorf("rows affected: %w", err))
	}
	return n == 1, nil
}

// SeedDepartments inserts missing departments in one transaction.
func (s *Store) SeedDepartments(ctx context.Context, depts []feedback.Department) error {
	ctx, span := startSpan(ctx, "sqlitestore.SeedDepartments", "INSERT")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	for _, d := range depts {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO departments (name, description) VALUES (?, ?)`,
			d.Name, d.Description,
		); err != nil {
			return fail(span, fmt.Errorf("insert department %q: %w", d.Name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Departments returns all departments ordered by name.
func (s *Store) Departments(ctx context.Context) ([]feedback.Department, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Departments", "SELECT")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT name, description FROM departments ORDER BY name`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query departments: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := []feedback.Department{}
	for rows.Next() {
		var d feedback.Department
		if err := rows.Scan(&d.Name, &d.Description); err != nil {
			return nil, fail(span, fmt.Errorf("scan department: %w", err))
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate departments: %w", err))
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one row. sql.ErrNoRows is returned unwrapped.
func scanRecord(row scanner) (*feedback.Record, error) {
	var r feedback.Record
	var sentiment, category, priority, status, createdAt, updatedAt string
	err := row.Scan(
		&r.ID, &r.ParentName, &r.ParentEmail, &r.StudentID, &r.Channel, &r.Message,
		&sentiment, &category, &priority, &r.Department, &status,
		&r.SentimentScore, &r.Urgent, &r.RulesVersion, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.Sentiment = triage.Sentiment(sentiment)
	r.Category = triage.Category(category)
	r.Priority = triage.Priority(priority)
	r.Status = triage.Status(status)

	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return &r, nil
}
