// Package pgstore provides a PostgreSQL implementation of feedback.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/harken/internal/feedback/pgstore")

//go:embed schema.sql
var schema string

// Store persists feedback records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool and closes it.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

const feedbackColumns = `id, parent_name, parent_email, student_id, channel, message,
	sentiment, category, priority, department, status, sentiment_score, urgent, rules_version,
	created_at, updated_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Put inserts or updates a record in a single transaction.
func (s *Store) Put(ctx context.Context, r *feedback.Record) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	query := `INSERT INTO feedback (` + feedbackColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (id) DO UPDATE SET
		parent_name     = EXCLUDED.parent_name,
		parent_email    = EXCLUDED.parent_email,
		student_id      = EXCLUDED.student_id,
		channel         = EXCLUDED.channel,
		message         = EXCLUDED.message,
		sentiment       = EXCLUDED.sentiment,
		category        = EXCLUDED.category,
		priority        = EXCLUDED.priority,
		department      = EXCLUDED.department,
		status          = EXCLUDED.status,
		sentiment_score = EXCLUDED.sentiment_score,
		urgent          = EXCLUDED.urgent,
		rules_version   = EXCLUDED.rules_version,
		updated_at      = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, query,
		r.ID, r.ParentName, r.ParentEmail, r.StudentID, r.Channel, r.Message,
		string(r.Sentiment), string(r.Category), string(r.Priority), r.Department, string(r.Status),
		r.SentimentScore, r.Urgent, r.RulesVersion, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert feedback: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*feedback.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE id = $1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, err)
	}
	return r, true, nil
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f feedback.Filter) ([]*feedback.Record, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	where, args := buildWhere(f)
	args = append(args, f.EffectiveLimit())
	query := `SELECT ` + feedbackColumns + ` FROM feedback` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query feedback: %w", err))
	}
	defer rows.Close()

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
	span.SetAttributes(attribute.Int("db.response.returned_rows", len(out)))
	return out, nil
}

// buildWhere renders f as a WHERE clause with positional parameters.
func buildWhere(f feedback.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, strings.Replace(expr, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if f.Department != "" {
		add("department = ?", f.Department)
	}
	if f.Sentiment != "" {
		add("sentiment = ?", string(f.Sentiment))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Category != "" {
		add("category = ?", string(f.Category))
	}
	if ps := f.Priorities(); ps != nil {
		names := make([]string, len(ps))
		for i, p := range ps {
			names[i] = string(p)
		}
		add("priority = ANY(?)", names)
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at < ?", f.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SetStatus updates the status of a record whose current status is from.
func (s *Store) SetStatus(ctx context.Context, id string, from, to triage.Status, at time.Time) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.SetStatus", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE feedback SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at,
	)
	if err != nil {
		return false, fail(span, fmt.Errorf("update status: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

// SeedDepartments inserts missing departments in one transaction. Existing
// rows are left untouched.
func (s *Store) SeedDepartments(ctx context.Context, depts []feedback.Department) error {
	ctx, span := startSpan(ctx, "pgstore.SeedDepartments", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for _, d := range depts {
		_, err := tx.Exec(ctx,
			`INSERT INTO departments (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			d.Name, d.Description,
		)
		if err != nil {
			return fail(span, fmt.Errorf("insert department %q: %w", d.Name, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Departments returns all departments ordered by name.
func (s *Store) Departments(ctx context.Context) ([]feedback.Department, error) {
	ctx, span := startSpan(ctx, "pgstore.Departments", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT name, description FROM departments ORDER BY name`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query departments: %w", err))
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[feedback.Department])
	if err != nil {
		return nil, fail(span, fmt.Errorf("scan departments: %w", err))
	}
	return out, nil
}

// scanRecord scans a single row. pgx.ErrNoRows is returned unwrapped.
func scanRecord(row pgx.Row) (*feedback.Record, error) {
	var r feedback.Record
	var sentiment, category, priority, status string
	err := row.Scan(
		&r.ID, &r.ParentName, &r.ParentEmail, &r.StudentID, &r.Channel, &r.Message,
		&sentiment, &category, &priority, &r.Department, &status,
		&r.SentimentScore, &r.Urgent, &r.RulesVersion, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.Sentiment = triage.Sentiment(sentiment)
	r.Category = triage.Category(category)
	r.Priority = triage.Priority(priority)
	r.Status = triage.Status(status)
	return &r, nil
}
