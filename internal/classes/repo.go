package classes

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, title, description, start_time, duration, program, status,
	meeting_id, meeting_link, created_by, completed_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s           Session
		status      string
		meetingID   sql.NullString
		meetingLink sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.StartTime, &s.Duration, &s.Program, &status,
		&meetingID, &meetingLink, &s.CreatedBy, &completedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Session{}, err
	}
	s.Status = Status(status)
	if meetingID.Valid {
		s.MeetingID = &meetingID.String
	}
	if meetingLink.Valid {
		s.MeetingLink = &meetingLink.String
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	s.StartTime = s.StartTime.UTC()
	return s, nil
}

// Create inserts a session, assigning an id when missing.
func (r *Repository) Create(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, s.ID, s.Title, s.Description, s.StartTime, s.Duration, s.Program, string(s.Status),
		s.MeetingID, s.MeetingLink, s.CreatedBy, s.CompletedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Get returns a single session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

const updateSession = `
	UPDATE class_sessions
	SET title = $2, description = $3, start_time = $4, duration = $5, program = $6, status = $7,
		meeting_id = $8, meeting_link = $9, completed_at = $10, updated_at = $11
	WHERE id = $1`

func updateArgs(s Session) []any {
	return []any{s.ID, s.Title, s.Description, s.StartTime, s.Duration, s.Program, string(s.Status),
		s.MeetingID, s.MeetingLink, s.CompletedAt, s.UpdatedAt}
}

// Save overwrites the mutable columns of a session.
func (r *Repository) Save(ctx context.Context, s Session) error {
	res, err := r.db.ExecContext(ctx, updateSession, updateArgs(s)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveIf is Save guarded by the currently stored status.
func (r *Repository) SaveIf(ctx context.Context, s Session, from Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, updateSession+` AND status = $12`, append(updateArgs(s), string(from))...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns sessions matching f ordered by start time.
func (r *Repository) List(ctx context.Context, f Filter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions`
	args := []any{}
	clauses := []string{}
	if len(f.Statuses) > 0 {
		marks := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			args = append(args, string(st))
			marks = append(marks, "$"+strconv.Itoa(len(args)))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Program != "" {
		args = append(args, f.Program)
		clauses = append(clauses, "program = $"+strconv.Itoa(len(args)))
	}
	if !f.StartedBefore.IsZero() {
		args = append(args, f.StartedBefore)
		clauses = append(clauses, "start_time < $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
