package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, session_id, student_id, join_time, leave_time, duration, status,
	is_attendance_marked, created_at, updated_at`

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r         Record
		status    string
		leaveTime sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.SessionID, &r.StudentID, &r.JoinTime, &leaveTime, &r.Duration, &status,
		&r.IsAttendanceMarked, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Record{}, err
	}
	r.Status = Status(status)
	r.JoinTime = r.JoinTime.UTC()
	if leaveTime.Valid {
		t := leaveTime.Time.UTC()
		r.LeaveTime = &t
	}
	return r, nil
}

// Get returns the record of one student in one session.
func (r *Repository) Get(ctx context.Context, sessionID, studentID string) (Record, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return Record{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert writes a new record. The (session_id, student_id) unique index turns a concurrent
// duplicate into ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.JoinTime, rec.LeaveTime, rec.Duration, string(rec.Status),
		rec.IsAttendanceMarked, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// InsertIfMissing inserts rec unless the pair already has a record.
func (r *Repository) InsertIfMissing(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.StudentID, rec.JoinTime, rec.LeaveTime, rec.Duration, string(rec.Status),
		rec.IsAttendanceMarked, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update writes the mutable columns of a record.
func (r *Repository) Update(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET join_time = $2, leave_time = $3, duration = $4, status = $5,
			is_attendance_marked = $6, updated_at = $7
		WHERE id = $1
	`, rec.ID, rec.JoinTime, rec.LeaveTime, rec.Duration, string(rec.Status), rec.IsAttendanceMarked, rec.UpdatedAt)
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

// ListBySession returns the records of one session ordered by join time.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil
	}
	return r.list(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY join_time, student_id
	`, sessionID)
}

// ListByStudent returns every record of one student.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.list(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY join_time DESC
	`, studentID)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
