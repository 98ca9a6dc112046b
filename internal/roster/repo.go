package roster

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
)

// Repository reads and writes the students table.
type Repository struct {
	db *sql.DB
}

var _ Registry = (*Repository)(nil)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ByProgram returns the students enrolled in program, ordered by id.
func (r *Repository) ByProgram(ctx context.Context, program string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, program
		FROM students
		WHERE program = $1
		ORDER BY id
	`, program)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Program); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Get returns a single student.
func (r *Repository) Get(ctx context.Context, id string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, email, program FROM students WHERE id = $1`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Program); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	return s, nil
}

// Lookup fetches several students in one query.
func (r *Repository) Lookup(ctx context.Context, ids []string) (map[string]Student, error) {
	out := make(map[string]Student, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	marks := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		marks = append(marks, "$"+strconv.Itoa(len(args)))
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, program FROM students WHERE id IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Program); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// Upsert creates or updates a student.
func (r *Repository) Upsert(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" || s.Program == "" {
		return Student{}, ErrInvalidStudent
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, email, program)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			program = EXCLUDED.program,
			updated_at = NOW()
	`, s.ID, s.Name, s.Email, s.Program)
	if err != nil {
		return Student{}, err
	}
	return s, nil
}
