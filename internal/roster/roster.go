package roster

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("student not found")
	ErrInvalidStudent = errors.New("student id and program are required")
)

// Student is a roster entry scoped to one program.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Program string `json:"program"`
}

// Roster resolves enrolled students.
type Roster interface {
	ByProgram(ctx context.Context, program string) ([]Student, error)
	Get(ctx context.Context, id string) (Student, error)
	// Lookup returns the known students among ids; unknown ids are omitted.
	Lookup(ctx context.Context, ids []string) (map[string]Student, error)
}

// Registry is a Roster that also accepts enrollments.
type Registry interface {
	Roster
	Upsert(ctx context.Context, s Student) (Student, error)
}
