// Package memstore keeps sessions, attendance records and the roster in process memory.
// It backs STORE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"liveclass/internal/attendance"
	"liveclass/internal/classes"
	"liveclass/internal/roster"
)

// DB holds all tables behind one lock.
type DB struct {
	mu       sync.RWMutex
	sessions map[string]classes.Session
	records  map[recordKey]attendance.Record
	students map[string]roster.Student
}

type recordKey struct {
	session string
	student string
}

// New returns an empty database.
func New() *DB {
	return &DB{
		sessions: make(map[string]classes.Session),
		records:  make(map[recordKey]attendance.Record),
		students: make(map[string]roster.Student),
	}
}

// Sessions returns the classes.Store view.
func (db *DB) Sessions() *Sessions { return &Sessions{db: db} }

// Attendance returns the attendance.Store view.
func (db *DB) Attendance() *Attendance { return &Attendance{db: db} }

// Roster returns the roster.Registry view.
func (db *DB) Roster() *Roster { return &Roster{db: db} }

// Sessions implements classes.Store.
type Sessions struct{ db *DB }

var _ classes.Store = (*Sessions)(nil)

// Create stores a session, assigning an ID when empty.
func (s *Sessions) Create(_ context.Context, sess classes.Session) (classes.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.db.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the session or classes.ErrNotFound.
func (s *Sessions) Get(_ context.Context, id string) (classes.Session, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	sess, ok := s.db.sessions[id]
	if !ok {
		return classes.Session{}, classes.ErrNotFound
	}
	return sess, nil
}

// Save overwrites an existing session.
func (s *Sessions) Save(_ context.Context, sess classes.Session) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.sessions[sess.ID]; !ok {
		return classes.ErrNotFound
	}
	s.db.sessions[sess.ID] = sess
	return nil
}

// SaveIf overwrites the session only while its stored status is still from.
func (s *Sessions) SaveIf(_ context.Context, sess classes.Session, from classes.Status) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.sessions[sess.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	s.db.sessions[sess.ID] = sess
	return true, nil
}

// List returns sessions matching f ordered by start time.
func (s *Sessions) List(_ context.Context, f classes.Filter) ([]classes.Session, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []classes.Session
	for _, sess := range s.db.sessions {
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, sess.Status) {
			continue
		}
		if f.Program != "" && sess.Program != f.Program {
			continue
		}
		if !f.StartedBefore.IsZero() && !sess.StartTime.Before(f.StartedBefore) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func hasStatus(list []classes.Status, s classes.Status) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}

// Attendance implements attendance.Store.
type Attendance struct{ db *DB }

var _ attendance.Store = (*Attendance)(nil)

// Get returns the record of a student in a session.
func (a *Attendance) Get(_ context.Context, sessionID, studentID string) (attendance.Record, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()
	rec, ok := a.db.records[recordKey{sessionID, studentID}]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

// Insert adds a record; a second record for the same pair is ErrDuplicate.
func (a *Attendance) Insert(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	key := recordKey{rec.SessionID, rec.StudentID}
	if _, ok := a.db.records[key]; ok {
		return attendance.Record{}, attendance.ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	a.db.records[key] = rec
	return rec, nil
}

// InsertIfMissing inserts rec unless the pair already has a record.
func (a *Attendance) InsertIfMissing(ctx context.Context, rec attendance.Record) (bool, error) {
	_, err := a.Insert(ctx, rec)
	if errors.Is(err, attendance.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

// Update replaces an existing record.
func (a *Attendance) Update(_ context.Context, rec attendance.Record) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	key := recordKey{rec.SessionID, rec.StudentID}
	cur, ok := a.db.records[key]
	if !ok || cur.ID != rec.ID {
		return attendance.ErrNotFound
	}
	a.db.records[key] = rec
	return nil
}

// ListBySession returns a session's records ordered by join time.
func (a *Attendance) ListBySession(_ context.Context, sessionID string) ([]attendance.Record, error) {
	return a.filter(func(r attendance.Record) bool { return r.SessionID == sessionID }), nil
}

// ListByStudent returns a student's records ordered by join time.
func (a *Attendance) ListByStudent(_ context.Context, studentID string) ([]attendance.Record, error) {
	return a.filter(func(r attendance.Record) bool { return r.StudentID == studentID }), nil
}

func (a *Attendance) filter(keep func(attendance.Record) bool) []attendance.Record {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()
	var out []attendance.Record
	for _, r := range a.db.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinTime.Equal(out[j].JoinTime) {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].JoinTime.Before(out[j].JoinTime)
	})
	return out
}

// Roster implements roster.Registry.
type Roster struct{ db *DB }

var _ roster.Registry = (*Roster)(nil)

// ByProgram returns the students enrolled in program.
func (r *Roster) ByProgram(_ context.Context, program string) ([]roster.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []roster.Student
	for _, s := range r.db.students {
		if s.Program == program {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a student or roster.ErrNotFound.
func (r *Roster) Get(_ context.Context, id string) (roster.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	return s, nil
}

// Lookup returns the known students among ids.
func (r *Roster) Lookup(_ context.Context, ids []string) (map[string]roster.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make(map[string]roster.Student, len(ids))
	for _, id := range ids {
		if s, ok := r.db.students[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// Upsert creates or replaces a student.
func (r *Roster) Upsert(_ context.Context, s roster.Student) (roster.Student, error) {
	if s.ID == "" || s.Program == "" {
		return roster.Student{}, roster.ErrInvalidStudent
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.students[s.ID] = s
	return s, nil
}
