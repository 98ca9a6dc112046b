package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/classes"
	"liveclass/internal/metrics"
	"liveclass/internal/roster"
)

// Attendance event types published to class rooms.
const (
	EventJoined      = "student-joined"
	EventReconnected = "student-reconnected"
	EventLeft        = "student-left"
)

// Sessions is the read side of the session store used here.
type Sessions interface {
	Get(ctx context.Context, id string) (classes.Session, error)
	List(ctx context.Context, f classes.Filter) ([]classes.Session, error)
}

// Service reconciles join/leave events into attendance records.
type Service struct {
	store    Store
	sessions Sessions
	roster   roster.Roster
	pub      classes.Publisher
	log      *zap.Logger
	now      func() time.Time
}

var _ classes.Backfiller = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = func() time.Time { return now().UTC() } }
}

// WithPublisher broadcasts join/leave events.
func WithPublisher(pub classes.Publisher) Option {
	return func(s *Service) { s.pub = pub }
}

// NewService creates a service backed by the given stores.
func NewService(store Store, sessions Sessions, students roster.Roster, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    store,
		sessions: sessions,
		roster:   students,
		log:      log.Named("attendance"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinResult is the outcome of a join. AlreadyJoined marks the idempotent no-op.
type JoinResult struct {
	Record        Record `json:"attendance"`
	AlreadyJoined bool   `json:"alreadyJoined"`
}

func validateIDs(sessionID, studentID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrClassRequired
	}
	if strings.TrimSpace(studentID) == "" {
		return ErrStudentRequired
	}
	return nil
}

func (s *Service) ongoingSession(ctx context.Context, id string) (classes.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if errors.Is(err, classes.ErrNotFound) {
		return classes.Session{}, ErrClassNotActive
	}
	if err != nil {
		return classes.Session{}, err
	}
	if sess.Status != classes.StatusOngoing {
		return classes.Session{}, ErrClassNotActive
	}
	return sess, nil
}

func (s *Service) freshRecord(sessionID, studentID string, now time.Time) Record {
	return Record{
		SessionID: sessionID,
		StudentID: studentID,
		JoinTime:  now,
		Status:    StatusPartial,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Join records a student entering a live class. Without isReconnect an existing record is
// returned untouched; with it only the join time is refreshed.
func (s *Service) Join(ctx context.Context, sessionID, studentID string, isReconnect bool) (JoinResult, error) {
	if err := validateIDs(sessionID, studentID); err != nil {
		return JoinResult{}, err
	}
	if _, err := s.ongoingSession(ctx, sessionID); err != nil {
		return JoinResult{}, err
	}

	now := s.now()
	existing, err := s.store.Get(ctx, sessionID, studentID)
	if errors.Is(err, ErrNotFound) {
		var rec Record
		rec, err = s.store.Insert(ctx, s.freshRecord(sessionID, studentID, now))
		if err == nil {
			metrics.AttendanceEvents.WithLabelValues("join", string(rec.Status)).Inc()
			s.publish(ctx, rec, EventJoined)
			return JoinResult{Record: rec}, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return JoinResult{}, fmt.Errorf("insert attendance: %w", err)
		}
		// lost the insert race; continue with the winner's record
		existing, err = s.store.Get(ctx, sessionID, studentID)
	}
	if err != nil {
		return JoinResult{}, fmt.Errorf("load attendance: %w", err)
	}

	if !isReconnect {
		return JoinResult{Record: existing, AlreadyJoined: true}, nil
	}
	existing.JoinTime = now
	existing.UpdatedAt = now
	if err := s.store.Update(ctx, existing); err != nil {
		return JoinResult{}, fmt.Errorf("update attendance: %w", err)
	}
	metrics.AttendanceEvents.WithLabelValues("join", string(existing.Status)).Inc()
	s.publish(ctx, existing, EventJoined)
	return JoinResult{Record: existing}, nil
}

// Reconnect re-admits a student. The join time is only refreshed while the recorded
// duration is under MinPresentMinutes; the record always returns to partial and unmarked.
func (s *Service) Reconnect(ctx context.Context, sessionID, studentID string) (Record, error) {
	if err := validateIDs(sessionID, studentID); err != nil {
		return Record{}, err
	}
	if _, err := s.ongoingSession(ctx, sessionID); err != nil {
		return Record{}, err
	}

	now := s.now()
	rec, err := s.store.Get(ctx, sessionID, studentID)
	if errors.Is(err, ErrNotFound) {
		var created Record
		created, err = s.store.Insert(ctx, s.freshRecord(sessionID, studentID, now))
		if err == nil {
			metrics.AttendanceEvents.WithLabelValues("reconnect", string(created.Status)).Inc()
			s.publish(ctx, created, EventReconnected)
			return created, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return Record{}, fmt.Errorf("insert attendance: %w", err)
		}
		// lost the insert race; continue with the winner's record
		rec, err = s.store.Get(ctx, sessionID, studentID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load attendance: %w", err)
	}

	if rec.Duration < MinPresentMinutes {
		rec.JoinTime = now
	}
	rec.Status = StatusPartial
	rec.IsAttendanceMarked = false
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("update attendance: %w", err)
	}
	metrics.AttendanceEvents.WithLabelValues("reconnect", string(rec.Status)).Inc()
	s.publish(ctx, rec, EventReconnected)
	return rec, nil
}

// Leave closes a student's attendance and computes the final status.
func (s *Service) Leave(ctx context.Context, sessionID, studentID string) (Record, error) {
	if err := validateIDs(sessionID, studentID); err != nil {
		return Record{}, err
	}
	rec, err := s.store.Get(ctx, sessionID, studentID)
	if err != nil {
		return Record{}, err
	}

	now := s.now()
	minutes := int(now.Sub(rec.JoinTime) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	// recorded duration never decreases, so a rejoin that resets JoinTime cannot
	// lower the minutes already credited by an earlier leave
	if minutes < rec.Duration {
		minutes = rec.Duration
	}

	sessionMinutes := DefaultSessionMinutes
	sess, err := s.sessions.Get(ctx, sessionID)
	switch {
	case err == nil:
		sessionMinutes = sess.Duration
	case !errors.Is(err, classes.ErrNotFound):
		return Record{}, fmt.Errorf("load class: %w", err)
	}

	rec.LeaveTime = &now
	rec.Duration = minutes
	rec.Status = Classify(minutes, sessionMinutes)
	rec.IsAttendanceMarked = true
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("update attendance: %w", err)
	}
	metrics.AttendanceEvents.WithLabelValues("leave", string(rec.Status)).Inc()
	s.log.Debug("student left class",
		zap.String("class_id", sessionID),
		zap.String("student_id", studentID),
		zap.Int("minutes", minutes),
		zap.String("status", string(rec.Status)))
	s.publish(ctx, rec, EventLeft)
	return rec, nil
}

// BackfillAbsent creates marked absent records for roster students of the session's program
// who have none. Existing records are never touched, so repeated calls are harmless.
func (s *Service) BackfillAbsent(ctx context.Context, sess classes.Session) (int, error) {
	students, err := s.roster.ByProgram(ctx, sess.Program)
	if err != nil {
		return 0, fmt.Errorf("load roster %s: %w", sess.Program, err)
	}

	now := s.now()
	created := 0
	var errs []error
	for _, st := range students {
		ok, err := s.store.InsertIfMissing(ctx, Record{
			SessionID:          sess.ID,
			StudentID:          st.ID,
			JoinTime:           sess.StartTime,
			Duration:           0,
			Status:             StatusAbsent,
			IsAttendanceMarked: true,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("student %s: %w", st.ID, err))
			continue
		}
		if ok {
			created++
		}
	}
	metrics.AbsencesBackfilled.Add(float64(created))
	return created, errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, rec Record, eventType string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, classes.ClassRoom(rec.SessionID), eventType, rec); err != nil {
		s.log.Warn("publish attendance event failed", zap.String("event", eventType), zap.Error(err))
	}
}
