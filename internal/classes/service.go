package classes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/metrics"
)

// Lifecycle event types published to program rooms.
const (
	EventCreated   = "class-created"
	EventUpdated   = "class-updated"
	EventStarted   = "class-started"
	EventEnded     = "class-ended"
	EventExpired   = "class-expired"
	EventCancelled = "class-cancelled"
)

// ProgramRoom is the broadcast room for lifecycle events of a program.
func ProgramRoom(program string) string {
	return "program:" + program
}

// ClassRoom is the broadcast room for attendance events of one session.
func ClassRoom(id string) string {
	return "class:" + id
}

// Options tunes the lifecycle thresholds.
type Options struct {
	// ExpireAfter is how long a never-started session may stay scheduled before the sweep
	// expires it.
	ExpireAfter time.Duration
	// ManualExpireAfter is the threshold used by CheckExpired.
	ManualExpireAfter time.Duration
	// UpcomingGrace keeps recently due sessions in the upcoming listing.
	UpcomingGrace time.Duration
	// Programs restricts the accepted program tags. Empty accepts any non-empty tag.
	Programs []string
	Now      func() time.Time
}

// Service drives the class lifecycle.
type Service struct {
	store    Store
	backfill Backfiller
	rooms    RoomProvider
	pub      Publisher
	log      *zap.Logger

	now               func() time.Time
	expireAfter       time.Duration
	manualExpireAfter time.Duration
	grace             time.Duration
	programs          map[string]bool
}

// NewService wires the lifecycle engine. pub may be nil.
func NewService(store Store, backfill Backfiller, rooms RoomProvider, pub Publisher, log *zap.Logger, opts Options) *Service {
	if opts.ExpireAfter <= 0 {
		opts.ExpireAfter = 5 * time.Minute
	}
	if opts.ManualExpireAfter <= 0 {
		opts.ManualExpireAfter = 5 * time.Minute
	}
	if opts.UpcomingGrace <= 0 {
		opts.UpcomingGrace = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	programs := make(map[string]bool, len(opts.Programs))
	for _, p := range opts.Programs {
		programs[p] = true
	}
	return &Service{
		store:             store,
		backfill:          backfill,
		rooms:             rooms,
		pub:               pub,
		log:               log.Named("classes"),
		now:               func() time.Time { return opts.Now().UTC() },
		expireAfter:       opts.ExpireAfter,
		manualExpireAfter: opts.ManualExpireAfter,
		grace:             opts.UpcomingGrace,
		programs:          programs,
	}
}

// CreateInput carries the fields of a new session.
type CreateInput struct {
	Title       string
	Description string
	StartTime   time.Time
	Duration    int
	Program     string
	CreatedBy   string
}

// UpdateInput carries a partial edit. Nil fields are left untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	Duration    *int
	Program     *string
}

// ActiveClass is the live session of a program.
type ActiveClass struct {
	Session
	RemainingMinutes int `json:"remainingMinutes"`
}

// SweepResult counts what a sweep changed.
type SweepResult struct {
	Expired    int `json:"expired"`
	Completed  int `json:"completed"`
	Backfilled int `json:"backfilled"`
}

func validDuration(d int) bool {
	return d >= MinDuration && d <= MaxDuration
}

func (s *Service) validProgram(p string) bool {
	if p == "" || p == AllPrograms {
		return false
	}
	return len(s.programs) == 0 || s.programs[p]
}

// Create stores a new scheduled session.
func (s *Service) Create(ctx context.Context, in CreateInput) (Session, error) {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return Session{}, ErrTitleRequired
	case in.StartTime.IsZero():
		return Session{}, ErrStartRequired
	case !validDuration(in.Duration):
		return Session{}, ErrInvalidDuration
	case !s.validProgram(in.Program):
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidProgram, in.Program)
	}

	now := s.now()
	sess, err := s.store.Create(ctx, Session{
		Title:       in.Title,
		Description: in.Description,
		StartTime:   in.StartTime.UTC(),
		Duration:    in.Duration,
		Program:     in.Program,
		Status:      StatusScheduled,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Session{}, fmt.Errorf("create class: %w", err)
	}
	s.publish(ctx, sess, EventCreated)
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.store.Get(ctx, id)
}

// Update edits a session that is still scheduled.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Session, error) {
	if in.Duration != nil && !validDuration(*in.Duration) {
		return Session{}, ErrInvalidDuration
	}
	if in.Program != nil && !s.validProgram(*in.Program) {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidProgram, *in.Program)
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return Session{}, ErrTitleRequired
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusScheduled {
		return Session{}, ErrNotEditable
	}

	if in.Title != nil {
		sess.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		sess.Description = *in.Description
	}
	if in.StartTime != nil && !in.StartTime.IsZero() {
		sess.StartTime = in.StartTime.UTC()
	}
	if in.Duration != nil {
		sess.Duration = *in.Duration
	}
	if in.Program != nil {
		sess.Program = *in.Program
	}
	sess.UpdatedAt = s.now()

	ok, err := s.store.SaveIf(ctx, sess, StatusScheduled)
	if err != nil {
		return Session{}, fmt.Errorf("update class %s: %w", id, err)
	}
	if !ok {
		return Session{}, ErrNotEditable
	}
	s.publish(ctx, sess, EventUpdated)
	return sess, nil
}

// Start takes a session live with a fresh meeting room. Prior status is not checked.
func (s *Service) Start(ctx context.Context, id string) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	room, err := s.rooms.CreateRoom(ctx, sess)
	if err != nil {
		return Session{}, fmt.Errorf("create meeting room for %s: %w", id, err)
	}

	sess.Status = StatusOngoing
	sess.MeetingID = &room.ID
	sess.MeetingLink = &room.Link
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("start class %s: %w", id, err)
	}
	metrics.SessionTransitions.WithLabelValues(string(StatusOngoing), "start").Inc()
	s.log.Info("class started", zap.String("class_id", id), zap.String("meeting_id", room.ID))
	s.publish(ctx, sess, EventStarted)
	return sess, nil
}

// End completes a session and backfills absences for roster students that never joined.
// The transition is kept even when the backfill fails.
func (s *Service) End(ctx context.Context, id string) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess.Status = StatusCompleted
	sess.clearMeeting()
	sess.CompletedAt = &now
	sess.UpdatedAt = now
	if err := s.store.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("end class %s: %w", id, err)
	}
	metrics.SessionTransitions.WithLabelValues(string(StatusCompleted), "end").Inc()
	s.publish(ctx, sess, EventEnded)

	if _, err := s.backfillAbsent(ctx, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Cancel moves a non-terminal session to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status.Terminal() {
		return Session{}, ErrTerminal
	}
	from := sess.Status
	sess.Status = StatusCancelled
	sess.clearMeeting()
	sess.UpdatedAt = s.now()

	ok, err := s.store.SaveIf(ctx, sess, from)
	if err != nil {
		return Session{}, fmt.Errorf("cancel class %s: %w", id, err)
	}
	if !ok {
		return Session{}, ErrConcurrentUpdate
	}
	metrics.SessionTransitions.WithLabelValues(string(StatusCancelled), "cancel").Inc()
	s.publish(ctx, sess, EventCancelled)
	return sess, nil
}

// CheckExpired force-expires scheduled sessions whose start is more than ManualExpireAfter
// in the past. Unlike the sweep it does not backfill absences.
func (s *Service) CheckExpired(ctx context.Context) ([]Session, error) {
	now := s.now()
	due, err := s.store.List(ctx, Filter{
		Statuses:      []Status{StatusScheduled},
		StartedBefore: now.Add(-s.manualExpireAfter),
	})
	if err != nil {
		return nil, fmt.Errorf("list overdue classes: %w", err)
	}

	expired := make([]Session, 0, len(due))
	var errs []error
	for _, sess := range due {
		sess.Status = StatusExpired
		sess.clearMeeting()
		sess.UpdatedAt = now
		ok, err := s.store.SaveIf(ctx, sess, StatusScheduled)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire class %s: %w", sess.ID, err))
			continue
		}
		if !ok {
			continue
		}
		metrics.SessionTransitions.WithLabelValues(string(StatusExpired), "check").Inc()
		s.publish(ctx, sess, EventExpired)
		expired = append(expired, sess)
	}
	return expired, errors.Join(errs...)
}

// Sweep expires stale scheduled sessions and completes overrun ongoing ones, backfilling
// absences on both transitions. Per-session failures are collected and the scan continues.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		res  SweepResult
		errs []error
	)
	now := s.now()
	metrics.SweepRuns.Inc()

	scheduled, err := s.store.List(ctx, Filter{Statuses: []Status{StatusScheduled}, StartedBefore: now})
	if err != nil {
		errs = append(errs, fmt.Errorf("list scheduled classes: %w", err))
	}
	for _, sess := range scheduled {
		if now.Sub(sess.StartTime) < s.expireAfter {
			continue
		}
		sess.Status = StatusExpired
		sess.clearMeeting()
		sess.UpdatedAt = now
		ok, err := s.store.SaveIf(ctx, sess, StatusScheduled)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire class %s: %w", sess.ID, err))
			continue
		}
		if !ok {
			continue
		}
		res.Expired++
		metrics.SessionTransitions.WithLabelValues(string(StatusExpired), "sweep").Inc()
		s.publish(ctx, sess, EventExpired)

		n, err := s.backfillAbsent(ctx, sess)
		res.Backfilled += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	ongoing, err := s.store.List(ctx, Filter{Statuses: []Status{StatusOngoing}})
	if err != nil {
		errs = append(errs, fmt.Errorf("list ongoing classes: %w", err))
	}
	for _, sess := range ongoing {
		if !now.After(sess.EndTime()) {
			continue
		}
		completedAt := now
		sess.Status = StatusCompleted
		sess.clearMeeting()
		sess.CompletedAt = &completedAt
		sess.UpdatedAt = now
		ok, err := s.store.SaveIf(ctx, sess, StatusOngoing)
		if err != nil {
			errs = append(errs, fmt.Errorf("complete class %s: %w", sess.ID, err))
			continue
		}
		if !ok {
			continue
		}
		res.Completed++
		metrics.SessionTransitions.WithLabelValues(string(StatusCompleted), "sweep").Inc()
		s.publish(ctx, sess, EventEnded)

		n, err := s.backfillAbsent(ctx, sess)
		res.Backfilled += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if res.Expired > 0 || res.Completed > 0 {
		s.log.Info("sweep applied transitions",
			zap.Int("expired", res.Expired),
			zap.Int("completed", res.Completed),
			zap.Int("backfilled", res.Backfilled))
	}
	return res, errors.Join(errs...)
}

// Upcoming lists ongoing sessions and scheduled sessions that are due in the future or
// within the grace window. The sweep runs first.
func (s *Service) Upcoming(ctx context.Context, program string) ([]Session, error) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("sweep before upcoming listing failed", zap.Error(err))
	}

	sessions, err := s.store.List(ctx, Filter{
		Statuses: []Status{StatusScheduled, StatusOngoing},
		Program:  programFilter(program),
	})
	if err != nil {
		return nil, fmt.Errorf("list upcoming classes: %w", err)
	}

	cutoff := s.now().Add(-s.grace)
	out := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Status == StatusOngoing || !sess.StartTime.Before(cutoff) {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Active returns the ongoing session of a program that has not yet run past its end.
func (s *Service) Active(ctx context.Context, program string) (ActiveClass, error) {
	sessions, err := s.store.List(ctx, Filter{
		Statuses: []Status{StatusOngoing},
		Program:  programFilter(program),
	})
	if err != nil {
		return ActiveClass{}, fmt.Errorf("list ongoing classes: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.Before(sessions[j].StartTime) })

	now := s.now()
	for _, sess := range sessions {
		end := sess.EndTime()
		if !end.After(now) {
			continue
		}
		return ActiveClass{Session: sess, RemainingMinutes: remainingMinutes(now, end)}, nil
	}
	return ActiveClass{}, ErrNoActiveClass
}

// Completed lists completed sessions, most recent first.
func (s *Service) Completed(ctx context.Context) ([]Session, error) {
	return s.listByStatus(ctx, StatusCompleted)
}

// Expired lists expired sessions, most recent first.
func (s *Service) Expired(ctx context.Context) ([]Session, error) {
	return s.listByStatus(ctx, StatusExpired)
}

func (s *Service) listByStatus(ctx context.Context, status Status) ([]Session, error) {
	sessions, err := s.store.List(ctx, Filter{Statuses: []Status{status}})
	if err != nil {
		return nil, fmt.Errorf("list %s classes: %w", status, err)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.After(sessions[j].StartTime) })
	return sessions, nil
}

func (s *Service) backfillAbsent(ctx context.Context, sess Session) (int, error) {
	if s.backfill == nil {
		return 0, nil
	}
	n, err := s.backfill.BackfillAbsent(ctx, sess)
	if err != nil {
		s.log.Error("absence backfill incomplete", zap.String("class_id", sess.ID), zap.Int("created", n), zap.Error(err))
		return n, fmt.Errorf("backfill absences for %s: %w", sess.ID, err)
	}
	return n, nil
}

func (s *Service) publish(ctx context.Context, sess Session, eventType string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ProgramRoom(sess.Program), eventType, sess); err != nil {
		s.log.Warn("publish lifecycle event failed", zap.String("event", eventType), zap.String("class_id", sess.ID), zap.Error(err))
	}
}

func programFilter(program string) string {
	if program == AllPrograms {
		return ""
	}
	return program
}

// remainingMinutes rounds up so a session with seconds left still reports one minute.
func remainingMinutes(now, end time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
