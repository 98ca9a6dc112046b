package classes_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liveclass/internal/attendance"
	"liveclass/internal/classes"
	"liveclass/internal/memstore"
	"liveclass/internal/roster"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type staticRooms struct{ n int }

func (r *staticRooms) CreateRoom(context.Context, classes.Session) (classes.Room, error) {
	r.n++
	id := "room-" + string(rune('a'+r.n))
	return classes.Room{ID: id, Link: "https://meet.test/" + id}, nil
}

type published struct {
	room, event string
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, room, eventType string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{room, eventType})
	return nil
}

type env struct {
	clock *clock
	db    *memstore.DB
	svc   *classes.Service
	pub   *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	db := memstore.New()
	pub := &recorder{}
	att := attendance.NewService(db.Attendance(), db.Sessions(), db.Roster(), zap.NewNop(), attendance.WithClock(clk.Now))
	svc := classes.NewService(db.Sessions(), att, &staticRooms{}, pub, zap.NewNop(), classes.Options{
		Programs: []string{"24-session", "48-session"},
		Now:      clk.Now,
	})
	for _, s := range []roster.Student{
		{ID: "u1", Program: "24-session"},
		{ID: "u2", Program: "24-session"},
		{ID: "u3", Program: "48-session"},
	} {
		_, err := db.Roster().Upsert(context.Background(), s)
		require.NoError(t, err)
	}
	return &env{clock: clk, db: db, svc: svc, pub: pub}
}

func (e *env) create(t *testing.T, start time.Time, duration int, program string) classes.Session {
	t.Helper()
	s, err := e.svc.Create(context.Background(), classes.CreateInput{
		Title: "Go", StartTime: start, Duration: duration, Program: program,
	})
	require.NoError(t, err)
	return s
}

func (e *env) get(t *testing.T, id string) classes.Session {
	t.Helper()
	s, err := e.db.Sessions().Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func assertMeetingInvariant(t *testing.T, s classes.Session) {
	t.Helper()
	if s.Status == classes.StatusOngoing {
		assert.NotNil(t, s.MeetingID, "ongoing session %s without meeting id", s.ID)
		assert.NotNil(t, s.MeetingLink, "ongoing session %s without meeting link", s.ID)
		return
	}
	assert.Nil(t, s.MeetingID, "%s session %s keeps meeting id", s.Status, s.ID)
	assert.Nil(t, s.MeetingLink, "%s session %s keeps meeting link", s.Status, s.ID)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	start := e.clock.Now().Add(time.Hour)

	tests := []struct {
		name string
		in   classes.CreateInput
		err  error
	}{
		{"too short", classes.CreateInput{Title: "x", StartTime: start, Duration: 4, Program: "24-session"}, classes.ErrInvalidDuration},
		{"too long", classes.CreateInput{Title: "x", StartTime: start, Duration: 181, Program: "24-session"}, classes.ErrInvalidDuration},
		{"blank title", classes.CreateInput{Title: "  ", StartTime: start, Duration: 60, Program: "24-session"}, classes.ErrTitleRequired},
		{"no start", classes.CreateInput{Title: "x", Duration: 60, Program: "24-session"}, classes.ErrStartRequired},
		{"unknown program", classes.CreateInput{Title: "x", StartTime: start, Duration: 60, Program: "12-session"}, classes.ErrInvalidProgram},
		{"all is not a program", classes.CreateInput{Title: "x", StartTime: start, Duration: 60, Program: classes.AllPrograms}, classes.ErrInvalidProgram},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	for _, d := range []int{classes.MinDuration, classes.MaxDuration} {
		s, err := e.svc.Create(ctx, classes.CreateInput{Title: "x", StartTime: start, Duration: d, Program: "24-session"})
		require.NoError(t, err)
		assert.Equal(t, classes.StatusScheduled, s.Status)
		assertMeetingInvariant(t, s)
	}
}

func TestUpdateOnlyWhileScheduled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.create(t, e.clock.Now().Add(time.Hour), 60, "24-session")

	title, dur := "Channels", 90
	updated, err := e.svc.Update(ctx, s.ID, classes.UpdateInput{Title: &title, Duration: &dur})
	require.NoError(t, err)
	assert.Equal(t, "Channels", updated.Title)
	assert.Equal(t, 90, updated.Duration)

	bad := 200
	_, err = e.svc.Update(ctx, s.ID, classes.UpdateInput{Duration: &bad})
	assert.ErrorIs(t, err, classes.ErrInvalidDuration)

	_, err = e.svc.Start(ctx, s.ID)
	require.NoError(t, err)
	_, err = e.svc.Update(ctx, s.ID, classes.UpdateInput{Title: &title})
	assert.ErrorIs(t, err, classes.ErrNotEditable)

	_, err = e.svc.End(ctx, s.ID)
	require.NoError(t, err)
	_, err = e.svc.Update(ctx, s.ID, classes.UpdateInput{Title: &title})
	assert.ErrorIs(t, err, classes.ErrNotEditable)

	stale := e.create(t, e.clock.Now().Add(-10*time.Minute), 60, "24-session")
	_, err = e.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, classes.StatusExpired, e.get(t, stale.ID).Status)
	_, err = e.svc.Update(ctx, stale.ID, classes.UpdateInput{Title: &title})
	assert.ErrorIs(t, err, classes.ErrNotEditable)
	assert.Equal(t, "Go", e.get(t, stale.ID).Title)

	_, err = e.svc.Update(ctx, "missing", classes.UpdateInput{Title: &title})
	assert.ErrorIs(t, err, classes.ErrNotFound)
}

func TestStartAndEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.create(t, e.clock.Now(), 60, "24-session")

	started, err := e.svc.Start(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, classes.StatusOngoing, started.Status)
	assertMeetingInvariant(t, started)

	// starting again issues a fresh room
	restarted, err := e.svc.Start(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, *started.MeetingID, *restarted.MeetingID)

	e.clock.Advance(30 * time.Minute)
	ended, err := e.svc.End(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, classes.StatusCompleted, ended.Status)
	require.NotNil(t, ended.CompletedAt)
	assert.Equal(t, e.clock.Now(), *ended.CompletedAt)
	assertMeetingInvariant(t, e.get(t, s.ID))

	recs, err := e.db.Attendance().ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, attendance.StatusAbsent, r.Status)
		assert.True(t, r.IsAttendanceMarked)
		assert.Equal(t, s.StartTime, r.JoinTime)
	}

	assert.Contains(t, e.pub.events, published{classes.ProgramRoom("24-session"), classes.EventStarted})
	assert.Contains(t, e.pub.events, published{classes.ProgramRoom("24-session"), classes.EventEnded})
}

func TestSweepExpiresAndCompletes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	stale := e.create(t, now.Add(-6*time.Minute), 60, "24-session")
	fresh := e.create(t, now.Add(-4*time.Minute), 60, "24-session")
	overrun := e.create(t, now.Add(-2*time.Hour), 60, "48-session")
	live := e.create(t, now.Add(-10*time.Minute), 60, "48-session")
	for _, id := range []string{overrun.ID, live.ID} {
		_, err := e.svc.Start(ctx, id)
		require.NoError(t, err)
	}

	res, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, classes.SweepResult{Expired: 1, Completed: 1, Backfilled: 3}, res)

	assert.Equal(t, classes.StatusExpired, e.get(t, stale.ID).Status)
	assert.Equal(t, classes.StatusScheduled, e.get(t, fresh.ID).Status)
	completed := e.get(t, overrun.ID)
	assert.Equal(t, classes.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Equal(t, classes.StatusOngoing, e.get(t, live.ID).Status)

	all, err := e.db.Sessions().List(ctx, classes.Filter{})
	require.NoError(t, err)
	for _, s := range all {
		assertMeetingInvariant(t, s)
	}

	// idempotent
	again, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, classes.SweepResult{}, again)
	for _, s := range all {
		assert.Equal(t, s.Status, e.get(t, s.ID).Status)
	}
}

func TestSweepKeepsExistingAttendance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.create(t, e.clock.Now(), 30, "24-session")
	_, err := e.svc.Start(ctx, s.ID)
	require.NoError(t, err)

	_, err = e.db.Attendance().Insert(ctx, attendance.Record{
		SessionID: s.ID, StudentID: "u1", JoinTime: e.clock.Now(), Status: attendance.StatusPartial,
	})
	require.NoError(t, err)

	e.clock.Advance(31 * time.Minute)
	res, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Backfilled)

	rec, err := e.db.Attendance().Get(ctx, s.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPartial, rec.Status)
}

func TestCheckExpiredDoesNotBackfill(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.create(t, e.clock.Now().Add(-10*time.Minute), 60, "24-session")
	e.create(t, e.clock.Now().Add(time.Hour), 60, "24-session")

	expired, err := e.svc.CheckExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, s.ID, expired[0].ID)

	recs, err := e.db.Attendance().ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)

	list, err := e.svc.Expired(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.create(t, e.clock.Now(), 60, "24-session")
	_, err := e.svc.Start(ctx, s.ID)
	require.NoError(t, err)

	cancelled, err := e.svc.Cancel(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, classes.StatusCancelled, cancelled.Status)
	assertMeetingInvariant(t, cancelled)

	_, err = e.svc.Cancel(ctx, s.ID)
	assert.ErrorIs(t, err, classes.ErrTerminal)
}

func TestUpcomingGraceAndProgramFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	future := e.create(t, now.Add(time.Hour), 60, "24-session")
	justDue := e.create(t, now.Add(-3*time.Minute), 60, "24-session")
	other := e.create(t, now.Add(2*time.Hour), 60, "48-session")
	stale := e.create(t, now.Add(-20*time.Minute), 60, "24-session")
	ongoing := e.create(t, now.Add(-30*time.Minute), 60, "24-session")
	_, err := e.svc.Start(ctx, ongoing.ID)
	require.NoError(t, err)

	list, err := e.svc.Upcoming(ctx, "24-session")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{ongoing.ID, justDue.ID, future.ID}, ids)
	assert.Equal(t, classes.StatusExpired, e.get(t, stale.ID).Status)

	all, err := e.svc.Upcoming(ctx, classes.AllPrograms)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, other.ID, all[len(all)-1].ID)
}

func TestActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Active(ctx, "24-session")
	assert.ErrorIs(t, err, classes.ErrNoActiveClass)

	s := e.create(t, e.clock.Now().Add(-20*time.Minute), 45, "24-session")
	_, err = e.svc.Start(ctx, s.ID)
	require.NoError(t, err)

	e.clock.Advance(30 * time.Second)
	active, err := e.svc.Active(ctx, "24-session")
	require.NoError(t, err)
	assert.Equal(t, s.ID, active.ID)
	assert.Equal(t, 25, active.RemainingMinutes)

	_, err = e.svc.Active(ctx, "48-session")
	assert.ErrorIs(t, err, classes.ErrNoActiveClass)

	e.clock.Advance(25 * time.Minute)
	_, err = e.svc.Active(ctx, classes.AllPrograms)
	assert.ErrorIs(t, err, classes.ErrNoActiveClass)
}

type failingRoster struct{ roster.Registry }

func (failingRoster) ByProgram(context.Context, string) ([]roster.Student, error) {
	return nil, errors.New("roster unavailable")
}

func TestEndKeepsTransitionWhenBackfillFails(t *testing.T) {
	clk := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	db := memstore.New()
	att := attendance.NewService(db.Attendance(), db.Sessions(), failingRoster{db.Roster()}, zap.NewNop(), attendance.WithClock(clk.Now))
	svc := classes.NewService(db.Sessions(), att, &staticRooms{}, nil, zap.NewNop(), classes.Options{Now: clk.Now})
	ctx := context.Background()

	s, err := svc.Create(ctx, classes.CreateInput{Title: "Go", StartTime: clk.Now(), Duration: 60, Program: "any"})
	require.NoError(t, err)
	_, err = svc.Start(ctx, s.ID)
	require.NoError(t, err)

	ended, err := svc.End(ctx, s.ID)
	require.Error(t, err)
	assert.Equal(t, classes.StatusCompleted, ended.Status)

	stored, err := db.Sessions().Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, classes.StatusCompleted, stored.Status)
}
