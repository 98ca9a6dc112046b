package classes

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a class session.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// AllPrograms disables the program filter on list queries.
const AllPrograms = "all"

const (
	MinDuration = 5
	MaxDuration = 180
)

var (
	ErrNotFound        = errors.New("class not found")
	ErrNotEditable     = errors.New("class can only be edited while scheduled")
	ErrTerminal        = errors.New("class already finished")
	ErrInvalidDuration = errors.New("duration must be between 5 and 180 minutes")
	ErrInvalidProgram  = errors.New("unknown program")
	ErrTitleRequired   = errors.New("title is required")
	ErrStartRequired   = errors.New("start time is required")
	ErrNoActiveClass   = errors.New("no active class")

	ErrConcurrentUpdate = errors.New("class status changed concurrently, reload and retry")
)

// Session is a scheduled teaching event.
type Session struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"startTime"`
	Duration    int        `json:"duration"`
	Program     string     `json:"program"`
	Status      Status     `json:"status"`
	MeetingID   *string    `json:"meetingId"`
	MeetingLink *string    `json:"meetingLink"`
	CreatedBy   string     `json:"createdBy"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// EndTime is the scheduled end of the session.
func (s Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.Duration) * time.Minute)
}

func (s *Session) clearMeeting() {
	s.MeetingID = nil
	s.MeetingLink = nil
}

// Filter narrows a session listing. Zero values match everything.
type Filter struct {
	Statuses      []Status
	Program       string
	StartedBefore time.Time
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	// Save overwrites the mutable fields of s unconditionally.
	Save(ctx context.Context, s Session) error
	// SaveIf writes s only while the stored status still equals from.
	SaveIf(ctx context.Context, s Session, from Status) (bool, error)
	List(ctx context.Context, f Filter) ([]Session, error)
}

// Backfiller materializes absence records for roster students of a finished session.
type Backfiller interface {
	BackfillAbsent(ctx context.Context, s Session) (int, error)
}

// Room issues meeting identifiers for a session going live.
type Room struct {
	ID   string
	Link string
}

// RoomProvider creates meeting rooms.
type RoomProvider interface {
	CreateRoom(ctx context.Context, s Session) (Room, error)
}

// Publisher broadcasts lifecycle events to a room. Failures never affect the caller.
type Publisher interface {
	Publish(ctx context.Context, room, eventType string, payload any) error
}
