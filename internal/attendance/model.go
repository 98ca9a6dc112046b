package attendance

import (
	"context"
	"errors"
	"time"
)

// Status is the attendance outcome of one student for one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusPartial Status = "partial"
	StatusAbsent  Status = "absent"
)

var (
	ErrNotFound        = errors.New("attendance record not found")
	ErrDuplicate       = errors.New("attendance record already exists")
	ErrClassNotActive  = errors.New("class not found or not active")
	ErrStudentRequired = errors.New("student id is required")
	ErrClassRequired   = errors.New("class id is required")
)

// Record is one student's presence in one session.
type Record struct {
	ID                 string     `json:"id"`
	SessionID          string     `json:"classId"`
	StudentID          string     `json:"studentId"`
	JoinTime           time.Time  `json:"joinTime"`
	LeaveTime          *time.Time `json:"leaveTime,omitempty"`
	Duration           int        `json:"duration"`
	Status             Status     `json:"status"`
	IsAttendanceMarked bool       `json:"isAttendanceMarked"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Store persists attendance records. (SessionID, StudentID) is unique.
type Store interface {
	Get(ctx context.Context, sessionID, studentID string) (Record, error)
	// Insert returns ErrDuplicate when a record for the pair already exists.
	Insert(ctx context.Context, r Record) (Record, error)
	Update(ctx context.Context, r Record) error
	// InsertIfMissing reports whether r was created; an existing record is left untouched.
	InsertIfMissing(ctx context.Context, r Record) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
}

const (
	// MinPresentMinutes is the attended time below which a student counts as absent.
	MinPresentMinutes = 5
	// PresentPercentage is the share of the session a student must attend to be present.
	PresentPercentage = 80.0
	// DefaultSessionMinutes is assumed when the session can no longer be found.
	DefaultSessionMinutes = 60
)

// Classify derives the final status from attended minutes and session length.
func Classify(minutes, sessionMinutes int) Status {
	if minutes < MinPresentMinutes {
		return StatusAbsent
	}
	if sessionMinutes <= 0 {
		sessionMinutes = DefaultSessionMinutes
	}
	pct := float64(minutes) / float64(sessionMinutes) * 100
	if pct >= PresentPercentage {
		return StatusPresent
	}
	return StatusPartial
}

// Counts tallies records per status.
type Counts struct {
	Present int `json:"present"`
	Partial int `json:"partial"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

func (c *Counts) add(s Status) {
	c.Total++
	switch s {
	case StatusPresent:
		c.Present++
	case StatusPartial:
		c.Partial++
	case StatusAbsent:
		c.Absent++
	}
}
