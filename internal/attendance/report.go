package attendance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"liveclass/internal/classes"
	"liveclass/internal/roster"
)

// ClassEntry is a record joined with the student's identity. Student is nil when the
// student is no longer on the roster.
type ClassEntry struct {
	Record
	Student *roster.Student `json:"student,omitempty"`
}

// ClassReport is the attendance breakdown of one session.
type ClassReport struct {
	Class   classes.Session `json:"class"`
	Records []ClassEntry    `json:"records"`
	Counts  Counts          `json:"counts"`
}

// HistoryEntry is one completed session from a student's point of view.
type HistoryEntry struct {
	ClassID            string     `json:"classId"`
	Title              string     `json:"title"`
	StartTime          time.Time  `json:"startTime"`
	SessionDuration    int        `json:"sessionDuration"`
	JoinTime           time.Time  `json:"joinTime"`
	LeaveTime          *time.Time `json:"leaveTime,omitempty"`
	Duration           int        `json:"duration"`
	Status             Status     `json:"status"`
	IsAttendanceMarked bool       `json:"isAttendanceMarked"`
	// Synthesized marks an absence derived for a session the student has no record of.
	Synthesized bool `json:"synthesized"`
}

// StudentHistory lists every completed session of the student's program.
type StudentHistory struct {
	Student              roster.Student `json:"student"`
	History              []HistoryEntry `json:"history"`
	Counts               Counts         `json:"counts"`
	AttendancePercentage int            `json:"attendancePercentage"`
}

// ClassAttendance returns the records of one session with per-status counts.
func (s *Service) ClassAttendance(ctx context.Context, sessionID string) (ClassReport, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ClassReport{}, err
	}
	return s.classReport(ctx, sess)
}

// Summary returns the breakdown of every completed session, most recent first.
func (s *Service) Summary(ctx context.Context) ([]ClassReport, error) {
	sessions, err := s.sessions.List(ctx, classes.Filter{Statuses: []classes.Status{classes.StatusCompleted}})
	if err != nil {
		return nil, fmt.Errorf("list completed classes: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.After(sessions[j].StartTime) })

	reports := make([]ClassReport, 0, len(sessions))
	for _, sess := range sessions {
		rep, err := s.classReport(ctx, sess)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (s *Service) classReport(ctx context.Context, sess classes.Session) (ClassReport, error) {
	records, err := s.store.ListBySession(ctx, sess.ID)
	if err != nil {
		return ClassReport{}, fmt.Errorf("list attendance for %s: %w", sess.ID, err)
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.StudentID)
	}
	students, err := s.roster.Lookup(ctx, ids)
	if err != nil {
		return ClassReport{}, fmt.Errorf("lookup students: %w", err)
	}

	rep := ClassReport{Class: sess, Records: make([]ClassEntry, 0, len(records))}
	for _, r := range records {
		entry := ClassEntry{Record: r}
		if st, ok := students[r.StudentID]; ok {
			entry.Student = &st
		}
		rep.Records = append(rep.Records, entry)
		rep.Counts.add(r.Status)
	}
	return rep, nil
}

// StudentHistory returns exactly one entry per completed session of the student's program,
// synthesizing an absence wherever the student has no record.
func (s *Service) StudentHistory(ctx context.Context, studentID string) (StudentHistory, error) {
	student, err := s.roster.Get(ctx, studentID)
	if err != nil {
		return StudentHistory{}, err
	}

	sessions, err := s.sessions.List(ctx, classes.Filter{
		Statuses: []classes.Status{classes.StatusCompleted},
		Program:  student.Program,
	})
	if err != nil {
		return StudentHistory{}, fmt.Errorf("list completed classes: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.After(sessions[j].StartTime) })

	records, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return StudentHistory{}, fmt.Errorf("list attendance for %s: %w", studentID, err)
	}
	bySession := make(map[string]Record, len(records))
	for _, r := range records {
		bySession[r.SessionID] = r
	}

	out := StudentHistory{Student: student, History: make([]HistoryEntry, 0, len(sessions))}
	for _, sess := range sessions {
		entry := HistoryEntry{
			ClassID:         sess.ID,
			Title:           sess.Title,
			StartTime:       sess.StartTime,
			SessionDuration: sess.Duration,
		}
		if r, ok := bySession[sess.ID]; ok {
			entry.JoinTime = r.JoinTime
			entry.LeaveTime = r.LeaveTime
			entry.Duration = r.Duration
			entry.Status = r.Status
			entry.IsAttendanceMarked = r.IsAttendanceMarked
		} else {
			entry.JoinTime = sess.StartTime
			entry.Status = StatusAbsent
			entry.IsAttendanceMarked = true
			entry.Synthesized = true
		}
		out.History = append(out.History, entry)
		out.Counts.add(entry.Status)
	}
	out.AttendancePercentage = percentage(out.Counts.Present, out.Counts.Total)
	return out, nil
}

func percentage(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
