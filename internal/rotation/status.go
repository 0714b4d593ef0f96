package rotation

import (
	"context"
	"fmt"
	"time"
)

// CourtStatus is the derived, human-facing view of one court's rotation
// state. Groups are projected from pool order on every read, never stored.
type CourtStatus struct {
	CourtID               string     `json:"courtId"`
	CourtNumber           int        `json:"courtNumber"`
	IsActive              bool       `json:"isActive"`
	CurrentGroup          int        `json:"currentGroup"`
	CurrentGroupNames     []string   `json:"currentGroupNames"`
	WaitingGroups         [][]string `json:"waitingGroups"`
	LastRotationTime      time.Time  `json:"lastRotationTime"`
	NextRotationTime      time.Time  `json:"nextRotationTime"`
	MinutesToNextRotation int        `json:"minutesToNextRotation"`
}

// SessionStatus is the derived view of one session.
type SessionStatus struct {
	SessionID     string        `json:"sessionId"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	TimeRemaining string        `json:"timeRemaining"`
	Courts        []CourtStatus `json:"courts"`
}

// StatusReport covers both scopes. Absent scopes are nil.
type StatusReport struct {
	Active  bool           `json:"active"`
	Single  *SessionStatus `json:"single,omitempty"`
	Multi   *SessionStatus `json:"multi,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Status reports current automation state. Reading status of an expired
// session deletes it on the spot and reports it as absent, so stale state
// never lingers past its first observer.
func (m *Manager) Status(ctx context.Context) (*StatusReport, error) {
	now := m.now()
	report := &StatusReport{}

	if sess, err := m.sessions.LoadSession(ctx); err == nil {
		if sess.Expired(now) {
			m.expireSingle(ctx, sess)
		} else {
			report.Single = &SessionStatus{
				SessionID:     sess.SessionID,
				StartTime:     sess.StartTime,
				EndTime:       sess.EndTime,
				TimeRemaining: formatRemaining(now, sess.EndTime),
				Courts:        []CourtStatus{m.courtStatus(now, &sess.CourtState)},
			}
			report.Active = true
		}
	}

	if sess, err := m.sessions.LoadMultiSession(ctx); err == nil {
		if sess.Expired(now) {
			m.expireMulti(ctx, sess)
		} else {
			courts := make([]CourtStatus, 0, len(sess.Courts))
			for i := range sess.Courts {
				courts = append(courts, m.courtStatus(now, &sess.Courts[i]))
			}
			report.Multi = &SessionStatus{
				SessionID:     sess.SessionID,
				StartTime:     sess.StartTime,
				EndTime:       sess.EndTime,
				TimeRemaining: formatRemaining(now, sess.EndTime),
				Courts:        courts,
			}
			report.Active = true
		}
	}

	if !report.Active {
		report.Message = "no active automation"
	}
	return report, nil
}

func (m *Manager) courtStatus(now time.Time, court *CourtState) CourtStatus {
	next := court.LastRotationTime.Add(m.interval)
	waiting := make([][]string, 0, GroupCount-1)
	for offset := 1; offset < GroupCount; offset++ {
		group := (court.CurrentGroup + offset) % GroupCount
		waiting = append(waiting, GroupNames(court.Users, group))
	}
	return CourtStatus{
		CourtID:               court.CourtID,
		CourtNumber:           court.CourtNumber,
		IsActive:              court.IsActive,
		CurrentGroup:          court.CurrentGroup,
		CurrentGroupNames:     GroupNames(court.Users, court.CurrentGroup),
		WaitingGroups:         waiting,
		LastRotationTime:      court.LastRotationTime,
		NextRotationTime:      next,
		MinutesToNextRotation: minutesUntil(now, next),
	}
}

// formatRemaining renders the time until end as "2h 15m".
func formatRemaining(now, end time.Time) string {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return "0m"
	}
	h := int(remaining.Hours())
	mins := int(remaining.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh %dm", h, mins)
}
