// Package reminders keeps candidates engaged: it schedules and sends
// interview reminders and runs the escalating nudge ladder for dialogues
// that went silent.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

// Scheduler books the interview reminder set when a candidate agrees on a
// slot. It runs inside the caller's transaction.
type Scheduler struct {
	store  *store.Store
	logger *logging.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewScheduler(st *store.Store, logger *logging.Logger, loc *time.Location) *Scheduler {
	return &Scheduler{store: st, logger: logger.Named("scheduler"), loc: loc, now: time.Now}
}

// ScheduleInterviewReminders cancels any reminders still pending for the
// dialogue and books a fresh set for the agreed slot. The interview time is
// recorded on the dialogue; the caller persists it with its own save.
func (s *Scheduler) ScheduleInterviewReminders(ctx context.Context, q store.Querier, d *store.Dialogue, dateStr, timeStr string) error {
	local, err := parseInterviewAt(dateStr, timeStr, s.loc)
	if err != nil {
		return err
	}
	interviewUTC := local.UTC()

	if _, err := s.store.CancelPendingReminders(ctx, q, d.ID); err != nil {
		return err
	}
	d.InterviewAtUTC = &interviewUTC

	planned := planReminders(interviewUTC, s.now(), s.loc)
	for _, p := range planned {
		if err := s.store.InsertReminder(ctx, q, &store.InterviewReminder{
			DialogueID:         d.ID,
			RecruiterID:        d.RecruiterID,
			InterviewAtUTC:     interviewUTC,
			ScheduledSendAtUTC: p.sendAt,
			Type:               p.kind,
		}); err != nil {
			return err
		}
	}
	s.logger.Info("interview reminders scheduled",
		"dialogue_id", d.ID, "interview_at", interviewUTC, "count", len(planned))
	return nil
}

func parseInterviewAt(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	at, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("reminders: failed to parse interview slot %q %q: %w", dateStr, timeStr, err)
	}
	return at, nil
}

type plannedReminder struct {
	kind   string
	sendAt time.Time
}

// planReminders computes which of the three reminder kinds apply to the
// slot. The evening-before reminder is skipped for interviews at 20:00 or
// later, the morning-of reminder for interviews before noon.
func planReminders(interviewUTC, now time.Time, loc *time.Location) []plannedReminder {
	local := interviewUTC.In(loc)
	var out []plannedReminder

	if at := interviewUTC.Add(-2 * time.Hour); at.After(now) {
		out = append(out, plannedReminder{kind: TypeTwoHoursBefore, sendAt: at})
	}

	evening := time.Date(local.Year(), local.Month(), local.Day()-1, 20, 0, 0, 0, loc).UTC()
	if evening.After(now) && local.Hour() < 20 {
		out = append(out, plannedReminder{kind: TypeEveningBefore, sendAt: evening})
	}

	morning := time.Date(local.Year(), local.Month(), local.Day(), 9, 0, 0, 0, loc).UTC()
	if morning.After(now) && local.Hour() >= 12 {
		out = append(out, plannedReminder{kind: TypeMorningOf, sendAt: morning})
	}
	return out
}
