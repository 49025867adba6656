package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

// MessageSender delivers one candidate-facing message.
type MessageSender interface {
	SendMessage(ctx context.Context, r *store.Recruiter, responseID, text string) error
}

// Sender drains the interview reminder queue and delivers due reminders.
type Sender struct {
	store   *store.Store
	board   MessageSender
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger

	batchSize int
	pause     time.Duration
	loc       *time.Location

	now func() time.Time
}

func NewSender(cfg *config.Config, st *store.Store, board MessageSender, m *metrics.PipelineMetrics, logger *logging.Logger) (*Sender, error) {
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, err
	}
	return &Sender{
		store:     st,
		board:     board,
		metrics:   m,
		logger:    logger.Named("interview_reminders"),
		batchSize: cfg.ReminderBatchSize,
		pause:     cfg.ReminderSendPause,
		loc:       loc,
		now:       time.Now,
	}, nil
}

// Run checks the queue until the context is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	s.logger.Info("interview reminder loop started", "batch_size", s.batchSize)
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("reminder batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pause):
		}
	}
}

// RunOnce claims one batch of due reminders and delivers them. Each
// reminder ends in sent, cancelled or error; the batch commits as a whole.
func (s *Sender) RunOnce(ctx context.Context) (int, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := s.store.ClaimDueReminders(ctx, tx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, tx.Commit(ctx)
	}
	s.logger.Info("claimed due interview reminders", "count", len(due))

	for i := range due {
		rem := &due[i]
		status := s.deliver(ctx, tx, rem)
		if err := s.store.MarkReminder(ctx, tx, rem.ID, status); err != nil {
			return 0, err
		}
		if status == "sent" {
			s.metrics.ObserveReminder(rem.Type)
		}
	}
	return len(due), tx.Commit(ctx)
}

func (s *Sender) deliver(ctx context.Context, tx store.Querier, rem *store.InterviewReminder) string {
	log := s.logger.With("reminder_id", rem.ID, "dialogue_id", rem.DialogueID, "type", rem.Type)

	dlg, err := s.store.GetDialogue(ctx, tx, rem.DialogueID)
	if err != nil {
		log.Error("failed to load dialogue for reminder", "error", err)
		return "error"
	}
	rec, err := s.store.GetRecruiter(ctx, tx, rem.RecruiterID)
	if err != nil {
		log.Error("failed to load recruiter for reminder", "error", err)
		return "error"
	}
	vac, err := s.store.GetVacancy(ctx, tx, dlg.VacancyID)
	if err != nil {
		log.Error("failed to load vacancy for reminder", "error", err)
		return "error"
	}

	text, err := reminderText(rem, vac.Title, s.loc)
	if err != nil {
		log.Error("failed to render reminder", "error", err)
		return "error"
	}

	switch sendErr := s.board.SendMessage(ctx, rec, dlg.ExternalResponseID, text); {
	case sendErr == nil:
		log.Info("interview reminder delivered")
		return "sent"
	case errors.Is(sendErr, hh.ErrVacancyClosed):
		log.Warn("interview reminder cancelled, vacancy closed")
		return "cancelled"
	default:
		s.metrics.ObserveAPIError("send_message")
		log.Error("interview reminder delivery failed", "error", sendErr)
		return "error"
	}
}

func reminderText(rem *store.InterviewReminder, vacancyTitle string, loc *time.Location) (string, error) {
	local := rem.InterviewAtUTC.In(loc)
	date := local.Format("02.01.2006")
	timeOfDay := local.Format("15:04")

	switch rem.Type {
	case TypeTwoHoursBefore:
		return fmt.Sprintf(twoHoursBeforeTemplate, vacancyTitle, timeOfDay), nil
	case TypeEveningBefore:
		return fmt.Sprintf(eveningBeforeTemplate, date, timeOfDay, vacancyTitle), nil
	case TypeMorningOf:
		return fmt.Sprintf(morningOfTemplate, date, timeOfDay, vacancyTitle), nil
	default:
		return "", fmt.Errorf("reminders: unknown reminder type %q", rem.Type)
	}
}
