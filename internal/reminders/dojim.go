package reminders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

// JobBoard is the outbound surface the nudge ladder needs, implemented by
// hh.Client.
type JobBoard interface {
	SendMessage(ctx context.Context, r *store.Recruiter, responseID, text string) error
	CurrentFolder(ctx context.Context, r *store.Recruiter, responseID string) (string, error)
}

// Dojim walks the escalating nudge ladder for dialogues that went silent.
// Levels 0-2 are the short chain measured in minutes; levels 3-5 are the
// long chain measured in days, paid for once at the first long nudge.
type Dojim struct {
	store   *store.Store
	board   JobBoard
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger

	loc          *time.Location
	startHour    int
	endHour      int
	concurrency  int
	recruiterIDs []int64

	now func() time.Time
}

func NewDojim(cfg *config.Config, st *store.Store, board JobBoard, m *metrics.PipelineMetrics, logger *logging.Logger, recruiterIDs []int64) (*Dojim, error) {
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, err
	}
	return &Dojim{
		store:        st,
		board:        board,
		metrics:      m,
		logger:       logger.Named("dojim"),
		loc:          loc,
		startHour:    cfg.DojimWindowStartHour,
		endHour:      cfg.DojimWindowEndHour,
		concurrency:  cfg.DojimConcurrency,
		recruiterIDs: recruiterIDs,
		now:          time.Now,
	}, nil
}

// Run sweeps the ladder once a minute until the context is cancelled.
func (d *Dojim) Run(ctx context.Context) error {
	d.logger.Info("dojim loop started", "window_start", d.startHour, "window_end", d.endHour)
	for {
		if err := d.RunOnce(ctx); err != nil {
			d.logger.Error("dojim sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Minute):
		}
	}
}

// RunOnce sweeps every tracked recruiter's silent dialogues. Outside the
// delivery window it does nothing.
func (d *Dojim) RunOnce(ctx context.Context) error {
	hour := d.now().In(d.loc).Hour()
	if hour < d.startHour || hour >= d.endHour {
		return nil
	}
	recruiters, err := d.store.ListRecruiters(ctx, d.recruiterIDs)
	if err != nil {
		return err
	}
	for i := range recruiters {
		if err := d.sweepRecruiter(ctx, &recruiters[i]); err != nil {
			d.logger.Error("recruiter sweep failed", "recruiter_id", recruiters[i].ID, "error", err)
		}
	}
	return nil
}

var dojimExcluded = []string{
	dialog.StateDeclinedVacancy,
	dialog.StateDeclinedInterview,
	dialog.StateClarifyingDeclined,
	dialog.StateCallLater,
}

func (d *Dojim) sweepRecruiter(ctx context.Context, rec *store.Recruiter) error {
	tx, err := d.store.Begin(ctx)
	if err != nil {
		return err
	}
	claimed, err := d.store.ClaimDojimCandidates(ctx, tx, rec.ID, dojimExcluded)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	g := &errgroup.Group{}
	g.SetLimit(d.concurrency)
	for _, dlg := range claimed {
		g.Go(func() error {
			if err := d.nudge(ctx, rec, dlg.ID); err != nil {
				d.logger.Error("nudge failed", "dialogue_id", dlg.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Dojim) nudge(ctx context.Context, rec *store.Recruiter, dialogueID int64) error {
	tx, err := d.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dlg, err := d.store.LockDialogue(ctx, tx, dialogueID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if dlg.Status != dialog.StatusInProgress || dlg.ReminderLevel >= 6 || dialog.IsDojimExcluded(dlg.State) {
		return nil
	}
	log := d.logger.With("dialogue_id", dlg.ID, "response_id", dlg.ExternalResponseID, "level", dlg.ReminderLevel)

	folder, err := d.board.CurrentFolder(ctx, rec, dlg.ExternalResponseID)
	switch {
	case errors.Is(err, hh.ErrResponseGone):
		log.Info("nudges stopped, response gone")
		dlg.Status = dialog.StatusTimedOut
		dlg.ReminderLevel = 6
		if err := d.store.SaveDialogue(ctx, tx, dlg); err != nil {
			return err
		}
		return tx.Commit(ctx)
	case err != nil:
		d.metrics.ObserveAPIError("current_folder")
		return err
	case folder != hh.FolderConsider:
		log.Info("nudges stopped, response moved by recruiter", "folder", folder)
		dlg.Status = dialog.StatusRecruiterHandled
		dlg.ReminderLevel = 3
		if err := d.store.CancelInactivePending(ctx, tx, dlg.ID); err != nil {
			return err
		}
		if err := d.store.SaveDialogue(ctx, tx, dlg); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	now := d.now().UTC()
	lastActivity := dlg.LastUpdated
	if lastActivity.IsZero() {
		lastActivity = dlg.CreatedAt
	}
	silence := now.Sub(lastActivity)

	messages, nextLevel, timeout := nextAction(dlg.ReminderLevel, silence)
	switch {
	case timeout:
		if err := d.store.EnsureInactive(ctx, tx, dlg.ID); err != nil {
			return err
		}
		dlg.Status = dialog.StatusTimedOut
		dlg.ReminderLevel = 3
		dlg.LastUpdated = now
		if err := d.store.SaveDialogue(ctx, tx, dlg); err != nil {
			return err
		}
		log.Info("dialogue timed out, queued for inactivity review")
		return tx.Commit(ctx)

	case len(messages) == 0:
		return nil
	}

	longReminder := nextLevel >= 4
	if nextLevel == 4 {
		// The long chain is paid for once, at its first nudge.
		if err := d.store.DebitLongReminder(ctx, tx); err != nil {
			if errors.Is(err, store.ErrInsufficientBalance) {
				log.Warn("long nudge skipped, balance exhausted")
				return nil
			}
			return err
		}
	}

	for _, msg := range messages {
		if err := d.board.SendMessage(ctx, rec, dlg.ExternalResponseID, msg); err != nil {
			if errors.Is(err, hh.ErrVacancyClosed) {
				log.Warn("nudges stopped, vacancy closed")
				dlg.Status = dialog.StatusVacancyClosed
				dlg.ReminderLevel = 6
				if err := d.store.SaveDialogue(ctx, tx, dlg); err != nil {
					return err
				}
				return tx.Commit(ctx)
			}
			d.metrics.ObserveAPIError("send_message")
			return err
		}
		dlg.History = append(dlg.History, dialog.Entry{
			MessageID:    "bot_" + uuid.NewString(),
			Role:         dialog.RoleAssistant,
			Content:      msg,
			TimestampMSK: d.now().In(d.loc).Format("2006-01-02 15:04:05") + " MSK",
		})
	}
	if longReminder {
		dlg.History = append(dlg.History, dialog.NewSystemCommand(postLongReminderCommand, d.now()))
	}

	dlg.History = dialog.TrimHistory(dlg.History)
	dlg.ReminderLevel = nextLevel
	dlg.LastUpdated = now
	if err := d.store.SaveDialogue(ctx, tx, dlg); err != nil {
		return err
	}
	d.metrics.ObserveReminder("level_" + strconv.Itoa(nextLevel))
	log.Info("nudge delivered", "next_level", nextLevel, "silence", silence.Round(time.Second))
	return tx.Commit(ctx)
}

// nextAction maps the current ladder level and silence span to either the
// nudge texts and the level they advance to, or a timeout.
func nextAction(level int, silence time.Duration) (messages []string, nextLevel int, timeout bool) {
	switch {
	case level == 0 && silence > 30*time.Minute:
		return levelZeroNudges, 1, false
	case level == 1 && silence > 60*time.Minute:
		return []string{levelOneNudge}, 2, false
	case level == 2 && silence > 30*time.Minute:
		return nil, 0, true
	case level == 3 && silence > 7*24*time.Hour:
		return []string{longNudgeLevelFour}, 4, false
	case level == 4 && silence > 21*24*time.Hour:
		return []string{longNudgeLevelFive}, 5, false
	case level == 5 && silence > 51*24*time.Hour:
		return []string{longNudgeLevelSix}, 6, false
	}
	return nil, 0, false
}
