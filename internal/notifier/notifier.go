// Package notifier drains the three outbound queues into the recruiters'
// Telegram review chats and runs the nightly history cleanup. Each queue
// loop is supervised and restarted when it stalls.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/pii"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

const (
	batchPause = 5 * time.Second
	errorPause = 30 * time.Second
)

// Messenger is the Telegram surface the notifier needs.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, threadID int64, text string, markdown bool) error
	SendDocument(ctx context.Context, chatID, threadID int64, filename string, content []byte, caption string) error
}

// ResumeLinker turns an external resume ID into a public resume URL.
type ResumeLinker interface {
	ResumeURL(resumeID string) string
}

type Notifier struct {
	store   *store.Store
	bot     Messenger
	resumes ResumeLinker
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger

	batchSize   int
	idleSleep   time.Duration
	retention   time.Duration
	cleanupHour int
	loc         *time.Location
	now         func() time.Time
}

func New(cfg *config.Config, st *store.Store, bot Messenger, resumes ResumeLinker, m *metrics.PipelineMetrics, logger *logging.Logger) (*Notifier, error) {
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.TimezoneName, err)
	}
	return &Notifier{
		store:       st,
		bot:         bot,
		resumes:     resumes,
		metrics:     m,
		logger:      logger.Named("notifier"),
		batchSize:   cfg.NotifierBatchSize,
		idleSleep:   cfg.NotifierIdleSleep,
		retention:   time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour,
		cleanupHour: cfg.HistoryCleanupHourUTC,
		loc:         loc,
		now:         time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, supervising the queue loops and the
// history cleanup.
func (n *Notifier) Run(ctx context.Context, interval, stuckAfter time.Duration) error {
	sup := NewSupervisor(n.logger, interval, stuckAfter)
	sup.Register("qualified", func(ctx context.Context, beat func()) {
		n.queueLoop(ctx, beat, "qualified", n.processQualified)
	})
	sup.Register("inactive", func(ctx context.Context, beat func()) {
		n.queueLoop(ctx, beat, "inactive", n.processInactive)
	})
	sup.Register("rejected", func(ctx context.Context, beat func()) {
		n.queueLoop(ctx, beat, "rejected", n.processRejected)
	})
	sup.Register("cleanup", func(ctx context.Context, beat func()) {
		n.cleanupLoop(ctx, beat)
	})
	return sup.Run(ctx)
}

// queueLoop drains one queue until ctx is cancelled. A full batch rolls
// straight into the next fetch after a short pause.
func (n *Notifier) queueLoop(ctx context.Context, beat func(), queue string, process func(context.Context) (int, error)) {
	log := n.logger.With("queue", queue)
	for {
		beat()
		pause := n.idleSleep
		handled, err := process(ctx)
		switch {
		case err != nil:
			log.Error("queue sweep failed", "error", err)
			pause = errorPause
		case handled > 0:
			log.Info("queue batch handled", "count", handled)
			pause = batchPause
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}

func (n *Notifier) processQualified(ctx context.Context) (int, error) {
	tasks, err := n.store.FetchPendingQualified(ctx, n.batchSize)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		status := n.deliverQualified(ctx, task)
		if err := n.store.MarkQualifiedTask(ctx, task.ID, status); err != nil {
			return 0, fmt.Errorf("mark qualified task %d: %w", task.ID, err)
		}
		n.metrics.ObserveNotification("qualified", status)
	}
	return len(tasks), nil
}

func (n *Notifier) deliverQualified(ctx context.Context, task store.QueueTask) string {
	log := n.logger.With("queue", "qualified", "task_id", task.ID, "candidate_id", task.CandidateID)

	cand, err := n.store.GetCandidate(ctx, n.store.DB(), task.CandidateID)
	if err != nil {
		log.Error("load candidate", "error", err)
		return store.TaskError
	}
	dlg, err := n.store.LatestDialogueForCandidate(ctx, n.store.DB(), task.CandidateID)
	if err != nil {
		log.Error("load dialogue", "error", err)
		return store.TaskError
	}
	return n.send(ctx, log, dlg, cand, func(d dossier) string { return qualifiedCaption(d, cand) }, "transcription_")
}

func (n *Notifier) processInactive(ctx context.Context) (int, error) {
	tasks, err := n.store.FetchPendingInactive(ctx, n.batchSize)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		status := n.deliverByDialogue(ctx, "inactive", task, inactiveCaption, "inactive_transcription_")
		if err := n.store.MarkInactiveTask(ctx, task.ID, status); err != nil {
			return 0, fmt.Errorf("mark inactive task %d: %w", task.ID, err)
		}
		n.metrics.ObserveNotification("inactive", status)
	}
	return len(tasks), nil
}

func (n *Notifier) processRejected(ctx context.Context) (int, error) {
	tasks, err := n.store.FetchPendingRejected(ctx, n.batchSize)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		status := n.deliverByDialogue(ctx, "rejected", task, rejectedCaption, "rejected_transcription_")
		if err := n.store.MarkRejectedTask(ctx, task.ID, status); err != nil {
			return 0, fmt.Errorf("mark rejected task %d: %w", task.ID, err)
		}
		n.metrics.ObserveNotification("rejected", status)
	}
	return len(tasks), nil
}

func (n *Notifier) deliverByDialogue(ctx context.Context, queue string, task store.QueueTask, caption func(dossier) string, filePrefix string) string {
	log := n.logger.With("queue", queue, "task_id", task.ID, "dialogue_id", task.DialogueID)

	dlg, err := n.store.GetDialogue(ctx, n.store.DB(), task.DialogueID)
	if err != nil {
		log.Error("load dialogue", "error", err)
		return store.TaskError
	}
	cand, err := n.store.GetCandidate(ctx, n.store.DB(), dlg.CandidateID)
	if err != nil {
		log.Error("load candidate", "error", err)
		return store.TaskError
	}
	return n.send(ctx, log, dlg, cand, caption, filePrefix)
}

// send resolves the vacancy and the recruiter chat, renders the caption plus
// transcript and delivers the notification. The returned string is the task
// status to record.
func (n *Notifier) send(ctx context.Context, log *logging.Logger, dlg *store.Dialogue, cand *store.Candidate, caption func(dossier) string, filePrefix string) string {
	vac, err := n.store.GetVacancy(ctx, n.store.DB(), dlg.VacancyID)
	if err != nil {
		log.Error("load vacancy", "error", err)
		return store.TaskError
	}
	rec, err := n.store.GetRecruiter(ctx, n.store.DB(), dlg.RecruiterID)
	if err != nil {
		log.Error("load recruiter", "error", err)
		return store.TaskError
	}
	chatID, threadID, ok := n.routing(rec, filePrefix)
	if !ok {
		log.Warn("recruiter chat not configured, skipping", "recruiter_id", rec.ID)
		return store.TaskSkippedNoChat
	}

	d := newDossier(vac, pii.MaskPatronymic(cand.FullName), n.resumes.ResumeURL(cand.ExternalResumeID))
	text := caption(d)
	transcript := renderTranscript(dlg, d, n.loc)

	if transcript == nil {
		err = n.bot.SendMessage(ctx, chatID, threadID, text, true)
	} else {
		err = n.bot.SendDocument(ctx, chatID, threadID, filePrefix+dlg.ExternalResponseID+".txt", transcript, text)
	}
	if err != nil {
		log.Error("send notification", "error", err)
		n.metrics.ObserveAPIError("telegram_notify")
		return store.TaskError
	}
	return store.TaskSent
}

// routing picks the review chat and topic for the queue the file prefix
// identifies. A missing chat or topic skips the task rather than failing it.
func (n *Notifier) routing(rec *store.Recruiter, filePrefix string) (chatID, threadID int64, ok bool) {
	if rec.TelegramChatID == nil {
		return 0, 0, false
	}
	var topic *int32
	switch filePrefix {
	case "transcription_":
		topic = rec.TopicQualifiedID
	case "inactive_transcription_":
		topic = rec.TopicTimeoutID
	case "rejected_transcription_":
		topic = rec.TopicRejectedID
	}
	if topic == nil {
		return 0, 0, false
	}
	return *rec.TelegramChatID, int64(*topic), true
}

// cleanupLoop blanks dialogue histories older than the retention window,
// once a day at the configured UTC hour.
func (n *Notifier) cleanupLoop(ctx context.Context, beat func()) {
	var lastRun time.Time
	for {
		beat()
		now := n.now().UTC()
		if now.Hour() == n.cleanupHour && (lastRun.IsZero() || lastRun.YearDay() != now.YearDay() || lastRun.Year() != now.Year()) {
			cleared, err := n.store.ClearStaleHistories(ctx, now.Add(-n.retention))
			if err != nil {
				n.logger.Error("history cleanup failed", "error", err)
			} else {
				n.logger.Info("stale histories cleared", "count", cleared, "retention_days", int(n.retention.Hours()/24))
				lastRun = now
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Minute):
		}
	}
}
