// Package poller ingests job-board activity into the shared store: it
// reconciles the vacancy list, opens dialogues for fresh responses and
// appends unseen candidate messages to ongoing ones. It never talks to the
// model; the processor picks up whatever lands in pending_messages.
package poller

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/northstaff/hragent/internal/alerts"
	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

// greetCommand opens dialogues whose response carried no cover letter.
const greetCommand = "Кандидат откликнулся без сопроводительного письма. Поздоровайся и предложи задать вопросы"

// JobBoard is the inbound surface of the poller, implemented by hh.Client.
type JobBoard interface {
	Me(ctx context.Context, r *store.Recruiter) (string, error)
	ActiveVacancies(ctx context.Context, r *store.Recruiter, employerID string) ([]hh.VacancyItem, error)
	ResponsesFromFolder(ctx context.Context, r *store.Recruiter, folder string, vacancyIDs []string, since time.Time, updatesOnly bool) ([]hh.NegotiationItem, error)
	Messages(ctx context.Context, r *store.Recruiter, messagesURL string) ([]hh.Message, error)
	MoveResponse(ctx context.Context, r *store.Recruiter, folder, responseID string) error
	Stopped(recruiterID int64) bool
}

// Poller sweeps every tracked recruiter on a fixed cadence.
type Poller struct {
	store   *store.Store
	board   JobBoard
	alerts  *alerts.Service
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger

	interval     time.Duration
	vacancyTTL   time.Duration
	concurrency  int
	recruiterIDs []int64
	loc          *time.Location

	now func() time.Time
}

func New(cfg *config.Config, st *store.Store, board JobBoard, al *alerts.Service, m *metrics.PipelineMetrics, logger *logging.Logger, recruiterIDs []int64) (*Poller, error) {
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, err
	}
	return &Poller{
		store:        st,
		board:        board,
		alerts:       al,
		metrics:      m,
		logger:       logger.Named("poller"),
		interval:     cfg.PollInterval,
		vacancyTTL:   cfg.VacancyCacheTTL,
		concurrency:  cfg.PollerConcurrency,
		recruiterIDs: recruiterIDs,
		loc:          loc,
		now:          time.Now,
	}, nil
}

// Run sweeps until the context is cancelled. The pause between sweeps is
// shortened by however long the sweep itself took.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller loop started", "interval", p.interval)
	for {
		start := p.now()
		if err := p.RunOnce(ctx); err != nil {
			p.logger.Error("poll sweep failed", "error", err)
		}
		pause := p.interval - p.now().Sub(start)
		if pause < time.Second {
			pause = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// RunOnce polls every tracked recruiter concurrently.
func (p *Poller) RunOnce(ctx context.Context) error {
	recruiters, err := p.store.ListRecruiters(ctx, p.recruiterIDs)
	if err != nil {
		return err
	}
	g := &errgroup.Group{}
	g.SetLimit(p.concurrency)
	for i := range recruiters {
		rec := &recruiters[i]
		g.Go(func() error {
			if err := p.pollRecruiter(ctx, rec); err != nil {
				p.logger.Error("recruiter poll failed", "recruiter_id", rec.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) pollRecruiter(ctx context.Context, rec *store.Recruiter) error {
	if p.board.Stopped(rec.ID) {
		return nil
	}
	vacancies, err := p.syncVacancies(ctx, rec)
	if err != nil {
		return err
	}
	if len(vacancies) == 0 {
		return nil
	}
	byExternalID := make(map[string]store.Vacancy, len(vacancies))
	externalIDs := make([]string, 0, len(vacancies))
	for _, v := range vacancies {
		byExternalID[v.ExternalID] = v
		externalIDs = append(externalIDs, v.ExternalID)
	}

	if err := p.ingestNew(ctx, rec, externalIDs, byExternalID); err != nil {
		p.logger.Error("new response ingestion failed", "recruiter_id", rec.ID, "error", err)
	}
	return p.ingestUpdates(ctx, rec, externalIDs)
}

// syncVacancies reconciles the recruiter's vacancy list against the remote
// one, or serves the local copy while the cache is fresh.
func (p *Poller) syncVacancies(ctx context.Context, rec *store.Recruiter) ([]store.Vacancy, error) {
	now := p.now().UTC()
	if rec.VacanciesLastSyncedAt != nil && now.Sub(*rec.VacanciesLastSyncedAt) < p.vacancyTTL {
		return p.store.ActiveVacancies(ctx, rec.ID)
	}

	employerID := rec.ExternalID
	if employerID == "" {
		var err error
		employerID, err = p.board.Me(ctx, rec)
		if err != nil {
			p.metrics.ObserveAPIError("me")
			return nil, err
		}
		if err := p.store.SetRecruiterExternalID(ctx, rec.ID, employerID); err != nil {
			return nil, err
		}
		rec.ExternalID = employerID
	}
	items, err := p.board.ActiveVacancies(ctx, rec, employerID)
	if err != nil {
		p.metrics.ObserveAPIError("active_vacancies")
		return nil, err
	}

	synced := make([]store.Vacancy, 0, len(items))
	externalIDs := make([]string, 0, len(items))
	for _, item := range items {
		title := item.Name
		if title == "" {
			title = "Без названия"
		}
		v, err := p.store.UpsertVacancy(ctx, item.ID, title, item.Area.Name, rec.ID)
		if err != nil {
			return nil, err
		}
		synced = append(synced, *v)
		externalIDs = append(externalIDs, item.ID)
	}
	detached, err := p.store.DetachVacancies(ctx, rec.ID, externalIDs)
	if err != nil {
		return nil, err
	}
	if detached > 0 {
		p.logger.Info("stale vacancies detached", "recruiter_id", rec.ID, "count", detached)
	}
	if err := p.store.TouchVacancySync(ctx, rec.ID, now); err != nil {
		return nil, err
	}
	return synced, nil
}

func (p *Poller) cutoff(rec *store.Recruiter) time.Time {
	if rec.CreatedAt.IsZero() {
		return p.now().UTC().Add(-24 * time.Hour)
	}
	return rec.CreatedAt
}

// ingestNew opens dialogues for responses in the unsorted folder. Each
// response is its own transaction: the response is moved to consider first,
// so a failed move leaves nothing behind.
func (p *Poller) ingestNew(ctx context.Context, rec *store.Recruiter, externalIDs []string, byExternalID map[string]store.Vacancy) error {
	items, err := p.board.ResponsesFromFolder(ctx, rec, hh.FolderResponse, externalIDs, p.cutoff(rec), false)
	if err != nil {
		p.metrics.ObserveAPIError("responses")
		return err
	}
	for _, item := range items {
		lowBalance, err := p.ingestOne(ctx, rec, item, byExternalID)
		if err != nil {
			p.logger.Error("response ingestion failed", "response_id", item.ID, "error", err)
			continue
		}
		if lowBalance {
			settings, err := p.store.GetSettings(ctx)
			if err == nil {
				p.alerts.Broadcast(ctx, alerts.LowBalance(settings.Balance, settings.LowBalanceThreshold))
			}
		}
	}
	return nil
}

// ingestOne reports whether the debit crossed the low-balance threshold.
func (p *Poller) ingestOne(ctx context.Context, rec *store.Recruiter, item hh.NegotiationItem, byExternalID map[string]store.Vacancy) (bool, error) {
	if item.ID == "" || item.Resume.ID == "" {
		p.logger.Warn("response without resume skipped", "response_id", item.ID)
		return false, nil
	}
	vacancy, ok := byExternalID[item.VacancyID]
	if !ok {
		p.logger.Error("response for unknown vacancy skipped", "response_id", item.ID, "vacancy_id", item.VacancyID)
		return false, nil
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exists, err := p.store.DialogueExists(ctx, tx, item.ID)
	if err != nil || exists {
		return false, err
	}

	settings, err := p.store.LockSettings(ctx, tx)
	if err != nil {
		return false, err
	}
	if settings.Balance < settings.CostPerDialogue {
		p.logger.Warn("response skipped, balance exhausted",
			"response_id", item.ID, "balance", settings.Balance)
		return false, nil
	}

	cand, err := p.store.GetOrCreateCandidate(ctx, tx, item.Resume.ID, item.FullName())
	if err != nil {
		return false, err
	}

	d := &store.Dialogue{
		ExternalResponseID: item.ID,
		CandidateID:        cand.ID,
		VacancyID:          vacancy.ID,
		RecruiterID:        rec.ID,
		Status:             dialog.StatusNew,
		State:              dialog.StateInitialProcessing,
	}
	if created, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		utc := created.UTC()
		d.ResponseCreatedAt = &utc
	}
	if err := p.store.InsertDialogue(ctx, tx, d); err != nil {
		return false, err
	}

	// Moving the response is the commit fence: a failed move rolls the
	// whole ingestion back and the response stays unsorted for the next
	// sweep.
	if err := p.board.MoveResponse(ctx, rec, hh.FolderConsider, item.ID); err != nil {
		p.metrics.ObserveAPIError("move_response")
		return false, err
	}
	if err := p.store.DebitDialogue(ctx, tx); err != nil {
		return false, err
	}

	d.Pending = p.fetchPending(ctx, rec, item)
	d.LastUpdated = p.now().UTC()
	if err := p.store.SaveDialogue(ctx, tx, d); err != nil {
		return false, err
	}

	day := p.now().In(p.loc)
	if err := p.store.BumpStatistic(ctx, tx, day, vacancy.ID, store.StatResponses); err != nil {
		return false, err
	}
	if err := p.store.BumpStatistic(ctx, tx, day, vacancy.ID, store.StatStartedDialogs); err != nil {
		return false, err
	}

	newBalance := settings.Balance - settings.CostPerDialogue
	notify := false
	switch {
	case newBalance < settings.LowBalanceThreshold && !settings.LowLimitNotified:
		if err := p.store.SetLowLimitNotified(ctx, tx, true); err != nil {
			return false, err
		}
		notify = true
	case newBalance >= settings.LowBalanceThreshold && settings.LowLimitNotified:
		if err := p.store.SetLowLimitNotified(ctx, tx, false); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	p.metrics.ObserveDialogueStarted(strconv.FormatInt(rec.ID, 10))
	p.logger.Info("dialogue opened", "response_id", item.ID, "candidate", cand.ID, "vacancy", vacancy.Title)
	return notify, nil
}

// fetchPending builds the initial mailbox from the response's message
// thread. A thread fetch failure or an empty thread falls back to the
// synthetic greeting command.
func (p *Poller) fetchPending(ctx context.Context, rec *store.Recruiter, item hh.NegotiationItem) []dialog.Entry {
	var entries []dialog.Entry
	messages, err := p.board.Messages(ctx, rec, item.MessagesURL)
	if err != nil {
		p.logger.Error("message thread fetch failed", "response_id", item.ID, "error", err)
	}
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		entries = append(entries, dialog.Entry{
			MessageID:    m.ID,
			Role:         dialog.RoleUser,
			Content:      m.Text,
			TimestampMSK: p.formatMSK(m.CreatedAt),
		})
	}
	if len(entries) == 0 {
		cmd := dialog.NewSystemCommand(greetCommand, p.now())
		cmd.MessageID = "no_msg_" + item.ID
		cmd.TimestampMSK = p.formatMSK(item.CreatedAt)
		entries = []dialog.Entry{cmd}
	}
	return entries
}

func (p *Poller) formatMSK(iso string) string {
	at, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "время не определено"
	}
	return at.In(p.loc).Format("2006-01-02 15:04:05") + " MSK"
}

// ingestUpdates appends unseen applicant messages from the consider and
// interview folders to their dialogues. A dialogue found in the interview
// folder is forced into post-qualification chat.
func (p *Poller) ingestUpdates(ctx context.Context, rec *store.Recruiter, externalIDs []string) error {
	since := p.cutoff(rec)
	consider, err := p.board.ResponsesFromFolder(ctx, rec, hh.FolderConsider, externalIDs, since, true)
	if err != nil {
		p.metrics.ObserveAPIError("responses")
		return err
	}
	interview, err := p.board.ResponsesFromFolder(ctx, rec, hh.FolderInterview, externalIDs, since, true)
	if err != nil {
		p.metrics.ObserveAPIError("responses")
		return err
	}

	for _, tagged := range []struct {
		folder string
		items  []hh.NegotiationItem
	}{
		{hh.FolderConsider, consider},
		{hh.FolderInterview, interview},
	} {
		for _, item := range tagged.items {
			if err := p.appendUpdates(ctx, rec, tagged.folder, item); err != nil {
				p.logger.Error("update ingestion failed", "response_id", item.ID, "error", err)
			}
		}
	}
	return nil
}

func (p *Poller) appendUpdates(ctx context.Context, rec *store.Recruiter, folder string, item hh.NegotiationItem) error {
	known, err := p.store.GetDialogueByResponseID(ctx, p.store.DB(), item.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	messages, err := p.board.Messages(ctx, rec, item.MessagesURL)
	if err != nil {
		p.metrics.ObserveAPIError("messages")
		return err
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := p.store.LockDialogue(ctx, tx, known.ID)
	if errors.Is(err, store.ErrNotFound) {
		// A processor turn holds the row; the messages are still unseen
		// next sweep.
		return nil
	}
	if err != nil {
		return err
	}

	changed := false
	if folder == hh.FolderInterview && d.State != dialog.StatePostQualificationChat {
		d.State = dialog.StatePostQualificationChat
		changed = true
	}

	seen := dialog.SeenMessageIDs(d.History, d.Pending)
	var fresh []dialog.Entry
	for _, m := range messages {
		if m.Text == "" || !m.FromApplicant() || seen[m.ID] {
			continue
		}
		fresh = append(fresh, dialog.Entry{
			MessageID:    m.ID,
			Role:         dialog.RoleUser,
			Content:      m.Text,
			TimestampMSK: p.formatMSK(m.CreatedAt),
		})
	}
	if len(fresh) > 0 {
		if d.ReminderLevel > 0 {
			d.ReminderLevel = 0
		}
		d.Pending = append(d.Pending, fresh...)
		d.LastUpdated = p.now().UTC()
		changed = true
		p.logger.Info("candidate messages queued", "response_id", item.ID, "count", len(fresh))
	}
	if !changed {
		return nil
	}
	if err := p.store.SaveDialogue(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
