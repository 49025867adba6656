// Package processor drains dialogue mailboxes: it masks incoming
// messages, runs the model turn, applies the programmatic qualification
// gates and delivers the reply back to the job board.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/llm"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/pii"
	"github.com/northstaff/hragent/internal/prompt"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

var turnTracer = otel.Tracer("hragent.internal.processor")

// JobBoard is the outbound surface of the turn, implemented by hh.Client.
type JobBoard interface {
	SendMessage(ctx context.Context, r *store.Recruiter, responseID, text string) error
	MoveResponse(ctx context.Context, r *store.Recruiter, folder, responseID string) error
}

// Completer runs one JSON-mode model call, implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (*llm.Result, []llm.Attempt, error)
}

// PromptSource provides the current knowledge library.
type PromptSource interface {
	Library(ctx context.Context) *prompt.Library
}

// ReminderScheduler books interview reminders once a slot is agreed.
type ReminderScheduler interface {
	ScheduleInterviewReminders(ctx context.Context, q store.Querier, d *store.Dialogue, dateStr, timeStr string) error
}

// Worker is the dialogue turn engine.
type Worker struct {
	store     *store.Store
	board     JobBoard
	model     Completer
	prompts   PromptSource
	missing   *prompt.MissingLog
	scheduler ReminderScheduler
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger

	batchSize    int
	debounce     time.Duration
	idleSleep    time.Duration
	busySleep    time.Duration
	recruiterIDs []int64
	loc          *time.Location

	now func() time.Time
}

func NewWorker(cfg *config.Config, st *store.Store, board JobBoard, model Completer, prompts PromptSource, scheduler ReminderScheduler, m *metrics.PipelineMetrics, logger *logging.Logger, recruiterIDs []int64) (*Worker, error) {
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("processor: failed to load timezone: %w", err)
	}
	return &Worker{
		store:        st,
		board:        board,
		model:        model,
		prompts:      prompts,
		missing:      prompt.NewMissingLog(cfg.MissingVacanciesPath),
		scheduler:    scheduler,
		metrics:      m,
		logger:       logger.Named("processor"),
		batchSize:    cfg.ProcessorBatchSize,
		debounce:     cfg.ProcessorDebounce,
		idleSleep:    cfg.ProcessorIdleSleep,
		busySleep:    cfg.ProcessorBusySleep,
		recruiterIDs: recruiterIDs,
		loc:          loc,
		now:          time.Now,
	}, nil
}

// Run drains mailboxes until the context is cancelled, sleeping briefly
// between batches.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("processor loop started", "batch_size", w.batchSize, "debounce", w.debounce)
	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("batch failed", "error", err)
		}
		pause := w.idleSleep
		if processed > 0 {
			pause = w.busySleep
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// RunOnce claims one batch of ready dialogues and processes them
// concurrently. It returns the batch size.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	claimed, err := w.store.ClaimPending(ctx, tx, w.batchSize, w.debounce, w.recruiterIDs)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	// Release claim locks right away; each turn re-locks its own row.
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("processor: failed to release claim: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	w.logger.Info("claimed dialogue batch", "count", len(claimed))

	g := &errgroup.Group{}
	g.SetLimit(w.batchSize)
	for _, d := range claimed {
		g.Go(func() error {
			if err := w.processTurn(ctx, d.ID); err != nil {
				w.logger.Error("dialogue turn failed", "dialogue_id", d.ID, "error", err)
				w.metrics.ObserveTurn("error")
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(claimed), nil
}

func (w *Worker) processTurn(ctx context.Context, dialogueID int64) error {
	start := w.now()
	ctx, span := turnTracer.Start(ctx, "processor.turn")
	defer span.End()

	tx, err := w.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := w.store.LockDialogue(ctx, tx, dialogueID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(d.Pending) == 0 {
		return nil
	}
	rec, err := w.store.GetRecruiter(ctx, tx, d.RecruiterID)
	if err != nil {
		return err
	}
	cand, err := w.store.GetCandidate(ctx, tx, d.CandidateID)
	if err != nil {
		return err
	}
	vac, err := w.store.GetVacancy(ctx, tx, d.VacancyID)
	if err != nil {
		return err
	}
	log := w.logger.With("dialogue_id", d.ID, "response_id", d.ExternalResponseID, "state", d.State)

	lib := w.prompts.Library(ctx)
	pending := append([]dialog.Entry(nil), d.Pending...)

	if d.State == dialog.StateAwaitingCitizenship {
		pending, err = w.analyzeCitizenship(ctx, tx, d, pending)
		if err != nil {
			return err
		}
	}

	userEntries := make([]dialog.Entry, 0, len(pending))
	maskedParts := make([]string, 0, len(pending))
	for _, pm := range pending {
		masked, _, phone := pii.ExtractAndMask(pm.Content)
		if phone != "" && cand.PhoneNumber == "" {
			cand.PhoneNumber = phone
			if err := w.store.SetCandidatePhone(ctx, tx, cand.ID, phone); err != nil {
				return err
			}
		}
		entry := pm
		entry.Content = masked
		userEntries = append(userEntries, entry)
		maskedParts = append(maskedParts, masked)
	}
	combined := strings.Join(maskedParts, "\n")

	vacancyCity := vac.City
	if vacancyCity == "" {
		vacancyCity = "город не указан"
	}
	desc, found := lib.FindVacancyDescription(vac.Title, vacancyCity)
	if !found {
		log.Warn("vacancy description not found", "title", vac.Title, "city", vacancyCity)
		if err := w.missing.Record(vac.Title, vacancyCity); err != nil {
			log.Error("failed to record missing vacancy", "error", err)
		}
	}

	systemPrompt := prompt.SystemPrompt(lib, d.State, desc, w.now(), w.loc) +
		"\n\n" + prompt.TaskPostfix(vac.Title, vacancyCity, d.State)

	result, attempts, err := w.model.Complete(ctx, buildMessages(systemPrompt, d.History, combined))
	if err != nil {
		w.recordFailures(ctx, d.ID, d.State, len(attempts))
		return fmt.Errorf("processor: turn completion failed: %w", err)
	}
	if len(attempts) > 0 {
		if err := w.store.InsertFailedAttempts(ctx, tx, d.ID, d.State, len(attempts)); err != nil {
			return err
		}
	}
	reply, err := llm.ParseTurnReply(result.Content)
	if err != nil {
		return err
	}
	if err := w.recordUsage(ctx, tx, d, d.State, result); err != nil {
		return err
	}

	newState := reply.NewState
	if newState == "" {
		newState = d.State
	}
	respText := reply.ResponseText

	if d.Status == dialog.StatusNew {
		d.Status = dialog.StatusInProgress
	}

	if reply.ExtractedData != nil && d.Status != dialog.StatusQualified {
		w.applyExtractedData(ctx, tx, cand, reply, log)
	}

	// Programmatic qualification gates override whatever the model decided.
	if d.Status != dialog.StatusQualified && d.Status != dialog.StatusRejected &&
		newState == dialog.StateQualificationComplete {
		if !profileComplete(cand) {
			log.Info("candidate profile incomplete, asking for missing fields")
			d.Pending = append(d.Pending, dialog.NewSystemCommand(incompleteProfileCommand, w.now()))
			d.State = dialog.StateClarifyingAnything
			d.LastUpdated = w.now().UTC()
			if err := w.store.SaveDialogue(ctx, tx, d); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}

		switch {
		case !isEligible(cand):
			log.Info("candidate rejected by hard criteria", "age", cand.Age, "citizenship", cand.Citizenship)
			newState = dialog.StateQualificationFailed
			respText = rejectionText
		case !isSPB(vac.City) || isExcludedSPBTitle(vac.Title):
			log.Info("candidate handed off to recruiter", "city", vac.City, "title", vac.Title)
			newState = dialog.StateForwardedToResearcher
			respText = handoffText
		default:
			// Saint Petersburg booking: persist the candidate's answers
			// and queue the hidden scheduling command for the next turn.
			d.History = dialog.TrimHistory(append(d.History, userEntries...))
			d.Pending = []dialog.Entry{dialog.NewSystemCommand(schedulingCommand, w.now())}
			d.State = dialog.StateInitSchedulingSPB
			d.LastUpdated = w.now().UTC()
			if err := w.store.SaveDialogue(ctx, tx, d); err != nil {
				return err
			}
			log.Info("candidate qualified, interview booking started")
			return tx.Commit(ctx)
		}
	}

	if newState == dialog.StateCallLater {
		if err := w.store.EnsureInactive(ctx, tx, d.ID); err != nil {
			return err
		}
	}

	switch {
	case (newState == dialog.StateForwardedToResearcher || newState == dialog.StateInterviewScheduledSPB) &&
		d.Status != dialog.StatusQualified:
		d.Status = dialog.StatusQualified
		if err := w.store.BumpStatistic(ctx, tx, w.now().In(w.loc), d.VacancyID, store.StatQualified); err != nil {
			return err
		}
		if err := w.store.EnqueueQualified(ctx, tx, cand.ID); err != nil {
			return err
		}
		log.Info("candidate qualified, moving response to interview folder")
		if err := w.board.MoveResponse(ctx, rec, hh.FolderInterview, d.ExternalResponseID); err != nil {
			w.metrics.ObserveAPIError("move_response")
			return err
		}
		if newState == dialog.StateInterviewScheduledSPB {
			date := reply.StringField("interview_date")
			timeOfDay := reply.StringField("interview_time")
			if date != "" && timeOfDay != "" {
				if err := w.scheduler.ScheduleInterviewReminders(ctx, tx, d, date, timeOfDay); err != nil {
					return err
				}
			} else {
				log.Error("interview scheduled without date or time, reminders skipped")
			}
		}

	case newState == dialog.StateQualificationFailed ||
		newState == dialog.StateDeclinedVacancy ||
		newState == dialog.StateDeclinedInterview:
		if newState == dialog.StateDeclinedVacancy && !w.verifyDecline(ctx, tx, d) {
			log.Info("decline not confirmed, dialogue continues")
			d.Pending = append(d.Pending, dialog.NewSystemCommand(continueAfterDeclineCommand, w.now()))
			d.LastUpdated = w.now().UTC()
			if err := w.store.SaveDialogue(ctx, tx, d); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}
		d.Status = dialog.StatusRejected
		if newState == dialog.StateDeclinedInterview {
			cancelled, err := w.store.CancelPendingReminders(ctx, tx, d.ID)
			if err != nil {
				return err
			}
			if cancelled > 0 {
				log.Info("interview reminders cancelled", "count", cancelled)
			}
		}
		inactive, err := w.store.HasInactiveRow(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if !inactive {
			if err := w.store.UpsertRejected(ctx, tx, d.ID); err != nil {
				return err
			}
		}
		log.Info("candidate rejected, moving response to assessment folder")
		if err := w.board.MoveResponse(ctx, rec, hh.FolderAssessment, d.ExternalResponseID); err != nil {
			w.metrics.ObserveAPIError("move_response")
			return err
		}
	}

	if respText == "" {
		log.Info("empty reply text, state updated without sending")
		d.History = dialog.TrimHistory(append(d.History, userEntries...))
		d.State = newState
		d.Pending = nil
		d.LastUpdated = w.now().UTC()
		if err := w.store.SaveDialogue(ctx, tx, d); err != nil {
			return err
		}
		w.metrics.ObserveTurn("silent")
		return tx.Commit(ctx)
	}

	sendErr := w.board.SendMessage(ctx, rec, d.ExternalResponseID, respText)
	switch {
	case sendErr == nil:
		d.History = dialog.TrimHistory(append(append(d.History, userEntries...), w.botEntry(respText, newState, reply.ExtractedData)))
		d.State = newState
		d.Pending = nil
		d.LastUpdated = w.now().UTC()
		if err := w.store.SaveDialogue(ctx, tx, d); err != nil {
			return err
		}
		w.metrics.ObserveTurn("replied")
		w.metrics.ObserveTurnLatency(newState, w.now().Sub(start).Seconds())
		log.Info("reply delivered", "new_state", newState)
		return tx.Commit(ctx)
	case errors.Is(sendErr, hh.ErrVacancyClosed):
		log.Warn("vacancy closed or resume gone, dropping pending messages")
		d.Pending = nil
		if err := w.store.SaveDialogue(ctx, tx, d); err != nil {
			return err
		}
		return tx.Commit(ctx)
	default:
		w.metrics.ObserveAPIError("send_message")
		return sendErr
	}
}

// analyzeCitizenship runs the dedicated extraction call for the
// awaiting_citizenship state and appends the steering command for the main
// turn. The dialogue state flips to clarifying when the candidate named a
// country outside the accepted set.
func (w *Worker) analyzeCitizenship(ctx context.Context, tx store.Querier, d *store.Dialogue, pending []dialog.Entry) ([]dialog.Entry, error) {
	contents := make([]string, 0, len(pending))
	for _, pm := range pending {
		contents = append(contents, pm.Content)
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: citizenshipAnalysisPrompt},
		{Role: openai.ChatMessageRoleUser, Content: strings.Join(contents, "\n")},
	}
	result, attempts, err := w.model.Complete(ctx, messages)
	if err != nil {
		w.recordFailures(ctx, d.ID, ledgerCitizenshipAnalysis, len(attempts))
		return nil, fmt.Errorf("processor: citizenship analysis failed: %w", err)
	}
	if len(attempts) > 0 {
		if err := w.store.InsertFailedAttempts(ctx, tx, d.ID, ledgerCitizenshipAnalysis, len(attempts)); err != nil {
			return nil, err
		}
	}
	if err := w.recordUsage(ctx, tx, d, ledgerCitizenshipAnalysis, result); err != nil {
		return nil, err
	}

	reply, err := llm.ParseCitizenshipReply(result.Content)
	if err != nil {
		w.logger.Error("failed to parse citizenship reply", "dialogue_id", d.ID, "error", err)
		return pending, nil
	}
	if !reply.Is {
		w.logger.Info("no citizenship found in pending messages", "dialogue_id", d.ID)
		return pending, nil
	}

	var command string
	switch strings.ToLower(strings.TrimSpace(reply.Citizenship)) {
	case "еаэс":
		command = citizenshipEAEUCommand
	case "внж рф", "рвп рф":
		command = citizenshipResidencyCommand
	default:
		command = fmt.Sprintf(citizenshipClarifyCommandFmt, reply.Citizenship)
		d.State = dialog.StateClarifyingCitizenship
	}
	w.logger.Info("citizenship detected", "dialogue_id", d.ID, "citizenship", reply.Citizenship, "state", d.State)
	return append(pending, dialog.NewSystemCommand(command, w.now())), nil
}

// verifyDecline double-checks an alleged vacancy refusal against the whole
// dialogue. Any failure counts as "not confirmed".
func (w *Worker) verifyDecline(ctx context.Context, tx store.Querier, d *store.Dialogue) bool {
	var parts []string
	for _, e := range d.History {
		parts = append(parts, e.Content)
	}
	for _, e := range d.Pending {
		parts = append(parts, e.Content)
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: declineClarificationPrompt},
		{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(strings.Join(parts, "\n"))},
	}
	result, attempts, err := w.model.Complete(ctx, messages)
	if err != nil {
		w.logger.Warn("decline clarification failed, keeping dialogue open", "dialogue_id", d.ID, "error", err)
		w.recordFailures(ctx, d.ID, ledgerDeclineClarification, len(attempts))
		return false
	}
	if len(attempts) > 0 {
		if err := w.store.InsertFailedAttempts(ctx, tx, d.ID, ledgerDeclineClarification, len(attempts)); err != nil {
			w.logger.Error("failed to record clarification retries", "dialogue_id", d.ID, "error", err)
		}
	}
	if err := w.recordUsage(ctx, tx, d, ledgerDeclineClarification, result); err != nil {
		w.logger.Error("failed to record clarification usage", "dialogue_id", d.ID, "error", err)
	}
	reply, err := llm.ParseVerificationReply(result.Content)
	if err != nil {
		w.logger.Error("failed to parse decline clarification", "dialogue_id", d.ID, "error", err)
		return false
	}
	return reply.Declined()
}

func (w *Worker) applyExtractedData(ctx context.Context, tx store.Querier, cand *store.Candidate, reply *llm.TurnReply, log *logging.Logger) {
	changed := false
	if age, ok := reply.IntField("age"); ok {
		cand.Age = &age
		changed = true
	}
	if v := reply.StringField("citizenship"); v != "" {
		cand.Citizenship = v
		changed = true
	}
	if v := reply.StringField("city"); v != "" {
		cand.City = v
		changed = true
	}
	if v := reply.StringField("readiness_to_start"); v != "" {
		cand.ReadinessToStart = v
		changed = true
	}
	if !changed {
		return
	}
	if err := w.store.UpdateCandidateProfile(ctx, tx, cand); err != nil {
		log.Error("failed to update candidate profile", "error", err)
	}
}

// recordUsage writes the ledger row and bumps the per-dialogue totals that
// SaveDialogue will persist.
func (w *Worker) recordUsage(ctx context.Context, tx store.Querier, d *store.Dialogue, label string, result *llm.Result) error {
	usage := result.Usage
	if err := w.store.InsertUsageLog(ctx, tx, &store.UsageLog{
		DialogueID:       d.ID,
		StateAtCall:      label,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CachedTokens:     usage.CachedTokens,
		TotalTokens:      usage.PromptTokens + usage.CompletionTokens,
		Cost:             result.Cost,
	}); err != nil {
		return err
	}
	d.TotalPromptTokens += usage.PromptTokens
	d.TotalCompletionTokens += usage.CompletionTokens
	d.TotalCachedTokens += usage.CachedTokens
	d.TotalCost += result.Cost
	w.metrics.ObserveLLMCost(result.Cost)
	return nil
}

// recordFailures writes zero-token ledger rows outside the turn
// transaction so they survive its rollback.
func (w *Worker) recordFailures(ctx context.Context, dialogueID int64, label string, attempts int) {
	if attempts == 0 {
		return
	}
	if err := w.store.InsertFailedAttempts(ctx, w.store.DB(), dialogueID, label, attempts); err != nil {
		w.logger.Error("failed to record failed attempts", "dialogue_id", dialogueID, "error", err)
	}
}

func (w *Worker) botEntry(text, state string, extracted map[string]any) dialog.Entry {
	return dialog.Entry{
		MessageID:     "bot_" + uuid.NewString(),
		Role:          dialog.RoleAssistant,
		Content:       text,
		TimestampMSK:  w.now().In(w.loc).Format("2006-01-02 15:04:05") + " MSK",
		ExtractedData: extracted,
		State:         state,
	}
}

func buildMessages(systemPrompt string, history []dialog.Entry, userMessage string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, e := range history {
		role := openai.ChatMessageRoleUser
		if e.Role == dialog.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: e.Content})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})
}
