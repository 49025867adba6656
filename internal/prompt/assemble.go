package prompt

import (
	"strings"
	"time"

	"github.com/northstaff/hragent/internal/dialog"
)

// stateBlocks maps a dialogue state to the extra marker blocks its system
// prompt needs on top of the role block.
var stateBlocks = map[string][]string{
	dialog.StateInitialProcessing:     {BlockQualification},
	dialog.StateAwaitingQuestions:     {BlockQualification},
	dialog.StateAwaitingPhone:         {BlockQualification},
	dialog.StateAwaitingCity:          {BlockQualification},
	dialog.StateAwaitingReadiness:     {BlockQualification},
	dialog.StateAwaitingCitizenship:   {BlockQualification},
	dialog.StateClarifyingCitizenship: {BlockQualification, BlockClarify},
	dialog.StateAwaitingAge:           {BlockQualification},
	dialog.StateClarifyingAnything:    {BlockQualification},
	dialog.StateClarifyingDeclined:    {BlockQualification},
	dialog.StateQualificationComplete: {BlockQualification},
	dialog.StateCallLater:             {BlockQualification},
	dialog.StateInitSchedulingSPB:     {BlockScheduling},
	dialog.StatePostQualificationChat: {BlockScheduling},
	dialog.StateSchedulingSPBDay:      {BlockScheduling},
	dialog.StateSchedulingSPBTime:     {BlockScheduling},
	dialog.StateInterviewScheduledSPB: {BlockScheduling},
}

// SystemPrompt assembles the dynamic system prompt for one dialogue turn.
// The vacancy description is pinned right after the role block so the
// model treats it as the sole source of vacancy facts.
func SystemPrompt(lib *Library, state, vacancyDescription string, now time.Time, loc *time.Location) string {
	markers := append([]string{BlockRoleAndStyle}, stateBlocks[state]...)
	if dialog.IsFAQState(state) {
		markers = append(markers, BlockFAQ)
	}

	seen := make(map[string]bool)
	var pieces []string
	for _, marker := range markers {
		if seen[marker] {
			continue
		}
		seen[marker] = true
		if block := lib.Block(marker); block != "" {
			pieces = append(pieces, block)
		}
	}

	if dialog.IsSchedulingState(state) {
		pieces = append(pieces, CalendarContext(now, loc))
	}
	if dialog.IsPostQualificationState(state) {
		if block := lib.Block(BlockPostQual); block != "" {
			pieces = append(pieces, block)
		}
	}

	vacancyContext := "[CRITICAL CONTEXT] Ниже представлено описание ТОЛЬКО ТОЙ вакансии, на которую откликнулся кандидат. " +
		"Используй ИСКЛЮЧИТЕЛЬНО эту информацию при ответах на вопросы о вакансии.\n" + vacancyDescription
	if len(pieces) == 0 {
		return vacancyContext
	}
	pieces = append(pieces[:1], append([]string{vacancyContext}, pieces[1:]...)...)
	return strings.Join(pieces, "\n\n")
}

// TaskPostfix pins the vacancy and state the model is currently working
// on to the end of the system prompt.
func TaskPostfix(vacancyTitle, vacancyCity, state string) string {
	return "[CURRENT TASK] Ты общаешься с кандидатом по вакансии '" + vacancyTitle +
		"' в городе '" + vacancyCity + "'. Текущее состояние: '" + state + "'."
}
