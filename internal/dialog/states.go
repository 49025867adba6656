package dialog

// Dialogue lifecycle status.
const (
	StatusNew              = "new"
	StatusInProgress       = "in_progress"
	StatusQualified        = "qualified"
	StatusRejected         = "rejected"
	StatusTimedOut         = "timed_out"
	StatusRecruiterHandled = "recruiter_handled"
	StatusVacancyClosed    = "vacancy_closed"
)

// Nodes of the qualification state machine.
const (
	StateInitialProcessing     = "initial_processing"
	StateAwaitingQuestions     = "awaiting_questions"
	StateAwaitingPhone         = "awaiting_phone"
	StateAwaitingCity          = "awaiting_city"
	StateAwaitingReadiness     = "awaiting_readiness"
	StateAwaitingCitizenship   = "awaiting_citizenship"
	StateClarifyingCitizenship = "clarifying_citizenship"
	StateAwaitingAge           = "awaiting_age"
	StateClarifyingAnything    = "clarifying_anything"
	StateClarifyingDeclined    = "clarifying_declined_vacancy"
	StateQualificationComplete = "qualification_complete"
	StateInitSchedulingSPB     = "init_scheduling_spb"
	StateSchedulingSPBDay      = "scheduling_spb_day"
	StateSchedulingSPBTime     = "scheduling_spb_time"
	StateInterviewScheduledSPB = "interview_scheduled_spb"
	StateForwardedToResearcher = "forwarded_to_researcher"
	StatePostQualificationChat = "post_qualification_chat"
	StateQualificationFailed   = "qualification_failed"
	StateDeclinedVacancy       = "declined_vacancy"
	StateDeclinedInterview     = "declined_interview"
	StateCallLater             = "call_later"
)

var qualificationStates = map[string]bool{
	StateInitialProcessing:     true,
	StateAwaitingQuestions:     true,
	StateAwaitingPhone:         true,
	StateAwaitingCity:          true,
	StateAwaitingReadiness:     true,
	StateAwaitingCitizenship:   true,
	StateClarifyingCitizenship: true,
	StateAwaitingAge:           true,
	StateClarifyingAnything:    true,
	StateClarifyingDeclined:    true,
}

// States where interview scheduling is in play and the prompt needs the
// date calendar.
var schedulingStates = map[string]bool{
	StateInitSchedulingSPB:     true,
	StateSchedulingSPBDay:      true,
	StateSchedulingSPBTime:     true,
	StatePostQualificationChat: true,
	StateInterviewScheduledSPB: true,
}

// States where the candidate may ask free-form questions and the FAQ
// block belongs in the prompt.
var faqStates = map[string]bool{
	StateForwardedToResearcher: true,
	StateInterviewScheduledSPB: true,
	StatePostQualificationChat: true,
	StateAwaitingQuestions:     true,
	StateInitialProcessing:     true,
	StateCallLater:             true,
}

var postQualStates = map[string]bool{
	StatePostQualificationChat: true,
	StateInterviewScheduledSPB: true,
	StateForwardedToResearcher: true,
}

// States excluded from the silent-candidate nudge ladder.
var dojimExcludedStates = map[string]bool{
	StateDeclinedVacancy:    true,
	StateDeclinedInterview:  true,
	StateClarifyingDeclined: true,
	StateCallLater:          true,
}

func IsQualificationState(state string) bool { return qualificationStates[state] }

func IsSchedulingState(state string) bool { return schedulingStates[state] }

func IsFAQState(state string) bool { return faqStates[state] }

func IsPostQualificationState(state string) bool { return postQualStates[state] }

func IsDojimExcluded(state string) bool { return dojimExcludedStates[state] }
