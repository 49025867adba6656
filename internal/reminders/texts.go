package reminders

// Nudge texts for silent candidates, keyed by the ladder transition.
var (
	levelZeroNudges = []string{
		"Напишу вам ещё раз, вдруг моё прошлое сообщение затерялось где-то между делами:-). ",
		"Вакансия интересна или что-то смутило? Если что-то смущает, попробую разъяснить спорные моменты и подобрать для вас варианты .",
	}

	levelOneNudge = "Пишу вам ещё раз, вдруг не увидели предыдущее сообщение. Если вам сейчас неудобно или вы думаете -  напишите, пожалуйста, чтобы я понимала, как лучше вам помочь."

	longNudgeLevelFour = "Добрый день. Если вы еще находитесь в поиске работы, то будем рады пригласить вас пройти собеседование. Готовы продолжить диалог?"

	longNudgeLevelFive = "Добрый день. Вы трудоустроились? Если еще рассматриваете варианты, будем рады предложить вам пройти собеседование. А так же ответить на все вопросы, которые у вас есть. "

	longNudgeLevelSix = "Еще раз добрый день. Как ваши дела? Хотели бы сообщить вам, что вакансия вновь актуальна и если вы в поиске или задумываетесь о смене работы, мы с удовольствием пригласили бы вас на собеседование"
)

// postLongReminderCommand steers the next model turn after a long-ladder
// nudge lands.
const postLongReminderCommand = "если кандидат ответит после этого сообщения, то ты должен " +
	"продолжить диалог по плану разговора, опираясь на текущее состояние (state), " +
	"и не забывай перед переходом к анкете спросить про вопросы и ответить на них!"

// Interview reminder kinds; the strings are persisted in interview_reminders.
const (
	TypeTwoHoursBefore = "2_hours_before"
	TypeEveningBefore  = "1_day_before_20h_spb"
	TypeMorningOf      = "day_of_9h_spb"
)

// Candidate-facing interview reminder templates.
const (
	twoHoursBeforeTemplate = "Здравствуйте! Напоминаю, что у вас запланировано собеседование по вакансии " +
		"'%s' сегодня в %s по московскому времени. Пожалуйста, будьте готовы."

	eveningBeforeTemplate = "Добрый вечер! Напоминаю, что завтра, %s в %s " +
		"по московскому времени, у вас назначено собеседование по вакансии '%s'. " +
		"Если у вас есть вопросы, напишите нам."

	morningOfTemplate = "Доброе утро! Сегодня, %s в %s " +
		"по московскому времени, состоится ваше собеседование по вакансии '%s'. " +
		"Будем ждать вас!"
)
