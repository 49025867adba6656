package processor

// Canned texts and hidden commands the turn logic injects. All of them go
// to candidates or to the model verbatim.
const (
	rejectionText = "Спасибо! Я передам Вашу анкету для рассмотрения. Если по Вашей анкете будет принято положительное решение с Вами свяжутся в течение трёх рабочих дней."

	handoffText = "Спасибо! Я передам Вашу заявку нашим коллегам. Мы свяжемся с Вами в рабочее время, чтобы согласовать время собеседования."

	schedulingCommand = "[SYSTEM COMMAND] Кандидат прошел квалификацию. Начни запись на собеседование в Санкт-Петербурге (предложи выбрать день)."

	incompleteProfileCommand = "[SYSTEM COMMAND] Анкета кандидата не заполнена полностью. " +
		"Используй историю диалога, чтобы определить, какие из необходимых данных (Возраст, гражданство, готовность выйти на работу, город) кандидат сообщил и верни их в 'extracted_data'. " +
		"Если какие то данные еще не были предоставлены, задай прямой вопрос кандидату (или вежливо переспроси, если кандидат в течении диалога проигнорировал какой то твой вопрос)."

	continueAfterDeclineCommand = "[SYSTEM COMMAND] Сейчас кандидат не отказывается от вакансии и анкетирования, продолжай дальше."

	citizenshipEAEUCommand = "[SYSTEM COMMAND] Кандидат сообщил что у него гражданство одной из стран ЕАЭС, поставь в поле citizenship строго значение 'ЕАЭС' и переходи к следующему этапу анкеты (возрасту)"

	citizenshipResidencyCommand = "[SYSTEM COMMAND] Кандидат сообщил что у него РВП РФ или ВНЖ РФ, поставь в поле citizenship строго значение 'внж рф' или 'рвп рф' соответственно и переходи к следующему этапу анкеты (возрасту)"

	citizenshipClarifyCommandFmt = "[SYSTEM COMMAND] Кандидат сообщил что у него гражданство %s, уточни есть ли у него РВП или ВНЖ в России."

	citizenshipAnalysisPrompt = `Проанализируй сообщения кандидата и верни ответ
[CRITICAL RULE] Твой ответ ВСЕГДА должен быть в формате JSON.
Структура JSON должна быть следующей:
{
"is": true или false,
"citizenship": "ЕАЭС" или название страны или null
}

Если в сообщениях содержится гражданство или название страны то в поле "is" верни true.
Если в сообщениях нет инфы о гражданстве (стране) то в поле "is" верни false.
Если в сообщениях содержится информация, что человек гражданин (или просто указана страна) Россия (РФ) или Беларусь или Армения или Киргизия или Казахстан то "ЕАЭС".
Если в сообщениях содержится информация, что человек имеет ВНЖ России (РФ) или РВП России (РФ), то верни в "citizenship" строго значение "внж рф" или "рвп рф".
Если другое гражданство то верни в "citizenship" название страны.`

	declineClarificationPrompt = `Проанализируй диалог и определи: действительно ли кандидат чётко отказался от вакансии? ` +
		`Верни ответ строго в формате JSON: {"answer": "yes" или "no"} ` +
		`Ответ "yes" — только если кандидат прямо сказал, что вакансия его не интересует. ` +
		`Если есть хоть малейшее сомнение — верни "no".`
)

// Ledger labels for the auxiliary model calls.
const (
	ledgerCitizenshipAnalysis  = "Citizenship_Analysis"
	ledgerDeclineClarification = "DeclineClarification"
)
