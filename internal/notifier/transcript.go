package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/internal/telegram"
)

const qualifiedCaptionTemplate = "📌 Новый кандидат по вакансии: ✨*%s*✨\n" +
	"Город вакансии: 📍*%s*📍\n\n" +
	"ФИО: %s\n" +
	"Резюме кандидата: [Открыть на HH.ru](%s)\n\n" +
	"URL: %s\n\n" +
	"Возраст: %s\n" +
	"Гражданство: %s\n" +
	"Номер телефона: %s\n\n" +
	"Статус: ✅ Прошёл квалификацию"

const inactiveCaptionTemplate = "⚠️ Соискатель не отвечает более 2 часов\n\n" +
	"Вакансия: ✨*%s*✨\n" +
	"Город: 📍*%s*📍\n" +
	"Имя: %s\n" +
	"Ссылка на резюме: [Открыть на HH.ru](%s)\n\n" +
	"URL: %s"

const rejectedCaptionTemplate = "❌ Кандидату отказано в квалификации\n\n" +
	"Вакансия: ✨*%s*✨\n" +
	"Город: 📍*%s*📍\n" +
	"Имя: %s\n" +
	"Ссылка на резюме: [Открыть на HH.ru](%s)\n\n" +
	"URL: %s"

// dossier bundles the escaped fields every notification references.
type dossier struct {
	vacancyTitle string
	vacancyCity  string
	maskedName   string
	resumeLink   string
}

func newDossier(vac *store.Vacancy, maskedName, resumeLink string) dossier {
	city := vac.City
	if city == "" {
		city = "Не указан"
	}
	return dossier{
		vacancyTitle: telegram.EscapeMarkdown(vac.Title),
		vacancyCity:  telegram.EscapeMarkdown(city),
		maskedName:   telegram.EscapeMarkdown(maskedName),
		resumeLink:   resumeLink,
	}
}

func qualifiedCaption(d dossier, cand *store.Candidate) string {
	age := "Не указан"
	if cand.Age != nil {
		age = strconv.Itoa(*cand.Age)
	}
	citizenship := cand.Citizenship
	if citizenship == "" {
		citizenship = "Не указано"
	}
	phone := cand.PhoneNumber
	if phone == "" {
		phone = "—"
	}
	return fmt.Sprintf(qualifiedCaptionTemplate,
		d.vacancyTitle, d.vacancyCity, d.maskedName, d.resumeLink, d.resumeLink,
		telegram.EscapeMarkdown(age), telegram.EscapeMarkdown(citizenship), telegram.EscapeMarkdown(phone))
}

func inactiveCaption(d dossier) string {
	return fmt.Sprintf(inactiveCaptionTemplate,
		d.vacancyTitle, d.vacancyCity, d.maskedName, d.resumeLink, d.resumeLink)
}

func rejectedCaption(d dossier) string {
	return fmt.Sprintf(rejectedCaptionTemplate,
		d.vacancyTitle, d.vacancyCity, d.maskedName, d.resumeLink, d.resumeLink)
}

// renderTranscript renders the reviewer-facing dialogue transcript. System
// commands and empty entries are dropped. An empty history yields nil and
// the notification is sent without an attachment.
func renderTranscript(dlg *store.Dialogue, d dossier, loc *time.Location) []byte {
	if len(dlg.History) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("=== ИСТОРИЯ ДИАЛОГА ===\n")
	b.WriteString("ID отклика: " + dlg.ExternalResponseID + "\n")
	if dlg.ResponseCreatedAt != nil {
		b.WriteString("Время отклика (МСК): " + dlg.ResponseCreatedAt.In(loc).Format("02.01.2006 в 15:04:05") + "\n")
	}
	b.WriteString("Кандидат: " + d.maskedName + "\n")
	b.WriteString("Вакансия: " + d.vacancyTitle + ", " + d.vacancyCity + "\n")
	b.WriteString("--------------------------------------------------\n")

	for _, entry := range dlg.History {
		if entry.Content == "" || dialog.IsSystemCommand(entry.Content) {
			continue
		}
		prefix := ""
		if ts := trimTimestamp(entry.TimestampMSK); ts != "" {
			prefix = "[" + ts + "] "
		}
		b.WriteString("\n")
		switch entry.Role {
		case dialog.RoleUser:
			b.WriteString(prefix + "👤 Кандидат: " + entry.Content + "\n")
		case dialog.RoleAssistant:
			b.WriteString(prefix + "🤖 Бот: " + entry.Content + "\n")
		}
	}
	return []byte(b.String())
}

// trimTimestamp shortens a stored timestamp to minute precision by cutting
// the fraction and the trailing seconds-plus-zone suffix.
func trimTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	if strings.HasSuffix(ts, " MSK") && len(ts) > 7 {
		ts = ts[:len(ts)-7]
	}
	return ts
}
