package prompt

import (
	"fmt"
	"strings"
	"time"
)

var weekdaysRu = []string{"понедельник", "вторник", "среда", "четверг", "пятница", "суббота", "воскресенье"}

var weekdayNextForm = map[string]string{
	"понедельник": "Следующий понедельник",
	"вторник":     "Следующий вторник",
	"среда":       "Следующая среда",
	"четверг":     "Следующий четверг",
	"пятница":     "Следующая пятница",
	"суббота":     "Следующая суббота",
	"воскресенье": "Следующее воскресенье",
}

func weekdayRu(t time.Time) string {
	// time.Weekday counts from Sunday, the table from Monday.
	return weekdaysRu[(int(t.Weekday())+6)%7]
}

func capitalizeRu(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}

// CalendarContext renders the 14-day date table the model must use when
// the candidate negotiates an interview slot.
func CalendarContext(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	currentWeekday := weekdayRu(local)
	currentDate := local.Format("2006-01-02")
	currentTime := local.Format("15:04")

	occurrences := make(map[string]int)
	var lines []string
	for i := 0; i < 14; i++ {
		day := local.AddDate(0, 0, i)
		name := weekdayRu(day)
		occurrences[name]++

		prefix, suffix := "", ""
		label := capitalizeRu(name)
		switch i {
		case 0:
			prefix = "(СЕГОДНЯ) "
			suffix = " ← ТЫ ЗДЕСЬ"
		case 1:
			prefix = "(ЗАВТРА) "
		case 2:
			prefix = "(ПОСЛЕЗАВТРА) "
		default:
			if occurrences[name] == 2 {
				label = weekdayNextForm[name]
			}
		}
		lines = append(lines, fmt.Sprintf("%s%s %s%s", prefix, day.Format("2006-01-02"), label, suffix))
	}

	return "\n\n[CRITICAL CALENDAR CONTEXT]\n" +
		fmt.Sprintf("ТЕКУЩАЯ ДАТА И ВРЕМЯ (МСК): %s %s\n", currentDate, currentTime) +
		fmt.Sprintf("СЕГОДНЯ: %s, %s\n\n", currentWeekday, currentDate) +
		fmt.Sprintf("СЕЙЧАС: %s (МСК)\n", currentTime) +
		"⚠️ ВАЖНО: Ты ОЧЕНЬ ПЛОХО считаешь даты в уме. НИКОГДА НЕ ВЫЧИСЛЯЙ ДАТЫ САМОСТОЯТЕЛЬНО!\n" +
		"Используй ТОЛЬКО эту таблицу (таблица начинается с СЕГОДНЯ и идет на 14 дней вперед):\n\n" +
		strings.Join(lines, "\n") + "\n\n" +
		"ПРАВИЛА РАБОТЫ С ДАТАМИ:\n" +
		"1. Кандидат говорит просто день недели ('понедельник', 'вторник'):\n" +
		"   → Найди ПЕРВУЮ строку с этим днем (без слова 'Следующий')\n" +
		"   → Скопируй дату из этой строки\n\n" +
		"2. Если кандидат говорит 'СЛЕДУЮЩИЙ [день недели]' (например, 'следующий понедельник'):\n" +
		"   → Бери такой день из списка выше, где написано 'СЛЕДУЮЩИЙ [день недели]' (например, 'следующий понедельник')\n\n" +
		"   → Скопируй дату из этой строки\n\n" +
		"3. Если кандидат называет день недели, который совпадает с СЕГОДНЯ:\n" +
		"   → ОБЯЗАТЕЛЬНО уточни: 'Вы имеете в виду сегодня или через неделю?'\n\n" +
		"4. Если кандидат говорит 'сегодня', 'завтра', 'послезавтра':\n" +
		"   → Ищи в списке пометку 'СЕГОДНЯ', 'ЗАВТРА' или 'ПОСЛЕЗАВТРА'\n\n" +
		"5. ВСЕГДА копируй дату ТОЧНО из таблицы в формате YYYY-MM-DD\n" +
		"6. НИКОГДА не изобретай даты сам - только из этой таблицы!\n" +
		"═══════════════════════════════════════════════════════════\n" +
		"ПРИМЕРЫ:\n" +
		"═══════════════════════════════════════════════════════════\n" +
		"Кандидат: 'понедельник' → Ты ищешь 'Понедельник'\n" +
		"Кандидат: 'следующий понедельник' → Ты ищешь строчку 'Следующий понедельник'\n" +
		"Кандидат: 'завтра' → Ты ищешь строчку с пометкой '(ЗАВТРА)'\n"
}
