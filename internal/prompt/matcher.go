package prompt

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// NoVacancyDescription stands in when the knowledge document has no entry
// for the vacancy the candidate applied to.
const NoVacancyDescription = "ОПИСАНИЕ ВАКАНСИИ НЕ НАЙДЕНО. " +
	"Отвечай на вопросы кандидата на основе общей информации из FAQ."

// Words that distinguish otherwise similar titles. A mismatch on any of
// them disqualifies the pair outright.
var criticalWords = map[string]bool{
	"старший": true, "младший": true, "ночной": true, "неполный": true,
	"мобильный": true, "администратор": true, "директор": true,
	"товаровед": true, "универсал": true, "пекарь": true, "повар": true,
	"кафе": true, "бариста": true, "кухни": true, "сборщик": true,
	"кассир": true,
}

var citySynonyms = map[string]string{
	"спб":        "санкт петербург",
	"питер":      "санкт петербург",
	"ленобласть": "ленинградская область",
}

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "ё", "е")
	text = nonWordPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalizeText(text)) {
		set[w] = true
	}
	return set
}

func titleSimilarity(input, candidate string) float64 {
	inputWords := wordSet(input)
	candidateWords := wordSet(candidate)

	intersection := 0
	for w := range inputWords {
		if candidateWords[w] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}
	for w := range candidateWords {
		if !inputWords[w] && criticalWords[w] {
			return 0
		}
	}
	for w := range inputWords {
		if !candidateWords[w] && criticalWords[w] {
			return 0
		}
	}

	recall := float64(intersection) / float64(len(candidateWords))
	precision := float64(intersection) / float64(len(inputWords))
	return recall*0.4 + precision*0.6
}

// FindVacancyDescription picks the best matching vacancy entry for the
// title and city, or reports that none matched.
func (l *Library) FindVacancyDescription(title, city string) (string, bool) {
	normCity := normalizeText(city)
	for short, full := range citySynonyms {
		normCity = strings.ReplaceAll(normCity, short, full)
	}

	var best *Vacancy
	bestScore := 0.0
	for i := range l.Vacancies {
		vacancy := &l.Vacancies[i]

		cityMatch := false
		for _, c := range vacancy.Cities {
			normVacancyCity := normalizeText(c)
			if strings.Contains(normVacancyCity, normCity) || strings.Contains(normCity, normVacancyCity) {
				cityMatch = true
				break
			}
		}
		if !cityMatch {
			continue
		}

		maxScore := 0.0
		for _, t := range vacancy.Titles {
			if score := titleSimilarity(title, t); score > maxScore {
				maxScore = score
			}
		}
		if maxScore < 0.4 {
			continue
		}
		if maxScore > bestScore {
			bestScore = maxScore
			best = vacancy
		}
	}

	if best == nil {
		return NoVacancyDescription, false
	}
	return best.Description, true
}

// MissingLog appends unmatched title/city pairs to a file, once each, so
// operators can extend the knowledge document.
type MissingLog struct {
	mu   sync.Mutex
	path string
}

func NewMissingLog(path string) *MissingLog {
	return &MissingLog{path: path}
}

// Record writes "title | city" unless the same pair was logged before.
func (m *MissingLog) Record(title, city string) error {
	if m == nil || m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := fmt.Sprintf("%s | %s", title, city)
	existing := make(map[string]bool)
	if f, err := os.Open(m.path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			existing[strings.TrimSpace(scanner.Text())] = true
		}
		_ = f.Close()
	}
	if existing[entry] {
		return nil
	}

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("prompt: failed to open missing vacancy log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintln(f, entry); err != nil {
		return fmt.Errorf("prompt: failed to write missing vacancy log: %w", err)
	}
	return nil
}
