package prompt

import (
	"regexp"
	"strings"
)

// Block markers the knowledge document is expected to carry.
const (
	BlockRoleAndStyle  = "#ROLE_AND_STYLE#"
	BlockQualification = "#QUALIFICATION_RULES#"
	BlockClarify       = "#CLARI#"
	BlockScheduling    = "#SCHEDULING_ALGORITHM#"
	BlockFAQ           = "#FAQ#"
	BlockPostQual      = "#POSTCVAL#"

	markerVacanciesStart = "#START_VACANCIES#"
	markerVacanciesEnd   = "#END_VACANCIES#"
)

const fallbackRoleBlock = "Ты - Hr компании ВкусВилл."

// Vacancy is one entry of the vacancy section of the knowledge document.
type Vacancy struct {
	Titles      []string
	Cities      []string
	Description string
}

// Library is the parsed knowledge document: prompt blocks keyed by
// marker plus the vacancy descriptions.
type Library struct {
	Blocks    map[string]string
	Vacancies []Vacancy
}

// Block returns the text of a marker block, empty when absent.
func (l *Library) Block(marker string) string {
	if l == nil {
		return ""
	}
	return l.Blocks[marker]
}

var markerPattern = regexp.MustCompile(`(#\w+#)`)

// ParseLibrary splits the raw document text into marker blocks and parses
// the vacancy section.
func ParseLibrary(text string) *Library {
	lib := &Library{Blocks: make(map[string]string)}

	parts := markerPattern.Split(text, -1)
	markers := markerPattern.FindAllString(text, -1)
	// Split yields len(markers)+1 parts; parts[i+1] is the text after
	// markers[i].
	for i, marker := range markers {
		body := strings.TrimSpace(parts[i+1])
		if body == "" {
			continue
		}
		lib.Blocks[marker] = body
	}

	if raw, ok := lib.Blocks[markerVacanciesStart]; ok {
		delete(lib.Blocks, markerVacanciesStart)
		raw = strings.ReplaceAll(raw, markerVacanciesEnd, "")
		lib.Vacancies = parseVacancies(raw)
	}
	delete(lib.Blocks, markerVacanciesEnd)
	return lib
}

// FallbackLibrary is used when the document cannot be fetched and no
// cached copy exists.
func FallbackLibrary() *Library {
	return &Library{Blocks: map[string]string{BlockRoleAndStyle: fallbackRoleBlock}}
}

func parseVacancies(raw string) []Vacancy {
	var out []Vacancy
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n&&&\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		titlesLine := strings.TrimSpace(lines[0])
		titlesLine = strings.TrimSpace(strings.TrimPrefix(titlesLine, "—"))

		var titles []string
		for _, t := range strings.Split(titlesLine, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				titles = append(titles, t)
			}
		}

		var cities []string
		for _, line := range lines {
			lowered := strings.ToLower(strings.TrimSpace(line))
			if !strings.Contains(lowered, "город") || !strings.Contains(lowered, ":") {
				continue
			}
			_, citiesPart, _ := strings.Cut(line, ":")
			citiesPart = strings.ReplaceAll(citiesPart, ".", "")
			for _, c := range strings.Split(citiesPart, ",") {
				if c = strings.TrimSpace(c); c != "" {
					cities = append(cities, c)
				}
			}
			break
		}

		out = append(out, Vacancy{Titles: titles, Cities: cities, Description: block})
	}
	return out
}
