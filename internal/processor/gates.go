package processor

import (
	"strings"

	"github.com/northstaff/hragent/internal/store"
)

// Vacancies in Saint Petersburg that skip the automated interview booking
// and go straight to a human recruiter.
var excludedSPBTitles = []string{
	"повар-пекарь", "повар неполный день", "повар", "бариста",
	"уборщик", "уборщица", "помошник повара",
}

var allowedCitizenships = []string{"рф", "еаэс", "внж рф", "рвп рф"}

// profileComplete reports whether the mandatory profile fields were
// collected. Age is checked against nil since zero is a value the model
// could extract.
func profileComplete(c *store.Candidate) bool {
	if c == nil {
		return false
	}
	return c.PhoneNumber != "" && c.Citizenship != "" && c.Age != nil
}

// isEligible applies the hard age and citizenship criteria.
func isEligible(c *store.Candidate) bool {
	if c == nil || c.Age == nil {
		return false
	}
	if *c.Age < 18 || *c.Age > 58 {
		return false
	}
	citizenship := strings.ToLower(strings.TrimSpace(c.Citizenship))
	for _, allowed := range allowedCitizenships {
		if strings.Contains(citizenship, allowed) {
			return true
		}
	}
	return strings.Contains(citizenship, "внж") ||
		strings.Contains(citizenship, "рвп") ||
		strings.Contains(citizenship, "вид на жительство")
}

func isSPB(city string) bool {
	return strings.Contains(strings.ToLower(city), "санкт-петербург")
}

func isExcludedSPBTitle(title string) bool {
	lowered := strings.ToLower(title)
	for _, phrase := range excludedSPBTitles {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
