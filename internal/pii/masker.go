// Package pii masks personal data in any text the LLM or a reviewer
// transcript will see, while extracting the phone number for the candidate
// record.
package pii

import (
	"regexp"
	"strings"
)

const (
	FIOMaskToken   = "[ФИО ЗАМАСКИРОВАНО]"
	PhoneMaskToken = "[ТЕЛЕФОН ЗАМАСКИРОВАН]"
)

var (
	// A capitalized Cyrillic name pair or triple, hyphenated surnames allowed.
	fioPattern = regexp.MustCompile(`[А-ЯЁ][а-яё]+(?:-[А-ЯЁ][а-яё]+)?\s+[А-ЯЁ][а-яё]+(?:\s+[А-ЯЁ][а-яё]+)?`)
	// Russian phone numbers in the common spellings, with or without the
	// +7/8 prefix and separator noise.
	phonePattern = regexp.MustCompile(`(?:\+7|8)?[ \-.(]*\d{3}[ \-.)]*\d{3}[ \-.]*\d{2}[ \-.]*\d{2}\b`)

	digitPattern = regexp.MustCompile(`\d`)
)

// ExtractAndMask replaces the first phone number and the first full-name
// match with sentinel tokens. It returns the masked text along with the
// extracted values; the phone is normalized to 11 digits with a leading 7.
func ExtractAndMask(text string) (masked, fio, phone string) {
	if text == "" {
		return "", "", ""
	}
	masked = text

	if loc := phonePattern.FindStringIndex(masked); loc != nil {
		phone = NormalizePhone(masked[loc[0]:loc[1]])
		masked = masked[:loc[0]] + PhoneMaskToken + masked[loc[1]:]
	}

	if loc := fioPattern.FindStringIndex(masked); loc != nil {
		fio = strings.TrimSpace(masked[loc[0]:loc[1]])
		masked = masked[:loc[0]] + FIOMaskToken + masked[loc[1]:]
	}

	return masked, fio, phone
}

// NormalizePhone reduces a raw phone match to bare digits with the country
// code spelled as 7.
func NormalizePhone(raw string) string {
	digits := strings.Join(digitPattern.FindAllString(raw, -1), "")
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "8"):
		return "7" + digits[1:]
	case len(digits) == 10:
		return "7" + digits
	default:
		return digits
	}
}

// MaskPatronymic keeps the surname and first name visible and masks the
// patronymic down to its first letter. Used in reviewer-facing dossiers.
func MaskPatronymic(fullName string) string {
	parts := strings.Fields(strings.TrimSpace(fullName))
	if len(parts) == 0 {
		return "Не указано"
	}
	if len(parts) < 3 {
		return strings.Join(parts[:min(len(parts), 2)], " ")
	}
	patronymic := []rune(parts[2])
	masked := "*"
	if len(patronymic) > 1 {
		masked = string(patronymic[0]) + "***"
	}
	return parts[0] + " " + parts[1] + " " + masked
}
