package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAndMask(t *testing.T) {
	masked, fio, phone := ExtractAndMask("Мои данные: Иванов Иван Иванович, мой телефон +7 (999) 123-45-67. Прошу связаться.")
	assert.Equal(t, "Иванов Иван Иванович", fio)
	assert.Equal(t, "79991234567", phone)
	assert.NotContains(t, masked, "Иванович")
	assert.NotContains(t, masked, "123-45-67")
	assert.Contains(t, masked, FIOMaskToken)
	assert.Contains(t, masked, PhoneMaskToken)
}

func TestExtractAndMaskHyphenatedSurname(t *testing.T) {
	masked, fio, phone := ExtractAndMask("Меня зовут Петров-Водкин Кузьма. Звоните 89219876543")
	assert.Equal(t, "Петров-Водкин Кузьма", fio)
	assert.Equal(t, "79219876543", phone)
	assert.False(t, strings.Contains(masked, "9876543"))
}

func TestExtractAndMaskNoPII(t *testing.T) {
	masked, fio, phone := ExtractAndMask("да, готов выйти завтра")
	assert.Equal(t, "да, готов выйти завтра", masked)
	assert.Empty(t, fio)
	assert.Empty(t, phone)
}

func TestExtractAndMaskEmpty(t *testing.T) {
	masked, fio, phone := ExtractAndMask("")
	assert.Empty(t, masked)
	assert.Empty(t, fio)
	assert.Empty(t, phone)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+7 (999) 123-45-67", "79991234567"},
		{"89219876543", "79219876543"},
		{"9219876543", "79219876543"},
		{"12345", "12345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}

func TestMaskPatronymic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Иванов Иван Иванович", "Иванов Иван И***"},
		{"Петров Сергей", "Петров Сергей"},
		{"Сидоров", "Сидоров"},
		{"", "Не указано"},
		{"  ", "Не указано"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskPatronymic(tt.in), tt.in)
	}
}
