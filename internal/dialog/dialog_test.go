package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSets(t *testing.T) {
	assert.True(t, IsQualificationState(StateAwaitingCitizenship))
	assert.False(t, IsQualificationState(StateSchedulingSPBDay))

	assert.True(t, IsSchedulingState(StateInitSchedulingSPB))
	assert.False(t, IsSchedulingState(StateAwaitingAge))

	assert.True(t, IsFAQState(StateAwaitingQuestions))
	assert.True(t, IsFAQState(StatePostQualificationChat))
	assert.False(t, IsFAQState(StateAwaitingAge))

	assert.True(t, IsPostQualificationState(StatePostQualificationChat))
	assert.True(t, IsDojimExcluded(StateCallLater))
	assert.False(t, IsDojimExcluded(StateAwaitingPhone))
}

func TestNewSystemCommand(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	e := NewSystemCommand("Поприветствуй кандидата.", now)
	require.Equal(t, RoleUser, e.Role)
	assert.True(t, IsSystemCommand(e.Content))
	assert.Contains(t, e.Content, "Поприветствуй кандидата.")
	assert.NotEmpty(t, e.MessageID)
	assert.NotEmpty(t, e.TimestampMSK)

	// Already prefixed content is not double-prefixed.
	e2 := NewSystemCommand(SystemCommandPrefix+" готово", now)
	assert.Equal(t, SystemCommandPrefix+" готово", e2.Content)

	assert.NotEqual(t, e.MessageID, e2.MessageID)
}

func TestTrimHistory(t *testing.T) {
	entries := make([]Entry, HistoryCap+10)
	for i := range entries {
		entries[i] = Entry{MessageID: string(rune('a' + i%26))}
	}
	trimmed := TrimHistory(entries)
	require.Len(t, trimmed, HistoryCap)
	assert.Equal(t, entries[10], trimmed[0])

	short := entries[:3]
	assert.Len(t, TrimHistory(short), 3)
}

func TestSeenMessageIDs(t *testing.T) {
	history := []Entry{{MessageID: "m1"}, {MessageID: "m2"}}
	pending := []Entry{{MessageID: "m3"}, {MessageID: ""}}
	seen := SeenMessageIDs(history, pending)
	assert.True(t, seen["m1"])
	assert.True(t, seen["m3"])
	assert.False(t, seen[""])
	assert.Len(t, seen, 3)
}
