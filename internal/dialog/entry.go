package dialog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryCap bounds the stored history length; the oldest entries are
// dropped first.
const HistoryCap = 150

// SystemCommandPrefix marks synthetic entries that steer the state machine.
// They travel through pending_messages like ordinary candidate messages but
// are never shown in reviewer transcripts.
const SystemCommandPrefix = "[SYSTEM COMMAND]"

// TimestampLayout is the wall-clock format stored on message entries.
const TimestampLayout = "2006-01-02 15:04:05.000000 -07:00"

// Entry is one message in a dialogue's history or pending_messages mailbox.
type Entry struct {
	MessageID     string         `json:"message_id"`
	Role          string         `json:"role"`
	Content       string         `json:"content"`
	TimestampMSK  string         `json:"timestamp_msk,omitempty"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
	State         string         `json:"state,omitempty"`
}

// NewSystemCommand builds a synthetic user-role entry carrying a command for
// the next processor turn.
func NewSystemCommand(content string, now time.Time) Entry {
	if !strings.HasPrefix(content, SystemCommandPrefix) {
		content = SystemCommandPrefix + " " + content
	}
	return Entry{
		MessageID:    "system-" + uuid.NewString(),
		Role:         RoleUser,
		Content:      content,
		TimestampMSK: now.Format(TimestampLayout),
	}
}

// IsSystemCommand reports whether the entry content is a synthetic command.
func IsSystemCommand(content string) bool {
	return strings.HasPrefix(content, SystemCommandPrefix)
}

// TrimHistory drops the oldest entries beyond HistoryCap.
func TrimHistory(entries []Entry) []Entry {
	if len(entries) <= HistoryCap {
		return entries
	}
	return entries[len(entries)-HistoryCap:]
}

// SeenMessageIDs collects the ids already present in history and pending
// entries; the poller uses it to append only unseen applicant messages.
func SeenMessageIDs(lists ...[]Entry) map[string]bool {
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, e := range list {
			if e.MessageID != "" {
				seen[e.MessageID] = true
			}
		}
	}
	return seen
}
