package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TurnReply is the structured payload the model returns for a dialogue turn.
type TurnReply struct {
	ResponseText  string         `json:"response_text"`
	NewState      string         `json:"new_state"`
	ExtractedData map[string]any `json:"extracted_data"`
}

// StringField reads a value from ExtractedData as a string, rendering
// numbers the model occasionally returns unquoted.
func (t *TurnReply) StringField(key string) string {
	if t.ExtractedData == nil {
		return ""
	}
	switch v := t.ExtractedData[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// IntField reads a numeric value from ExtractedData.
func (t *TurnReply) IntField(key string) (int, bool) {
	if t.ExtractedData == nil {
		return 0, false
	}
	switch v := t.ExtractedData[key].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// CitizenshipReply is the payload of the dedicated citizenship check.
type CitizenshipReply struct {
	Is          bool   `json:"is"`
	Citizenship string `json:"citizenship"`
}

// VerificationReply is the payload of the decline verification check.
type VerificationReply struct {
	Answer string `json:"answer"`
}

// Declined reports whether the model confirmed the candidate's refusal.
func (v VerificationReply) Declined() bool {
	return strings.EqualFold(strings.TrimSpace(v.Answer), "yes")
}

// ParseTurnReply decodes a dialogue turn payload, tolerating markdown
// code fences around the JSON.
func ParseTurnReply(content string) (*TurnReply, error) {
	var reply TurnReply
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		return nil, fmt.Errorf("llm: failed to parse turn reply: %w", err)
	}
	if reply.ResponseText == "" && reply.NewState == "" {
		return nil, fmt.Errorf("llm: turn reply missing response_text and new_state")
	}
	return &reply, nil
}

// ParseCitizenshipReply decodes the citizenship check payload.
func ParseCitizenshipReply(content string) (*CitizenshipReply, error) {
	var reply CitizenshipReply
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		return nil, fmt.Errorf("llm: failed to parse citizenship reply: %w", err)
	}
	return &reply, nil
}

// ParseVerificationReply decodes the decline verification payload.
func ParseVerificationReply(content string) (*VerificationReply, error) {
	var reply VerificationReply
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		return nil, fmt.Errorf("llm: failed to parse verification reply: %w", err)
	}
	return &reply, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
