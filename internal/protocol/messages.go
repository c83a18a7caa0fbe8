// Package protocol defines the frames sent on the per-run event stream.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// Message types from server to client
const (
	TypeStatusUpdate   = string(domain.EventTypeStatusUpdate)
	TypeTestCaseUpdate = string(domain.EventTypeTestCaseUpdate)
	TypeLog            = string(domain.EventTypeLog)
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatusUpdate
	KindTestCaseUpdate
	KindLog
)

func (k Kind) String() string {
	switch k {
	case KindStatusUpdate:
		return TypeStatusUpdate
	case KindTestCaseUpdate:
		return TypeTestCaseUpdate
	case KindLog:
		return TypeLog
	default:
		return "unknown"
	}
}

// KindOf maps a frame type discriminator to its Kind.
func KindOf(typ string) Kind {
	switch typ {
	case TypeStatusUpdate:
		return KindStatusUpdate
	case TypeTestCaseUpdate:
		return KindTestCaseUpdate
	case TypeLog:
		return KindLog
	default:
		return KindUnknown
	}
}

// Message is a decoded frame: the type discriminator plus the raw data payload.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Kind Kind            `json:"-"`
}

// Decode parses a raw frame. The frame must be a JSON object with a string type.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("invalid frame: missing type")
	}
	msg.Kind = KindOf(msg.Type)
	return msg, nil
}

// Encode builds a frame of the given type around data.
func Encode(typ string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Data: payload})
}

// StatusUpdate decodes the payload of a status_update frame.
func (m Message) StatusUpdate() (domain.StatusUpdate, error) {
	var data domain.StatusUpdate
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return data, fmt.Errorf("invalid status_update data: %w", err)
	}
	if data.Status == "" {
		return data, fmt.Errorf("invalid status_update data: missing status")
	}
	return data, nil
}

// testCasePatchData shadows executed_at so that zoneless values decode.
type testCasePatchData struct {
	domain.TestCasePatch
	ExecutedAt *string `json:"executed_at,omitempty"`
}

// TestCaseUpdate decodes the payload of a test_case_update frame.
func (m Message) TestCaseUpdate() (domain.TestCasePatch, error) {
	var data testCasePatchData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return domain.TestCasePatch{}, fmt.Errorf("invalid test_case_update data: %w", err)
	}
	if data.TCID == "" {
		return domain.TestCasePatch{}, fmt.Errorf("invalid test_case_update data: missing tc_id")
	}
	patch := data.TestCasePatch
	patch.ExecutedAt = parseOptionalTimestamp(data.ExecutedAt)
	return patch, nil
}

// TestCaseData is a test case as read from the server. executed_at may lack
// a zone.
type TestCaseData struct {
	domain.TestCase
	ExecutedAt *string `json:"executed_at,omitempty"`
}

// Case returns the decoded test case.
func (d TestCaseData) Case() domain.TestCase {
	tc := d.TestCase
	tc.ExecutedAt = parseOptionalTimestamp(d.ExecutedAt)
	return tc
}

// TestCases converts decoded test cases.
func TestCases(data []TestCaseData) []domain.TestCase {
	cases := make([]domain.TestCase, 0, len(data))
	for _, d := range data {
		cases = append(cases, d.Case())
	}
	return cases
}

// LogData is the payload of a log frame. Live frames carry message; log_text
// is accepted for frames relayed from a snapshot.
type LogData struct {
	Message   string `json:"message,omitempty"`
	LogText   string `json:"log_text,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	TestRunID string `json:"test_run_id,omitempty"`
}

// Log decodes the payload of a log frame into an entry for runID.
func (m Message) Log(runID string) (domain.LogEntry, error) {
	var data LogData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return domain.LogEntry{}, fmt.Errorf("invalid log data: %w", err)
	}
	text := data.Message
	if text == "" {
		text = data.LogText
	}
	entry := domain.LogEntry{
		TestRunID: runID,
		Text:      text,
		Timestamp: ParseTimestamp(data.Timestamp),
	}
	if data.TestRunID != "" {
		entry.TestRunID = data.TestRunID
	}
	return entry, nil
}

// NewLogData builds the payload of a log frame.
func NewLogData(message string, ts time.Time) LogData {
	return LogData{Message: message, Timestamp: ts.UTC().Format(time.RFC3339Nano)}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp, with or without a zone. Zoneless
// values are taken as UTC. An unparseable value yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseOptionalTimestamp returns nil for an absent or unparseable value.
func parseOptionalTimestamp(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := ParseTimestamp(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}
